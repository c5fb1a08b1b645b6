package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClockNow(t *testing.T) {
	c := New()
	before := time.Now()
	now := c.Now()
	assert.False(t, now.Before(before))
}

func TestMockClockAdvanceFiresAfter(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	m := NewMock(start)

	ch := m.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before the clock advanced")
	default:
	}

	m.Advance(5 * time.Second)

	select {
	case fired := <-ch:
		assert.Equal(t, start.Add(5*time.Second), fired)
	default:
		t.Fatal("After did not fire once the clock advanced past the deadline")
	}
}

func TestMockClockAdvancePastMultipleWaiters(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	m := NewMock(start)

	early := m.After(1 * time.Second)
	late := m.After(10 * time.Second)

	m.Advance(5 * time.Second)
	select {
	case <-early:
	default:
		t.Fatal("early waiter should have fired")
	}
	select {
	case <-late:
		t.Fatal("late waiter should not have fired yet")
	default:
	}
}
