package eventbus

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
)

func newTestBus() *Bus {
	return New(slog.Default())
}

func TestPublishChannelActivityDeliversToSubscribers(t *testing.T) {
	b := newTestBus()
	ch, unsubscribe := b.SubscribeChannelActivity()
	defer unsubscribe()

	id, err := coretypes.NewRandomChannelID()
	assert.NoError(t, err)
	b.PublishChannelActivity(coretypes.ChannelActivity{ChannelID: id, PeerID: "peer-1"})

	select {
	case ev := <-ch:
		assert.Equal(t, id, ev.ChannelID)
		assert.Equal(t, "peer-1", ev.PeerID)
	case <-time.After(time.Second):
		t.Fatal("expected to receive channel activity event")
	}
}

func TestPublishDropsWhenSubscriberQueueFull(t *testing.T) {
	b := newTestBus()
	ch, unsubscribe := b.SubscribeChannelActivity()
	defer unsubscribe()

	for i := 0; i < channelBufferSize+10; i++ {
		b.PublishChannelActivity(coretypes.ChannelActivity{PeerID: "peer-1"})
	}

	assert.Len(t, ch, channelBufferSize)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := newTestBus()
	ch, unsubscribe := b.SubscribeTelemetry()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestPublishSettlementRequiredDeliversToSubscribers(t *testing.T) {
	b := newTestBus()
	ch, unsubscribe := b.SubscribeSettlementRequired()
	defer unsubscribe()

	b.PublishSettlementRequired(coretypes.SettlementRequired{PeerID: "peer-2", Trigger: "manual"})

	select {
	case ev := <-ch:
		assert.Equal(t, "peer-2", ev.PeerID)
		assert.Equal(t, "manual", ev.Trigger)
	case <-time.After(time.Second):
		t.Fatal("expected to receive settlement required event")
	}
}
