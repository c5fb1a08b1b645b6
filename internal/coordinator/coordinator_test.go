package coordinator

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/warrant1/warrant/settlement-core/internal/clock"
	"gitlab.com/warrant1/warrant/settlement-core/internal/config"
	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
)

type fakeGasSource struct {
	price *big.Int
	err   error
	calls int
}

func (f *fakeGasSource) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.price, nil
}

type fakeMetrics struct {
	successRates map[string]float64
	circuitOpen  map[string]bool
}

func (f *fakeMetrics) SuccessRate(method string) float64 { return f.successRates[method] }
func (f *fakeMetrics) CircuitOpen(method string) bool    { return f.circuitOpen[method] }

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{successRates: make(map[string]float64), circuitOpen: make(map[string]bool)}
}

func evmPeer() coretypes.PeerConfig {
	return coretypes.PeerConfig{
		PeerID:               "peer-a",
		SettlementPreference: coretypes.SettlementPreferenceBoth,
		EvmAddress:           "0x1111111111111111111111111111111111111111",
		XrpAddress:           "rExample",
	}
}

func TestEvaluateOptionsPicksMethodByTokenKind(t *testing.T) {
	gas := &fakeGasSource{price: big.NewInt(1_000_000_000)}
	mtr := newFakeMetrics()
	c := New(gas, mtr, clock.NewMock(time.Unix(0, 0)), nil, config.CoordinatorConfig{}, 0)

	evmOpts := c.EvaluateOptions(context.Background(), evmPeer(), coretypes.TokenSymbol("USDC"), big.NewInt(1000))
	require.Len(t, evmOpts, 1)
	assert.Equal(t, MethodEVM, evmOpts[0].Method)

	xrpOpts := c.EvaluateOptions(context.Background(), evmPeer(), coretypes.TokenXRP, big.NewInt(1000))
	require.Len(t, xrpOpts, 1)
	assert.Equal(t, MethodXRP, xrpOpts[0].Method)
}

func TestEvaluateOptionsMarksUnavailableOnGasError(t *testing.T) {
	gas := &fakeGasSource{err: errors.New("rpc timeout")}
	mtr := newFakeMetrics()
	c := New(gas, mtr, clock.NewMock(time.Unix(0, 0)), nil, config.CoordinatorConfig{}, 0)

	opts := c.EvaluateOptions(context.Background(), evmPeer(), coretypes.TokenSymbol("USDC"), big.NewInt(1000))
	require.Len(t, opts, 1)
	assert.False(t, opts[0].Available)
}

func TestGasPriceIsCached(t *testing.T) {
	gas := &fakeGasSource{price: big.NewInt(1_000_000_000)}
	mtr := newFakeMetrics()
	mock := clock.NewMock(time.Unix(0, 0))
	c := New(gas, mtr, mock, nil, config.CoordinatorConfig{}, 30*time.Second)

	_, err := c.cachedGasCost(context.Background())
	require.NoError(t, err)
	_, err = c.cachedGasCost(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, gas.calls)

	mock.Advance(31 * time.Second)
	_, err = c.cachedGasCost(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, gas.calls)
}

func TestSelectSettlementMethodFiltersUnavailable(t *testing.T) {
	options := []Option{
		{Method: MethodEVM, Available: false},
		{Method: MethodXRP, Available: true, SuccessRate: 0.9},
	}
	best, err := SelectSettlementMethod(options)
	require.NoError(t, err)
	assert.Equal(t, MethodXRP, best.Method)
}

func TestSelectSettlementMethodNoneAvailable(t *testing.T) {
	options := []Option{{Method: MethodEVM, Available: false}}
	_, err := SelectSettlementMethod(options)
	assert.ErrorIs(t, err, coretypes.ErrNoAvailableMethods)
}

func TestExecuteWithFallbackRetriesOnFailure(t *testing.T) {
	gas := &fakeGasSource{price: big.NewInt(1)}
	mtr := newFakeMetrics()
	c := New(gas, mtr, clock.NewMock(time.Unix(0, 0)), nil, config.CoordinatorConfig{}, 0)

	options := []Option{
		{Method: MethodEVM, Available: true, SuccessRate: 0.5},
		{Method: MethodXRP, Available: true, SuccessRate: 0.5},
	}

	var attempted []Method
	err := c.ExecuteWithFallback(context.Background(), options, options[0], func(_ context.Context, opt Option) error {
		attempted = append(attempted, opt.Method)
		if opt.Method == MethodEVM {
			return errors.New("insufficient funds")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []Method{MethodEVM, MethodXRP}, attempted)
}

func TestExecuteWithFallbackFailsWhenBothMethodsFail(t *testing.T) {
	gas := &fakeGasSource{price: big.NewInt(1)}
	mtr := newFakeMetrics()
	c := New(gas, mtr, clock.NewMock(time.Unix(0, 0)), nil, config.CoordinatorConfig{}, 0)

	options := []Option{
		{Method: MethodEVM, Available: true},
		{Method: MethodXRP, Available: true},
	}

	err := c.ExecuteWithFallback(context.Background(), options, options[0], func(_ context.Context, _ Option) error {
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, coretypes.ErrAllMethodsFailed)
}
