package xrpchannel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/warrant1/warrant/settlement-core/internal/clock"
	"gitlab.com/warrant1/warrant/settlement-core/internal/config"
	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
)

type fakeClient struct {
	mu sync.Mutex

	nextChannelID coretypes.ChannelID
	states        map[coretypes.ChannelID]coretypes.XrpChannelState
	funded        map[coretypes.ChannelID]uint64
	closed        map[coretypes.ChannelID]bool
	getChannelErr error
}

func newFakeClient() *fakeClient {
	id, _ := coretypes.NewRandomChannelID()
	return &fakeClient{
		nextChannelID: id,
		states:        make(map[coretypes.ChannelID]coretypes.XrpChannelState),
		funded:        make(map[coretypes.ChannelID]uint64),
		closed:        make(map[coretypes.ChannelID]bool),
	}
}

func (f *fakeClient) CreateChannel(_ context.Context, destination string, amountDrops uint64, settleDelay time.Duration, _ string) (coretypes.ChannelID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[f.nextChannelID] = coretypes.XrpChannelState{
		ChannelID:   f.nextChannelID,
		Destination: destination,
		Amount:      amountDrops,
		SettleDelay: settleDelay,
		Status:      coretypes.XrpChannelOpen,
	}
	return f.nextChannelID, nil
}

func (f *fakeClient) FundChannel(_ context.Context, channelID coretypes.ChannelID, additionalDrops uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funded[channelID] += additionalDrops
	return nil
}

func (f *fakeClient) SubmitClaim(_ context.Context, _ coretypes.ChannelID, _ uint64, _ [64]byte, _ [33]byte, _ bool) (string, error) {
	return "deadbeef", nil
}

func (f *fakeClient) CloseChannel(_ context.Context, channelID coretypes.ChannelID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[channelID] = true
	return nil
}

func (f *fakeClient) CancelChannelClose(_ context.Context, channelID coretypes.ChannelID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.closed, channelID)
	return nil
}

func (f *fakeClient) GetChannel(_ context.Context, channelID coretypes.ChannelID) (coretypes.XrpChannelState, error) {
	if f.getChannelErr != nil {
		return coretypes.XrpChannelState{}, f.getChannelErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[channelID], nil
}

func (f *fakeClient) GetAccountInfo(_ context.Context, _ string) (uint64, uint32, error) {
	return 0, 0, nil
}

type fakeChannelStore struct {
	mu       sync.Mutex
	channels map[coretypes.ChannelID]coretypes.XrpChannelRecord
}

func newFakeChannelStore() *fakeChannelStore {
	return &fakeChannelStore{channels: make(map[coretypes.ChannelID]coretypes.XrpChannelRecord)}
}

func (f *fakeChannelStore) UpsertXrpChannel(_ context.Context, meta coretypes.ChannelMetadata, state coretypes.XrpChannelState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[state.ChannelID] = coretypes.XrpChannelRecord{PeerID: meta.PeerID, Meta: meta, State: state}
	return nil
}

func (f *fakeChannelStore) ListXrpChannelIDsForDestination(_ context.Context, destination string) ([]coretypes.ChannelID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []coretypes.ChannelID
	for _, rec := range f.channels {
		if rec.State.Destination == destination {
			ids = append(ids, rec.State.ChannelID)
		}
	}
	return ids, nil
}

func (f *fakeChannelStore) LoadOpenXrpChannels(_ context.Context) ([]coretypes.XrpChannelRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var records []coretypes.XrpChannelRecord
	for _, rec := range f.channels {
		if rec.State.Status != coretypes.XrpChannelClosed {
			records = append(records, rec)
		}
	}
	return records, nil
}

func testCfg() config.XrpConfig {
	return config.XrpConfig{
		DefaultSettleDelay:     time.Hour,
		LifecycleSweepInterval: time.Minute,
		LowBalanceThreshold:    0.5,
		InitialChannelAmount:   2000,
		FundIncrement:          1000,
		IdleChannelThreshold:   24 * time.Hour,
		ExpirationBuffer:       time.Hour,
	}
}

func TestGetOrCreateChannelOpensNewChannel(t *testing.T) {
	client := newFakeClient()
	mgr := New(client, clock.NewMock(time.Unix(0, 0)), nil, nil, nil, nil, testCfg())

	id, err := mgr.GetOrCreateChannel(context.Background(), "peer-a", "rDestination")
	require.NoError(t, err)
	assert.Equal(t, client.nextChannelID, id)
}

func TestGetOrCreateChannelReturnsCachedOpenChannel(t *testing.T) {
	client := newFakeClient()
	mgr := New(client, clock.NewMock(time.Unix(0, 0)), nil, nil, nil, nil, testCfg())

	first, err := mgr.GetOrCreateChannel(context.Background(), "peer-a", "rDestination")
	require.NoError(t, err)

	second, err := mgr.GetOrCreateChannel(context.Background(), "peer-a", "rDestination")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUpdateActivityRejectsNonMonotonicClaim(t *testing.T) {
	client := newFakeClient()
	mgr := New(client, clock.NewMock(time.Unix(0, 0)), nil, nil, nil, nil, testCfg())

	_, err := mgr.GetOrCreateChannel(context.Background(), "peer-a", "rDestination")
	require.NoError(t, err)

	require.NoError(t, mgr.UpdateActivity("peer-a", 500))
	err = mgr.UpdateActivity("peer-a", 400)
	assert.ErrorIs(t, err, coretypes.ErrNonMonotonicClaim)
}

func TestNeedsFundingBelowThreshold(t *testing.T) {
	client := newFakeClient()
	mgr := New(client, clock.NewMock(time.Unix(0, 0)), nil, nil, nil, nil, testCfg())

	id, err := mgr.GetOrCreateChannel(context.Background(), "peer-a", "rDestination")
	require.NoError(t, err)
	require.NoError(t, mgr.UpdateActivity("peer-a", 1900)) // remaining = 2000-1900=100 < 0.5*2000=1000

	needs, err := mgr.NeedsFunding("peer-a")
	require.NoError(t, err)
	assert.True(t, needs)

	// amount = 2000+2000=4000; remaining = 4000-1900=2100 >= 0.5*4000=2000
	require.NoError(t, mgr.FundChannel(context.Background(), "peer-a", 2000))
	assert.Equal(t, uint64(2000), client.funded[id])

	needs, err = mgr.NeedsFunding("peer-a")
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestIdleSweepClosesStaleChannel(t *testing.T) {
	client := newFakeClient()
	mock := clock.NewMock(time.Unix(0, 0))
	mgr := New(client, mock, nil, nil, nil, nil, testCfg())

	id, err := mgr.GetOrCreateChannel(context.Background(), "peer-a", "rDestination")
	require.NoError(t, err)

	mock.Advance(25 * time.Hour)
	mgr.IdleSweep(context.Background())

	assert.True(t, client.closed[id])
	entry, _ := mgr.lookup("peer-a")
	entry.mu.Lock()
	defer entry.mu.Unlock()
	assert.Equal(t, coretypes.XrpChannelClosing, entry.state.Status)
}

func TestExpiringSweepClosesChannelNearCancelAfter(t *testing.T) {
	client := newFakeClient()
	mock := clock.NewMock(time.Unix(0, 0))
	mgr := New(client, mock, nil, nil, nil, nil, testCfg())

	id, err := mgr.GetOrCreateChannel(context.Background(), "peer-a", "rDestination")
	require.NoError(t, err)

	soon := mock.Now().Add(30 * time.Minute)
	entry, _ := mgr.lookup("peer-a")
	entry.mu.Lock()
	entry.state.CancelAfter = &soon
	entry.mu.Unlock()

	client.mu.Lock()
	client.states[id] = entry.state
	client.mu.Unlock()

	mgr.ExpiringSweep(context.Background())

	assert.True(t, client.closed[id])
}

func TestGetOrCreateChannelPersistsAndListsByDestination(t *testing.T) {
	client := newFakeClient()
	store := newFakeChannelStore()
	mgr := New(client, clock.NewMock(time.Unix(0, 0)), nil, nil, nil, store, testCfg())

	id, err := mgr.GetOrCreateChannel(context.Background(), "peer-a", "rDestination")
	require.NoError(t, err)

	rec, ok := store.channels[id]
	require.True(t, ok)
	assert.Equal(t, "peer-a", rec.PeerID)
	assert.Equal(t, "rDestination", rec.State.Destination)

	ids, err := mgr.ListChannelsForDestination(context.Background(), "rDestination")
	require.NoError(t, err)
	assert.Equal(t, []coretypes.ChannelID{id}, ids)
}

func TestStartRestoresOpenChannelsFromStore(t *testing.T) {
	client := newFakeClient()
	store := newFakeChannelStore()
	existing := coretypes.ChannelID("prior-channel")
	store.channels[existing] = coretypes.XrpChannelRecord{
		PeerID: "peer-b",
		Meta:   coretypes.ChannelMetadata{ChannelID: existing, PeerID: "peer-b"},
		State:  coretypes.XrpChannelState{ChannelID: existing, Destination: "rDestB", Amount: 5000, Status: coretypes.XrpChannelOpen},
	}

	mgr := New(client, clock.NewMock(time.Unix(0, 0)), nil, nil, nil, store, testCfg())
	mgr.Start(context.Background())

	id, err := mgr.GetOrCreateChannel(context.Background(), "peer-b", "rDestB")
	require.NoError(t, err)
	assert.Equal(t, existing, id) // cached from restore, no new CreateChannel call
}

func TestCloseChannelIsIdempotent(t *testing.T) {
	client := newFakeClient()
	mgr := New(client, clock.NewMock(time.Unix(0, 0)), nil, nil, nil, nil, testCfg())

	_, err := mgr.GetOrCreateChannel(context.Background(), "peer-a", "rDestination")
	require.NoError(t, err)

	require.NoError(t, mgr.CloseChannel(context.Background(), "peer-a", CloseManual))
	require.NoError(t, mgr.CloseChannel(context.Background(), "peer-a", CloseManual))
}
