package ovrecorder

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func parseRaw(t *testing.T, raw string) gjson.Result {
	t.Helper()
	require.True(t, gjson.Valid(raw))
	return gjson.Parse(raw)
}

// fakeReceiver satisfies mcastReceiver without touching the network, so
// adapter tests can exercise join/bind/close bookkeeping without
// joining a real multicast group.
type fakeReceiver struct {
	mu     sync.Mutex
	closed bool
}

func (r *fakeReceiver) Run() {}

func (r *fakeReceiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReceiver) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// fakeJoiner stands in for defaultJoin: it records every address it
// was asked to join and hands back a fakeReceiver, optionally failing
// for addresses listed in failFor.
type fakeJoiner struct {
	mu        sync.Mutex
	joined    []string
	failFor   map[string]bool
	receivers map[string]*fakeReceiver
}

func newFakeJoiner() *fakeJoiner {
	return &fakeJoiner{failFor: map[string]bool{}, receivers: map[string]*fakeReceiver{}}
}

func (j *fakeJoiner) join(address string, table *Table, id string, pool *WorkerPool, logger *slog.Logger) (mcastReceiver, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.joined = append(j.joined, address)
	if j.failFor[address] {
		return nil, errors.New("fake join failure")
	}
	r := &fakeReceiver{}
	j.receivers[id] = r
	return r, nil
}

func TestSecsToFramesZeroDisablesRolling(t *testing.T) {
	require.Equal(t, 0, secsToFrames(0, 8))
}

func TestSecsToFramesConvertsAt20ms(t *testing.T) {
	require.Equal(t, 50, secsToFrames(1, 8))
}

func TestAdapterHandleStartStopViaTable(t *testing.T) {
	root := t.TempDir()
	table := NewTable()
	adapter := NewAdapter(nil, table, nil, Config{
		Root: root, Ext: "wav", FrameSize: 8, FramesToBuffer: 1000000, SilenceCutoffFrames: 10,
	}, nil, nil)
	joiner := newFakeJoiner()
	adapter.join = joiner.join

	adapter.handleStartRecord("req-1", parseRaw(t, `{"mc_ip":"239.1.1.1","mc_port":5004,"loop":"loopA","id":"fixed-id"}`))
	list := table.List()
	require.Contains(t, list, "fixed-id")
	require.Equal(t, uint32(0), list["fixed-id"], "ssrc stays pending until the first wire packet binds it")
	require.Equal(t, []string{"239.1.1.1:5004"}, joiner.joined)

	receiver := joiner.receivers["fixed-id"]
	require.NotNil(t, receiver)
	require.False(t, receiver.isClosed())

	adapter.handleStopRecord("req-2", parseRaw(t, `{"id":"fixed-id"}`))
	require.Empty(t, table.List())
	require.True(t, receiver.isClosed())
}

func TestAdapterAllowsDistinctIDsOnSameGroup(t *testing.T) {
	// Dedup is keyed by recording id, not by multicast address: the
	// signalling layer never sees a real SSRC to dedup on until a
	// receiver binds one, so two requests can legitimately target the
	// same group under different ids.
	root := t.TempDir()
	table := NewTable()
	adapter := NewAdapter(nil, table, nil, Config{Root: root, Ext: "wav", FrameSize: 8, FramesToBuffer: 1000000}, nil, nil)
	joiner := newFakeJoiner()
	adapter.join = joiner.join

	adapter.handleStartRecord("r1", parseRaw(t, `{"mc_ip":"239.1.1.1","mc_port":5004,"loop":"loopA","id":"id1"}`))
	adapter.handleStartRecord("r2", parseRaw(t, `{"mc_ip":"239.1.1.1","mc_port":5004,"loop":"loopA","id":"id2"}`))

	require.Len(t, table.List(), 2)
	require.Len(t, joiner.joined, 2)
}

func TestAdapterRejectsDuplicateID(t *testing.T) {
	root := t.TempDir()
	table := NewTable()
	adapter := NewAdapter(nil, table, nil, Config{Root: root, Ext: "wav", FrameSize: 8, FramesToBuffer: 1000000}, nil, nil)
	joiner := newFakeJoiner()
	adapter.join = joiner.join

	adapter.handleStartRecord("r1", parseRaw(t, `{"mc_ip":"239.1.1.1","mc_port":5004,"loop":"loopA","id":"dup"}`))
	adapter.handleStartRecord("r2", parseRaw(t, `{"mc_ip":"239.1.1.2","mc_port":5004,"loop":"loopA","id":"dup"}`))

	require.Len(t, table.List(), 1)
	// The second request's id collided before any join was attempted.
	require.Equal(t, []string{"239.1.1.1:5004"}, joiner.joined)
}

func TestAdapterRollsBackTableEntryOnJoinFailure(t *testing.T) {
	root := t.TempDir()
	table := NewTable()
	adapter := NewAdapter(nil, table, nil, Config{Root: root, Ext: "wav", FrameSize: 8, FramesToBuffer: 1000000}, nil, nil)
	joiner := newFakeJoiner()
	joiner.failFor["239.1.1.1:5004"] = true
	adapter.join = joiner.join

	adapter.handleStartRecord("r1", parseRaw(t, `{"mc_ip":"239.1.1.1","mc_port":5004,"loop":"loopA","id":"will-fail"}`))

	require.Empty(t, table.List())
}

func TestAdapterPassesVADConfigToTableEntry(t *testing.T) {
	root := t.TempDir()
	table := NewTable()
	adapter := NewAdapter(nil, table, nil, Config{
		Root: root, Ext: "wav", FrameSize: 8, FramesToBuffer: 1000000,
		VAD: VADParams{ZeroCrossingThreshold: 120, PowerThresholdDBFS: -45},
	}, nil, nil)
	joiner := newFakeJoiner()
	adapter.join = joiner.join

	adapter.handleStartRecord("r1", parseRaw(t, `{"mc_ip":"239.1.1.1","mc_port":5004,"loop":"loopA","id":"vad-id"}`))

	e := table.byID["vad-id"]
	require.NotNil(t, e)
	require.Equal(t, VADParams{ZeroCrossingThreshold: 120, PowerThresholdDBFS: -45}, e.vad)
}

func TestAdapterBindSSRCReachesEntryFromReceiver(t *testing.T) {
	root := t.TempDir()
	table := NewTable()
	adapter := NewAdapter(nil, table, nil, Config{Root: root, Ext: "wav", FrameSize: 8, FramesToBuffer: 1000000}, nil, nil)
	joiner := newFakeJoiner()
	adapter.join = joiner.join

	adapter.handleStartRecord("r1", parseRaw(t, `{"mc_ip":"239.1.1.1","mc_port":5004,"loop":"loopA","id":"bound"}`))
	require.NoError(t, table.BindSSRC("bound", 424242))

	require.NotNil(t, table.entryForSSRC(424242))
	require.Equal(t, uint32(424242), table.List()["bound"])
}
