package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t0asterbruh/Boardline/internal/domain"
	"github.com/t0asterbruh/Boardline/internal/protocol"
)

// fakeBoardState mimics the board state service: same-board serialization
// is supplied by the gateway's per-board queue, so a map with a mutex is
// enough here. applyErr simulates a durable-store outage; like the real
// service, the in-memory state is still updated when the store fails.
type fakeBoardState struct {
	mu       sync.Mutex
	boards   map[string]string
	applyErr error
}

func newFakeBoardState() *fakeBoardState {
	return &fakeBoardState{boards: make(map[string]string)}
}

func (f *fakeBoardState) Read(_ context.Context, boardID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	image, ok := f.boards[boardID]
	return image, ok, nil
}

func (f *fakeBoardState) Apply(_ context.Context, boardID, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards[boardID] = image
	return f.applyErr
}

func (f *fakeBoardState) Clear(ctx context.Context, boardID string) error {
	return f.Apply(ctx, boardID, "")
}

// drain waits until every state operation enqueued for the board so far
// has completed.
func (g *Gateway) drain(boardID string) {
	done := make(chan struct{})
	g.dispatch.Enqueue(boardID, func() { close(done) })
	<-done
}

func newTestGateway(requireMembership bool) (*Gateway, *fakeBoardState) {
	registry := NewRegistry()
	relay := NewRelay(registry, nil)
	state := newFakeBoardState()
	return NewGateway(registry, relay, state, requireMembership, nil), state
}

func frame(t *testing.T, msg protocol.Message) []byte {
	t.Helper()
	raw, err := protocol.Marshal(msg)
	require.NoError(t, err)
	return raw
}

func decode(t *testing.T, payloads [][]byte) []protocol.Message {
	t.Helper()
	msgs := make([]protocol.Message, 0, len(payloads))
	for _, p := range payloads {
		var m protocol.Message
		require.NoError(t, json.Unmarshal(p, &m))
		msgs = append(msgs, m)
	}
	return msgs
}

func ofType(msgs []protocol.Message, typ string) []protocol.Message {
	var out []protocol.Message
	for _, m := range msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func TestGateway_JoinEmptyBoardSendsNothing(t *testing.T) {
	g, _ := newTestGateway(false)
	defer g.Stop()
	a := &stubSession{id: "a"}

	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.drain("abc")

	assert.Empty(t, a.sent(), "joining a never-written board pushes no state")
	assert.True(t, g.registry.IsMember("abc", "a"))
}

func TestGateway_JoinReceivesCurrentSnapshot(t *testing.T) {
	g, state := newTestGateway(false)
	defer g.Stop()
	require.NoError(t, state.Apply(context.Background(), "abc", "snap-1"))
	a := &stubSession{id: "a"}

	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.drain("abc")

	msgs := decode(t, a.sent())
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeBoardState, msgs[0].Type)
	assert.Equal(t, "snap-1", msgs[0].Image)
}

func TestGateway_RedundantJoinResendsState(t *testing.T) {
	g, state := newTestGateway(false)
	defer g.Stop()
	require.NoError(t, state.Apply(context.Background(), "abc", "snap-1"))
	a := &stubSession{id: "a"}

	// A duplicate join is harmless: membership stays single, but each
	// call re-reads and re-sends current state.
	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.drain("abc")

	assert.Len(t, decode(t, a.sent()), 2)
	assert.Len(t, g.registry.Members("abc"), 1)
}

func TestGateway_RequestStateWithoutMembership(t *testing.T) {
	g, state := newTestGateway(false)
	defer g.Stop()
	require.NoError(t, state.Apply(context.Background(), "abc", "snap-1"))
	a := &stubSession{id: "a"}

	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeRequestState, BoardID: "abc"}))
	g.drain("abc")

	msgs := decode(t, a.sent())
	require.Len(t, msgs, 1)
	assert.Equal(t, "snap-1", msgs[0].Image)
	assert.False(t, g.registry.IsMember("abc", "a"), "requestState must not change membership")
}

func TestGateway_ApplyStateExcludesSenderAndPersists(t *testing.T) {
	g, state := newTestGateway(false)
	defer g.Stop()
	a := &stubSession{id: "a"}
	b := &stubSession{id: "b"}
	c := &stubSession{id: "c"}
	for _, s := range []*stubSession{a, b, c} {
		g.HandleFrame(s, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	}
	g.drain("abc")

	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeApplyState, BoardID: "abc", Image: "snap-1"}))
	g.drain("abc")

	assert.Empty(t, ofType(decode(t, a.sent()), protocol.TypeBoardState),
		"a state change is never delivered back to its originator")
	for _, peer := range []*stubSession{b, c} {
		msgs := ofType(decode(t, peer.sent()), protocol.TypeBoardState)
		require.Len(t, msgs, 1, "every other member receives the new snapshot")
		assert.Equal(t, "snap-1", msgs[0].Image)
	}

	image, found, err := state.Read(context.Background(), "abc")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "snap-1", image)
}

func TestGateway_ApplyStateMissingFieldsIgnored(t *testing.T) {
	g, state := newTestGateway(false)
	defer g.Stop()
	a := &stubSession{id: "a"}
	b := &stubSession{id: "b"}
	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.HandleFrame(b, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.drain("abc")

	// No image, then no board id: both dropped silently, no error frame.
	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeApplyState, BoardID: "abc"}))
	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeApplyState, Image: "snap-1"}))
	g.drain("abc")

	assert.Empty(t, b.sent())
	_, found, err := state.Read(context.Background(), "abc")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGateway_ApplyStateBroadcastsDespiteStoreFailure(t *testing.T) {
	g, state := newTestGateway(false)
	defer g.Stop()
	state.applyErr = assert.AnError
	a := &stubSession{id: "a"}
	b := &stubSession{id: "b"}
	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.HandleFrame(b, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.drain("abc")

	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeApplyState, BoardID: "abc", Image: "snap-1"}))
	g.drain("abc")

	msgs := ofType(decode(t, b.sent()), protocol.TypeBoardState)
	require.Len(t, msgs, 1, "durable-write failure must not suppress the broadcast")
	assert.Equal(t, "snap-1", msgs[0].Image)
}

func TestGateway_LastWriteWins(t *testing.T) {
	g, state := newTestGateway(false)
	defer g.Stop()
	a := &stubSession{id: "a"}
	b := &stubSession{id: "b"}
	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.HandleFrame(b, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.drain("abc")

	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeApplyState, BoardID: "abc", Image: "snap-1"}))
	g.HandleFrame(b, frame(t, protocol.Message{Type: protocol.TypeApplyState, BoardID: "abc", Image: "snap-2"}))
	g.drain("abc")

	image, _, err := state.Read(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "snap-2", image, "the apply processed last becomes the board's state")
}

func TestGateway_DrawRelayExcludesSender(t *testing.T) {
	g, state := newTestGateway(false)
	defer g.Stop()
	a := &stubSession{id: "a"}
	b := &stubSession{id: "b"}
	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.HandleFrame(b, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.drain("abc")

	x0, y0, x1, y1 := 1.0, 2.0, 3.0, 4.0
	g.HandleFrame(a, frame(t, protocol.Message{
		Type: protocol.TypeDraw, BoardID: "abc",
		X0: &x0, Y0: &y0, X1: &x1, Y1: &y1,
		Color: "#ff0000", LineWidth: 3,
	}))

	assert.Empty(t, a.sent(), "segments never echo back to the sender")
	msgs := ofType(decode(t, b.sent()), protocol.TypeDraw)
	require.Len(t, msgs, 1)
	seg := msgs[0].Segment()
	assert.Equal(t, 1.0, seg.X0)
	assert.Equal(t, 4.0, seg.Y1)
	assert.Equal(t, "#ff0000", seg.Color)

	// Segments are purely transient: nothing was cached or persisted.
	_, found, err := state.Read(context.Background(), "abc")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGateway_DrawMembershipPolicy(t *testing.T) {
	t.Run("relayed from non-members by default", func(t *testing.T) {
		g, _ := newTestGateway(false)
		defer g.Stop()
		member := &stubSession{id: "member"}
		outsider := &stubSession{id: "outsider"}
		g.HandleFrame(member, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
		g.drain("abc")

		g.HandleFrame(outsider, frame(t, protocol.Draw(segmentOn("abc"))))

		assert.Len(t, ofType(decode(t, member.sent()), protocol.TypeDraw), 1)
	})

	t.Run("dropped from non-members when validation is enabled", func(t *testing.T) {
		g, _ := newTestGateway(true)
		defer g.Stop()
		member := &stubSession{id: "member"}
		outsider := &stubSession{id: "outsider"}
		g.HandleFrame(member, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
		g.drain("abc")

		g.HandleFrame(outsider, frame(t, protocol.Draw(segmentOn("abc"))))
		assert.Empty(t, ofType(decode(t, member.sent()), protocol.TypeDraw))

		// Members still relay normally.
		second := &stubSession{id: "second"}
		g.HandleFrame(second, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
		g.drain("abc")
		g.HandleFrame(second, frame(t, protocol.Draw(segmentOn("abc"))))
		assert.Len(t, ofType(decode(t, member.sent()), protocol.TypeDraw), 1)
	})
}

func TestGateway_ClearBroadcastsToEntireRoom(t *testing.T) {
	g, state := newTestGateway(false)
	defer g.Stop()
	a := &stubSession{id: "a"}
	b := &stubSession{id: "b"}
	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.HandleFrame(b, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.drain("abc")
	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeApplyState, BoardID: "abc", Image: "snap-1"}))
	g.drain("abc")

	// Two clears in a row: state stays empty and each call triggers
	// exactly one reset broadcast, sender included.
	g.HandleFrame(b, frame(t, protocol.Message{Type: protocol.TypeClear, BoardID: "abc"}))
	g.HandleFrame(b, frame(t, protocol.Message{Type: protocol.TypeClear, BoardID: "abc"}))
	g.drain("abc")

	assert.Len(t, ofType(decode(t, a.sent()), protocol.TypeClear), 2)
	assert.Len(t, ofType(decode(t, b.sent()), protocol.TypeClear), 2,
		"the clearing session receives the reset notification too")

	image, found, err := state.Read(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, image)
}

func TestGateway_ForceStopReachesAllMembers(t *testing.T) {
	g, _ := newTestGateway(false)
	defer g.Stop()
	a := &stubSession{id: "a"}
	b := &stubSession{id: "b"}
	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.HandleFrame(b, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.drain("abc")

	g.ForceStop("abc")

	assert.Len(t, ofType(decode(t, a.sent()), protocol.TypeForceStop), 1)
	assert.Len(t, ofType(decode(t, b.sent()), protocol.TypeForceStop), 1)
}

func TestGateway_DisconnectReleasesMemberships(t *testing.T) {
	g, _ := newTestGateway(false)
	defer g.Stop()
	a := &stubSession{id: "a"}
	b := &stubSession{id: "b"}
	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.HandleFrame(b, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.drain("abc")

	g.HandleDisconnect(b)

	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeApplyState, BoardID: "abc", Image: "snap-1"}))
	g.drain("abc")
	assert.Empty(t, b.sent(), "a dropped session receives no further broadcasts")
}

func TestGateway_MalformedFramesIgnored(t *testing.T) {
	g, _ := newTestGateway(false)
	defer g.Stop()
	a := &stubSession{id: "a"}

	g.HandleFrame(a, []byte("{not json"))
	g.HandleFrame(a, frame(t, protocol.Message{Type: "teleport", BoardID: "abc"}))
	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeJoinBoard}))

	assert.Empty(t, a.sent())
}

// The full two-session walkthrough: join empty, apply, late join, second
// apply reaches the first joiner, clear empties for everyone.
func TestGateway_TwoSessionScenario(t *testing.T) {
	g, state := newTestGateway(false)
	defer g.Stop()
	a := &stubSession{id: "a"}
	b := &stubSession{id: "b"}

	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.drain("abc")
	assert.Empty(t, a.sent(), "joining the empty board yields no boardState")

	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeApplyState, BoardID: "abc", Image: "S1"}))
	g.drain("abc")

	g.HandleFrame(b, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))
	g.drain("abc")
	bMsgs := ofType(decode(t, b.sent()), protocol.TypeBoardState)
	require.Len(t, bMsgs, 1)
	assert.Equal(t, "S1", bMsgs[0].Image, "a late joiner receives the last applied snapshot")

	g.HandleFrame(a, frame(t, protocol.Message{Type: protocol.TypeApplyState, BoardID: "abc", Image: "S2"}))
	g.drain("abc")
	bMsgs = ofType(decode(t, b.sent()), protocol.TypeBoardState)
	require.Len(t, bMsgs, 2)
	assert.Equal(t, "S2", bMsgs[1].Image)

	g.HandleFrame(b, frame(t, protocol.Message{Type: protocol.TypeClear, BoardID: "abc"}))
	g.drain("abc")
	assert.Len(t, ofType(decode(t, a.sent()), protocol.TypeClear), 1)
	assert.Len(t, ofType(decode(t, b.sent()), protocol.TypeClear), 1)

	image, found, err := state.Read(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, image, "a store-level reader sees the empty board after clear")
}

// A session can disconnect while a state push for it is still waiting in
// the board's queue; the late delivery must be dropped, not crash the
// dispatcher goroutine.
func TestGateway_DisconnectBeforeQueuedStatePushIsDropped(t *testing.T) {
	g, state := newTestGateway(false)
	defer g.Stop()
	require.NoError(t, state.Apply(context.Background(), "abc", "snap-1"))

	c := NewClient(nil, nil)

	// Park the board queue so the join's state push stays pending.
	gate := make(chan struct{})
	g.dispatch.Enqueue("abc", func() { <-gate })

	g.HandleFrame(c, frame(t, protocol.Message{Type: protocol.TypeJoinBoard, BoardID: "abc"}))

	g.HandleDisconnect(c)
	c.closeSend()

	close(gate)
	g.drain("abc")

	assert.False(t, c.Send([]byte("late")), "session stays closed after the dropped push")
}

func segmentOn(boardID string) domain.EditSegment {
	return domain.EditSegment{
		BoardID: boardID,
		X0:      1, Y0: 1, X1: 2, Y1: 2,
		Color:     "#000000",
		LineWidth: 3,
	}
}
