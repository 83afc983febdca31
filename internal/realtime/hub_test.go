package realtime

import (
	"encoding/json"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePubSub struct {
	published  []string // "sessionID/event"
	subscribed []string
	cancelled  []string
	handlers   map[string]func(event string, payload []byte)
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{handlers: make(map[string]func(event string, payload []byte))}
}

func (f *fakePubSub) PublishSessionEvent(sessionID, event string, payload []byte) error {
	f.published = append(f.published, sessionID+"/"+event)
	return nil
}

func (f *fakePubSub) SubscribeSession(sessionID string, handler func(event string, payload []byte)) (func(), error) {
	f.subscribed = append(f.subscribed, sessionID)
	f.handlers[sessionID] = handler
	return func() { f.cancelled = append(f.cancelled, sessionID) }, nil
}

func roomClient(id, sessionID string) *Client {
	return &Client{ID: id, SessionID: sessionID, send: make(chan WSMessage, 16)}
}

func TestHubBroadcastReachesRoomOnly(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	a := roomClient("a", "s1")
	b := roomClient("b", "s1")
	other := roomClient("c", "s2")
	hub.Register(a)
	hub.Register(b)
	hub.Register(other)

	hub.Broadcast("s1", EvtSessionPaused, nil)

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
	assert.Empty(t, drain(other))
}

func TestHubSendToClient(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	a := roomClient("a", "s1")
	b := roomClient("b", "s1")
	hub.Register(a)
	hub.Register(b)

	hub.SendToClient("s1", "a", EvtError, "oops")

	msgs := drain(a)
	require.Len(t, msgs, 1)
	assert.Equal(t, EvtError, msgs[0].Event)
	assert.Empty(t, drain(b))
}

func TestHubRedisSubscriptionLifecycle(t *testing.T) {
	ps := newFakePubSub()
	hub := NewHub(zap.NewNop(), ps, ps)

	a := roomClient("a", "s1")
	b := roomClient("b", "s1")
	hub.Register(a)
	hub.Register(b)

	// One subscription per room, opened by the first member.
	assert.Equal(t, []string{"s1"}, ps.subscribed)

	hub.Unregister(a)
	assert.Empty(t, ps.cancelled)
	hub.Unregister(b)
	assert.Equal(t, []string{"s1"}, ps.cancelled)
	assert.Equal(t, 0, hub.RoomSize("s1"))
}

func TestHubBroadcastAndPublish(t *testing.T) {
	ps := newFakePubSub()
	hub := NewHub(zap.NewNop(), ps, ps)
	a := roomClient("a", "s1")
	hub.Register(a)

	hub.BroadcastAndPublish("s1", EvtSessionStopped, nil)

	assert.Len(t, drain(a), 1)
	assert.Equal(t, []string{"s1/" + EvtSessionStopped}, ps.published)
}

func TestHubRedisFanInBroadcastsLocally(t *testing.T) {
	ps := newFakePubSub()
	hub := NewHub(zap.NewNop(), ps, ps)
	a := roomClient("a", "s1")
	hub.Register(a)

	// An event arriving from another instance is fanned out to local members.
	payload, _ := json.Marshal(map[string]int{"startTime": 123})
	ps.handlers["s1"](EvtSessionStarted, payload)

	msgs := drain(a)
	require.Len(t, msgs, 1)
	assert.Equal(t, EvtSessionStarted, msgs[0].Event)
	assert.JSONEq(t, string(payload), string(msgs[0].Data))
}

func TestHubBroadcastDuringMembershipChurn(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	stable := roomClient("stable", "s1")
	hub.Register(stable)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	// Listeners join and leave while the fan-out runs; the broadcast must
	// never observe the room map mid-mutation.
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			c := roomClient(strconv.Itoa(i), "s1")
			hub.Register(c)
			hub.Unregister(c)
		}
	}()

	for i := 0; i < 1000; i++ {
		hub.Broadcast("s1", EvtFeedbackUpdate, nil)
	}
	close(done)
	wg.Wait()

	assert.Equal(t, 1, hub.RoomSize("s1"))
}

func TestHubUnregisterUnboundClient(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	hub.Unregister(&Client{ID: "never-bound"}) // must not panic
}
