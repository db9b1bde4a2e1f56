package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/teslashibe/go-presence/pkg/state"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func recv(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case m, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func waitCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount: got %d, want %d", h.ClientCount(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_BroadcastFanOut(t *testing.T) {
	h, _ := startHub(t)

	a := newClient(h, nil, nil)
	b := newClient(h, nil, nil)
	if !h.join(a) || !h.join(b) {
		t.Fatal("join failed")
	}
	waitCount(t, h, 2)

	if err := h.BroadcastJSON(map[string]string{"hello": "world"}); err != nil {
		t.Fatal(err)
	}

	for _, c := range []*Client{a, b} {
		m := recv(t, c)
		if m.Type != JSONMessage || string(m.Data) != `{"hello":"world"}` {
			t.Errorf("got %+v", m)
		}
	}

	h.leave(a)
	if _, ok := <-a.send; ok {
		t.Error("unregistered client's channel should be closed")
	}
	if h.ClientCount() != 1 {
		t.Errorf("ClientCount after leave: got %d", h.ClientCount())
	}
}

func TestHub_InitialMessagesFirst(t *testing.T) {
	h, _ := startHub(t)

	c := newClient(h, nil, []Message{NewJSONMessage([]byte(`"snapshot"`))})
	h.join(c)
	h.Broadcast(NewJSONMessage([]byte(`"update"`)))

	if got := string(recv(t, c).Data); got != `"snapshot"` {
		t.Errorf("first message: got %s", got)
	}
	if got := string(recv(t, c).Data); got != `"update"` {
		t.Errorf("second message: got %s", got)
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h, _ := startHub(t)

	c := newClient(h, nil, nil)
	h.join(c)

	// Nobody drains c.send, so it overflows.
	for i := 0; i < sendBuffer+10; i++ {
		h.Broadcast(NewBinaryMessage([]byte{byte(i)}))
		time.Sleep(time.Millisecond)
	}

	waitCount(t, h, 0)
}

func TestHub_StopClosesClients(t *testing.T) {
	h, cancel := startHub(t)
	c := newClient(h, nil, nil)
	h.join(c)

	cancel()

	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("client channel not closed on stop")
	}

	<-h.done
	if h.join(newClient(h, nil, nil)) {
		t.Error("join after stop should fail")
	}
	if h.IsRunning() {
		t.Error("hub should not be running")
	}
}

func TestHub_FollowStore(t *testing.T) {
	h, _ := startHub(t)
	store := state.New()

	stop := h.Follow(store)
	defer stop()

	c := newClient(h, nil, nil)
	h.join(c)

	score := 3.0
	store.WritePresence(state.Presence{
		Location:     "Kitchen",
		InTargetZone: true,
		Reason:       "Stove conf=0.70",
		Score:        &score,
		Time:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local),
	})

	var got struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(recv(t, c).Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != "presence" || got.Data["location"] != "Kitchen" || got.Data["is_kitchen"] != true {
		t.Errorf("update: %+v", got)
	}
}

func TestSnapshot(t *testing.T) {
	store := state.New()
	if got := Snapshot(store); len(got) != 0 {
		t.Errorf("empty store snapshot: %d messages", len(got))
	}

	place := "Kitchen"
	store.WriteLastSeen(state.LastSeen{Place: &place})
	store.WritePresence(state.Presence{Location: "Kitchen", Time: time.Now()})

	got := Snapshot(store)
	if len(got) != 2 {
		t.Fatalf("snapshot: got %d messages", len(got))
	}
	var first StatusUpdate
	json.Unmarshal(got[0].Data, &first)
	if first.Type != "presence" {
		t.Errorf("presence should come first, got %q", first.Type)
	}
}
