package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	return h, cancel
}

func subscribe(h *Hub, buffer int) *Client {
	c := &Client{hub: h, send: make(chan []byte, buffer)}
	h.register <- c
	return c
}

func recv(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	h, cancel := testHub(t)
	defer cancel()

	a := subscribe(h, 8)
	b := subscribe(h, 8)

	if err := h.BroadcastJSON(map[string]string{"state": "recording"}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	for _, c := range []*Client{a, b} {
		var got map[string]string
		if err := json.Unmarshal(recv(t, c), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got["state"] != "recording" {
			t.Errorf("state = %q, want recording", got["state"])
		}
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	h, cancel := testHub(t)
	defer cancel()

	slow := subscribe(h, 1)
	slow.send <- []byte("stuck") // fill the buffer, never drain

	h.Broadcast([]byte("x"))

	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want 0", h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribeAfterShutdownDoesNotBlock(t *testing.T) {
	h, cancel := testHub(t)

	cancel()
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("hub never stopped")
	}

	done := make(chan *Client, 1)
	go func() { done <- NewClient(h, nil) }()

	select {
	case c := <-done:
		if _, ok := <-c.send; ok {
			t.Error("expected a closed send channel")
		}
	case <-time.After(time.Second):
		t.Fatal("NewClient blocked on a stopped hub")
	}
}

func TestShutdownClosesClients(t *testing.T) {
	h, cancel := testHub(t)

	c := subscribe(h, 8)
	cancel()

	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("expected a closed send channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel never closed")
	}
}
