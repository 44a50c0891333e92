package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/lflachs/cocorico-voice/pkg/dialog"
	"github.com/lflachs/cocorico-voice/pkg/inventory"
)

func newTestServer(t *testing.T) (*Server, *inventory.Mock) {
	t.Helper()
	repo := inventory.NewMock(
		inventory.Product{Name: "flour", Quantity: 10, Unit: "kg"},
		inventory.Product{Name: "olive oil", Quantity: 4, Unit: "l"},
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(":0", repo, logger), repo
}

func getJSON(t *testing.T, s *Server, path string, out any) {
	t.Helper()
	resp, err := s.app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func TestStatusStartsIdle(t *testing.T) {
	s, _ := newTestServer(t)

	var state EngineState
	getJSON(t, s, "/api/status", &state)
	if state.State != "idle" {
		t.Errorf("state = %q, want idle", state.State)
	}
}

func TestStateHookUpdatesStatus(t *testing.T) {
	s, _ := newTestServer(t)

	s.OnState("sess-1", dialog.StateRecording)

	var state EngineState
	getJSON(t, s, "/api/status", &state)
	if state.State != "recording" {
		t.Errorf("state = %q, want recording", state.State)
	}
	if state.SessionID != "sess-1" {
		t.Errorf("session = %q, want sess-1", state.SessionID)
	}
}

func TestTranscriptHookFeedsTranscriptAndStatus(t *testing.T) {
	s, _ := newTestServer(t)

	s.OnTranscript("sess-1", "user", "add three kilos of flour")
	s.OnTranscript("sess-1", "assistant", "Adding 3 kilos of flour, ok?")

	var entries []TranscriptEntry
	getJSON(t, s, "/api/transcript", &entries)
	if len(entries) != 2 {
		t.Fatalf("transcript has %d entries, want 2", len(entries))
	}
	if entries[0].Role != "user" || entries[1].Role != "assistant" {
		t.Errorf("roles = %q, %q", entries[0].Role, entries[1].Role)
	}

	var state EngineState
	getJSON(t, s, "/api/status", &state)
	if state.LastHeard != "add three kilos of flour" {
		t.Errorf("last heard = %q", state.LastHeard)
	}
	if state.LastSpoken != "Adding 3 kilos of flour, ok?" {
		t.Errorf("last spoken = %q", state.LastSpoken)
	}
}

func TestInventoryEndpointListsProducts(t *testing.T) {
	s, _ := newTestServer(t)

	var products []inventory.Product
	getJSON(t, s, "/api/inventory", &products)
	if len(products) != 2 {
		t.Errorf("listed %d products, want 2", len(products))
	}
}

func TestLogBufferIsBounded(t *testing.T) {
	s, _ := newTestServer(t)

	for i := 0; i < maxLogEntries+50; i++ {
		s.AddLog("info", "line")
	}

	var logs []LogEntry
	getJSON(t, s, "/api/logs", &logs)
	if len(logs) != maxLogEntries {
		t.Errorf("kept %d logs, want %d", len(logs), maxLogEntries)
	}
}
