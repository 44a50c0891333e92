// Package web serves the local monitoring dashboard: current engine
// state, session transcripts, recent logs and the inventory, over REST
// and live websocket feeds.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/lflachs/cocorico-voice/pkg/dialog"
	"github.com/lflachs/cocorico-voice/pkg/hub"
	"github.com/lflachs/cocorico-voice/pkg/inventory"
)

const (
	maxLogEntries        = 500
	maxTranscriptEntries = 200
)

// EngineState is the dashboard's view of the voice engine.
type EngineState struct {
	State         string `json:"state"`
	SessionID     string `json:"session_id"`
	Lang          string `json:"lang"`
	WakeListening bool   `json:"wake_listening"`
	WakeDisabled  bool   `json:"wake_disabled"`
	Wakes         int64  `json:"wakes"`
	LastHeard     string `json:"last_heard"`
	LastSpoken    string `json:"last_spoken"`
}

// LogEntry is one log line shown on the dashboard.
type LogEntry struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// TranscriptEntry is one utterance of a session, either side.
type TranscriptEntry struct {
	Time    string `json:"time"`
	Session string `json:"session"`
	Role    string `json:"role"`
	Text    string `json:"text"`
}

// Server is the dashboard HTTP server.
type Server struct {
	app    *fiber.App
	addr   string
	repo   inventory.Repository
	logger *slog.Logger

	state   EngineState
	stateMu sync.RWMutex

	logs   []LogEntry
	logsMu sync.RWMutex

	transcript   []TranscriptEntry
	transcriptMu sync.RWMutex

	statusHub     *hub.Hub
	logHub        *hub.Hub
	transcriptHub *hub.Hub
}

// NewServer builds the dashboard server. The repo backs the inventory
// endpoint and may not be nil.
func NewServer(addr string, repo inventory.Repository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:          addr,
		repo:          repo,
		logger:        logger.With("component", "web"),
		logs:          make([]LogEntry, 0, maxLogEntries),
		transcript:    make([]TranscriptEntry, 0, maxTranscriptEntries),
		statusHub:     hub.New("status", logger),
		logHub:        hub.New("logs", logger),
		transcriptHub: hub.New("transcript", logger),
	}
	s.state.State = dialog.StateIdle.String()

	app := fiber.New(fiber.Config{
		AppName:               "Cocorico Voice Monitor",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/logs", s.handleLogs)
	api.Get("/transcript", s.handleTranscript)
	api.Get("/inventory", s.handleInventory)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))
	app.Get("/ws/transcript", websocket.New(s.handleTranscriptWS))

	s.app = app
	return s
}

// Start runs the hubs and serves until the listener fails. Cancelling
// ctx stops the hubs; call Shutdown to stop the listener.
func (s *Server) Start(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.logHub.Run(ctx)
	go s.transcriptHub.Run(ctx)

	s.logger.Info("dashboard listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// UpdateState applies a mutation to the engine state and broadcasts the
// result to status subscribers.
func (s *Server) UpdateState(update func(*EngineState)) {
	s.stateMu.Lock()
	update(&s.state)
	state := s.state
	s.stateMu.Unlock()

	s.statusHub.BroadcastJSON(state)
}

// OnState is wired into the dialog engine's state hook.
func (s *Server) OnState(sessionID string, state dialog.State) {
	s.UpdateState(func(es *EngineState) {
		es.SessionID = sessionID
		es.State = state.String()
	})
}

// OnTranscript is wired into the dialog engine's transcript hook.
func (s *Server) OnTranscript(sessionID, role, text string) {
	entry := TranscriptEntry{
		Time:    time.Now().Format("15:04:05"),
		Session: sessionID,
		Role:    role,
		Text:    text,
	}

	s.transcriptMu.Lock()
	s.transcript = append(s.transcript, entry)
	if len(s.transcript) > maxTranscriptEntries {
		s.transcript = s.transcript[1:]
	}
	s.transcriptMu.Unlock()

	s.UpdateState(func(es *EngineState) {
		switch role {
		case "user":
			es.LastHeard = text
		case "assistant":
			es.LastSpoken = text
		}
	})
	s.transcriptHub.BroadcastJSON(entry)
}

// AddLog records a log line and broadcasts it to log subscribers.
func (s *Server) AddLog(level, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Level:   level,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogEntries {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logHub.BroadcastJSON(entry)
}
