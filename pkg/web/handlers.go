package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/lflachs/cocorico-voice/pkg/hub"
)

func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return c.JSON(s.state)
}

func (s *Server) handleLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	s.transcriptMu.RLock()
	defer s.transcriptMu.RUnlock()
	return c.JSON(s.transcript)
}

func (s *Server) handleInventory(c *fiber.Ctx) error {
	products, err := s.repo.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(products)
}

func (s *Server) handleStatusWS(conn *websocket.Conn) {
	// Send the current state before joining the feed.
	s.stateMu.RLock()
	conn.WriteJSON(s.state)
	s.stateMu.RUnlock()

	hub.NewClient(s.statusHub, conn).Run()
}

func (s *Server) handleLogsWS(conn *websocket.Conn) {
	s.logsMu.RLock()
	for _, entry := range s.logs {
		conn.WriteJSON(entry)
	}
	s.logsMu.RUnlock()

	hub.NewClient(s.logHub, conn).Run()
}

func (s *Server) handleTranscriptWS(conn *websocket.Conn) {
	s.transcriptMu.RLock()
	for _, entry := range s.transcript {
		conn.WriteJSON(entry)
	}
	s.transcriptMu.RUnlock()

	hub.NewClient(s.transcriptHub, conn).Run()
}
