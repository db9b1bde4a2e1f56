package web

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-presence/pkg/hub"
	"github.com/teslashibe/go-presence/pkg/state"
)

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// lastSeen returns the record, or nil when nothing has been seen yet.
func (s *Server) lastSeen() *state.LastSeen {
	l, ok := s.store.ReadLastSeen()
	if !ok || l.IsZero() {
		return nil
	}
	return &l
}

func (s *Server) presence() *state.Presence {
	p, ok := s.store.ReadPresence()
	if !ok {
		return nil
	}
	return &p
}

// handleHealth reports liveness and whether the durable files exist.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ok":             true,
		"api":            "online",
		"last_seen_file": fileExists(s.cfg.LastSeenFile),
		"presence_file":  fileExists(s.cfg.PresenceFile),
	})
}

func (s *Server) handleLastSeen(c *fiber.Ctx) error {
	ls := s.lastSeen()
	return c.JSON(fiber.Map{"ok": ls != nil, "last_seen": ls})
}

func (s *Server) handlePresence(c *fiber.Ctx) error {
	p := s.presence()
	return c.JSON(fiber.Map{"ok": p != nil, "presence": p})
}

// handleSummary returns both records; ok is true when either exists.
func (s *Server) handleSummary(c *fiber.Ctx) error {
	ls, p := s.lastSeen(), s.presence()
	return c.JSON(fiber.Map{
		"ok":        ls != nil || p != nil,
		"last_seen": ls,
		"presence":  p,
	})
}

// handleHistory lists recent transitions and sightings. ?limit=N bounds
// each list.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.history == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"ok":    false,
			"error": "history not configured",
		})
	}
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 500 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"ok":    false,
			"error": "limit must be between 1 and 500",
		})
	}

	ctx := c.UserContext()
	presence, err := s.history.Presence(ctx, limit)
	if err != nil {
		s.logger.Warn("history query failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": err.Error()})
	}
	sightings, err := s.history.Sightings(ctx, limit)
	if err != nil {
		s.logger.Warn("history query failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": err.Error()})
	}
	if presence == nil {
		presence = []state.Presence{}
	}
	if sightings == nil {
		sightings = []state.LastSeen{}
	}
	return c.JSON(fiber.Map{
		"ok":        true,
		"presence":  presence,
		"sightings": sightings,
	})
}

// handleWake starts a voice session as if the wake word had been heard.
func (s *Server) handleWake(c *fiber.Ctx) error {
	if s.waker == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"ok":    false,
			"error": "wake trigger not configured",
		})
	}
	queued := s.waker.Fire()
	s.logger.Info("manual wake requested", "queued", queued)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"ok":     true,
		"queued": queued,
	})
}

// handleStatusWS streams store changes, starting with the current records.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.statusHub, c, hub.Snapshot(s.store)...)
	if client == nil {
		c.Close()
		return
	}
	client.Run()
}
