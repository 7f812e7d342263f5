package ws

import (
	"context"
	"time"

	socketio "github.com/googollee/go-socket.io"

	"proxy_manager/internal/model"
)

const (
	defaultReplay = 100
	maxReplay     = 500
	replayTimeout = 5 * time.Second
)

// replayRequest is parsed from the request:audit payload
type replayRequest struct {
	LastID int
	Limit  int
}

func parseReplayRequest(data interface{}) replayRequest {
	req := replayRequest{Limit: defaultReplay}
	m, ok := data.(map[string]interface{})
	if !ok {
		return req
	}
	if v, ok := m["lastId"].(float64); ok && v > 0 {
		req.LastID = int(v)
	}
	if v, ok := m["limit"].(float64); ok && v > 0 {
		req.Limit = int(v)
	}
	if req.Limit > maxReplay {
		req.Limit = maxReplay
	}
	return req
}

// newerThan keeps the records with an id above lastID. logs are newest first.
func newerThan(logs []model.AuditLog, lastID int) []model.AuditLog {
	if lastID <= 0 {
		return logs
	}
	for i, l := range logs {
		if l.ID <= lastID {
			return logs[:i]
		}
	}
	return logs
}

func (s *Server) handleRequestAudit(c socketio.Conn, data interface{}) {
	req := parseReplayRequest(data)

	ctx, cancel := context.WithTimeout(context.Background(), replayTimeout)
	defer cancel()

	logs, err := s.history.ListAuditLogs(ctx, req.Limit)
	if err != nil {
		s.logger.WithField("conn", c.ID()).WithError(err).Error("failed to load audit history")
		c.Emit(EventError, map[string]interface{}{"message": "Failed to query audit log"})
		return
	}

	items := newerThan(logs, req.LastID)
	lastID := req.LastID
	if len(items) > 0 {
		lastID = items[0].ID
	}
	c.Emit(EventAuditReplay, map[string]interface{}{
		"items":  items,
		"total":  len(items),
		"lastId": lastID,
	})
}
