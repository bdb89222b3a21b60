package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/lecturelens/internal/models"
)

const writeWait = 10 * time.Second

// handleWatch streams task snapshots over a websocket whenever the task
// changes, and closes the stream once the task is terminal.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.tasks.Status(id); !ok {
		writeJSON(w, http.StatusNotFound, notFound(id))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "task_id", id, "error", err)
		return
	}
	defer conn.Close()

	// The read loop only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.watchInterval)
	defer ticker.Stop()

	var last models.Task
	sent := false
	for {
		task, ok := s.tasks.Status(id)
		if !ok {
			// Expired while watching.
			s.send(conn, notFound(id))
			s.closeStream(conn)
			return
		}
		if !sent || changed(last, task) {
			if err := s.send(conn, task); err != nil {
				s.logger.Debug("watch stream ended", "task_id", id, "error", err)
				return
			}
			last, sent = task, true
		}
		if task.Status.Terminal() {
			s.closeStream(conn)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) send(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (s *Server) closeStream(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "task finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func changed(a, b models.Task) bool {
	return a.Status != b.Status || a.Stage != b.Stage || !a.UpdatedAt.Equal(b.UpdatedAt)
}
