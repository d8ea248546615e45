package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"gifforge/internal/logging"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// JobProgressWS streams a job's progress events over a websocket. The
// current snapshot is sent immediately, then every event until the job
// reaches a terminal state, then the socket closes.
func (s *Server) JobProgressWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, ok := s.jobs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug("websocket upgrade failed for job %s: %v", id, err)
		return
	}
	defer conn.Close()

	events := job.subscribe()
	defer job.unsubscribe(events)

	// Discard client frames but notice disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(v any) bool {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return false
		}
		if err := conn.WriteJSON(v); err != nil {
			logging.Debug("websocket write failed for job %s: %v", id, err)
			return false
		}
		return true
	}

	if !send(job.snapshot()) {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				// Terminal state: deliver the final snapshot and finish.
				send(job.snapshot())
				return
			}
			if !send(ev) {
				return
			}
		case <-ping.C:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
