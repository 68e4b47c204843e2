package fakedb

import (
	"log"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"

	"github.com/Etesie/fauna-typed/pkg/connection"
	"github.com/Etesie/fauna-typed/pkg/models"
)

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, &connection.QueryError{Status: http.StatusUnauthorized, Code: connection.CodeUnauthorized, Message: "invalid secret"})
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("fakedb: upgrade: %v", err)
		return
	}

	var req connection.StreamRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	s.streams[conn] = req
	s.streamRequests = append(s.streamRequests, req)
	s.mu.Unlock()

	// Drain until the client goes away.
	go func() {
		defer s.forget(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) forget(conn *gorilla.Conn) {
	s.mu.Lock()
	delete(s.streams, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

// StreamRequests returns every stream request received so far, including
// the cursor sent on reconnection.
func (s *Server) StreamRequests() []connection.StreamRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]connection.StreamRequest(nil), s.streamRequests...)
}

// WaitStreams blocks until n streams are open or timeout elapses.
func (s *Server) WaitStreams(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		open := len(s.streams)
		s.mu.Unlock()
		if open >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// Publish sends ev to every open stream whose query is query.
func (s *Server) Publish(query string, ev models.Event) {
	msg := map[string]any{"type": string(ev.Type)}
	if ev.Cursor != "" {
		msg["cursor"] = ev.Cursor
	}
	switch ev.Type {
	case models.EventAdd, models.EventUpdate, models.EventRemove:
		msg["data"] = models.Tag(ev.Doc)
	case models.EventError:
		msg["error"] = map[string]any{"code": "stream_error", "message": ev.Error}
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		log.Printf("fakedb: encoding event: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, req := range s.streams {
		if req.Query != query {
			continue
		}
		if err := conn.WriteMessage(gorilla.TextMessage, raw); err != nil {
			log.Printf("fakedb: writing event: %v", err)
		}
	}
}

// PublishRaw sends an arbitrary message to every open stream.
func (s *Server) PublishRaw(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.streams {
		_ = conn.WriteMessage(gorilla.TextMessage, raw)
	}
}

// DropStreams closes every open stream, as a network failure would.
func (s *Server) DropStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.streams {
		_ = conn.Close()
		delete(s.streams, conn)
	}
}
