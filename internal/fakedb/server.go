// Package fakedb provides a fake document service for tests. It answers
// POST /query/1 from stub responses matched against the FQL text and
// serves change feeds over WebSocket at /stream/1.
//
// To flexibly inject failures, stubs carry failure configurations that
// delay, corrupt, or fail the response with a service error.
package fakedb

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	gorilla "github.com/gorilla/websocket"

	"github.com/Etesie/fauna-typed/pkg/connection"
	"github.com/Etesie/fauna-typed/pkg/models"
)

// FailureType represents the type of failure to inject.
type FailureType string

const (
	// FailureRequestDelay delays before answering.
	FailureRequestDelay FailureType = "request_delay"
	// FailureInvalidResponse answers 200 with a body that is not JSON.
	FailureInvalidResponse FailureType = "invalid_response"
	// FailureUnavailable answers 503 service_unavailable.
	FailureUnavailable FailureType = "unavailable"
	// FailureDropConnection hijacks and closes the connection.
	FailureDropConnection FailureType = "drop_connection"
)

// FailureConfig defines how and when to inject a failure.
type FailureConfig struct {
	Type FailureType
	// Probability of triggering this failure (0.0 to 1.0).
	Probability float64
	// Count, when positive, limits the failure to the first Count
	// matching requests; Probability is then ignored.
	Count int
	// Delay is used by FailureRequestDelay.
	Delay time.Duration

	fired int
}

// RequestMatcher selects the queries a stub answers.
type RequestMatcher struct {
	// Query matches the FQL text exactly.
	Query string
	// Prefix matches queries starting with it.
	Prefix string
	// Matcher, if set, must also accept the query.
	Matcher func(query string) bool
}

func (m RequestMatcher) match(q string) bool {
	if m.Query != "" && m.Query != q {
		return false
	}
	if m.Prefix != "" && !strings.HasPrefix(q, m.Prefix) {
		return false
	}
	if m.Matcher != nil && !m.Matcher(q) {
		return false
	}
	return m.Query != "" || m.Prefix != "" || m.Matcher != nil
}

// StubResponse is a pre-configured answer. Result is any value models.Tag
// understands; Error, when set, is returned instead.
type StubResponse struct {
	Matcher  RequestMatcher
	Result   any
	Error    *connection.QueryError
	Failures []*FailureConfig
}

// SimpleStubResponse answers the exact query with result.
func SimpleStubResponse(query string, result any) StubResponse {
	return StubResponse{Matcher: RequestMatcher{Query: query}, Result: result}
}

// ErrorStubResponse answers queries starting with prefix with a service
// error.
func ErrorStubResponse(prefix string, status int, code string) StubResponse {
	return StubResponse{
		Matcher: RequestMatcher{Prefix: prefix},
		Error:   &connection.QueryError{Status: status, Code: code, Message: code},
	}
}

// Server is a fake service with stub responses and failure injection.
type Server struct {
	addr     string
	secret   string
	listener net.Listener
	http     *http.Server
	upgrader gorilla.Upgrader

	mu             sync.Mutex
	stubResponses  []StubResponse
	globalFailures []*FailureConfig
	queries        []string
	streams        map[*gorilla.Conn]connection.StreamRequest
	streamRequests []connection.StreamRequest
}

// NewServer creates a fake server accepting secret. Use "127.0.0.1:0" to
// bind to a random available port.
func NewServer(addr, secret string) *Server {
	s := &Server{
		addr:    addr,
		secret:  secret,
		streams: make(map[*gorilla.Conn]connection.StreamRequest),
	}
	r := mux.NewRouter()
	r.HandleFunc("/query/1", s.handleQuery).Methods(http.MethodPost)
	r.HandleFunc("/stream/1", s.handleStream).Methods(http.MethodGet)
	s.http = &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	return s
}

// AddStubResponse adds a stub. Stubs are matched in the order they were
// added.
func (s *Server) AddStubResponse(stub StubResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubResponses = append(s.stubResponses, stub)
}

// SetGlobalFailures sets failures checked before stub-specific ones.
func (s *Server) SetGlobalFailures(failures ...*FailureConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalFailures = failures
}

// Queries returns every query received so far.
func (s *Server) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// CountQueries returns how many received queries start with prefix.
func (s *Server) CountQueries(prefix string) int {
	n := 0
	for _, q := range s.Queries() {
		if strings.HasPrefix(q, prefix) {
			n++
		}
	}
	return n
}

// Start starts serving. Returns an error if the address cannot be bound.
func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("fakedb: serve: %v", err)
		}
	}()
	return nil
}

// Stop closes the listener and every open stream.
func (s *Server) Stop() error {
	s.DropStreams()
	return s.http.Close()
}

// URL returns the base URL of the running server.
func (s *Server) URL() string {
	if s.listener != nil {
		return "http://" + s.listener.Addr().String()
	}
	return "http://" + s.addr
}

func (s *Server) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+s.secret
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, &connection.QueryError{Status: http.StatusUnauthorized, Code: connection.CodeUnauthorized, Message: "invalid secret"})
		return
	}
	var req connection.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &connection.QueryError{Status: http.StatusBadRequest, Code: connection.CodeInvalidQuery, Message: err.Error()})
		return
	}

	s.mu.Lock()
	s.queries = append(s.queries, req.Query)
	failures := append([]*FailureConfig(nil), s.globalFailures...)
	var stub *StubResponse
	for i := range s.stubResponses {
		if s.stubResponses[i].Matcher.match(req.Query) {
			stub = &s.stubResponses[i]
			failures = append(failures, stub.Failures...)
			break
		}
	}
	var fire []*FailureConfig
	for _, f := range failures {
		if shouldTrigger(f) {
			fire = append(fire, f)
		}
	}
	s.mu.Unlock()

	for _, f := range fire {
		if done := s.applyFailure(w, f); done {
			return
		}
	}

	if stub == nil {
		writeError(w, &connection.QueryError{Status: http.StatusBadRequest, Code: connection.CodeInvalidQuery, Message: "no stub for " + req.Query})
		return
	}
	if stub.Error != nil {
		writeError(w, stub.Error)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": models.Tag(stub.Result), "summary": ""})
}

// shouldTrigger must be called with s.mu held.
func shouldTrigger(f *FailureConfig) bool {
	if f.Count > 0 {
		if f.fired >= f.Count {
			return false
		}
		f.fired++
		return true
	}
	return cryptoRandFloat64() < f.Probability
}

func (s *Server) applyFailure(w http.ResponseWriter, f *FailureConfig) bool {
	switch f.Type {
	case FailureRequestDelay:
		time.Sleep(f.Delay)
		return false
	case FailureInvalidResponse:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data": {"@doc": `))
	case FailureUnavailable:
		writeError(w, &connection.QueryError{Status: http.StatusServiceUnavailable, Code: connection.CodeServiceUnavailable, Message: "try again"})
	case FailureDropConnection:
		hj, ok := w.(http.Hijacker)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return true
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			_ = conn.Close()
		}
	}
	return true
}

func writeError(w http.ResponseWriter, qe *connection.QueryError) {
	writeJSON(w, qe.Status, map[string]any{
		"error": map[string]any{"code": qe.Code, "message": qe.Message},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":{"code":"internal_error","message":"encoding"}}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

// cryptoRandFloat64 generates a random float64 in [0.0, 1.0).
func cryptoRandFloat64() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(1<<53))
	return float64(n.Int64()) / float64(1<<53)
}
