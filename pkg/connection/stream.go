package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/buger/jsonparser"
	gorilla "github.com/gorilla/websocket"

	"github.com/Etesie/fauna-typed/internal/codec"
	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/logger"
	"github.com/Etesie/fauna-typed/pkg/models"
)

const streamPath = "/stream/1"

// DefaultDialer is the gorilla dialer used by StreamConnection.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

// StreamRequest opens an event stream. Cursor resumes after the last
// event seen on a previous stream.
type StreamRequest struct {
	Query  string `json:"query"`
	Cursor string `json:"cursor,omitempty"`
}

// StreamConnection subscribes to change feeds over a WebSocket. Dropped
// streams are redialed with the configured Retryer, resuming from the last
// cursor.
type StreamConnection struct {
	conf   Config
	dialer *gorilla.Dialer
	logger logger.Logger
}

func NewStreamConnection(conf *Config) *StreamConnection {
	s := &StreamConnection{conf: *conf, dialer: DefaultDialer, logger: conf.Logger}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.conf.Retryer == nil {
		s.conf.Retryer = NoRetry{}
	}
	return s
}

func (s *StreamConnection) SetDialer(d *gorilla.Dialer) *StreamConnection {
	s.dialer = d
	return s
}

// Subscribe streams the events of query, an FQL set expression, until ctx
// is done. The first dial happens before Subscribe returns; its failure is
// returned. The channel is closed when the stream ends for good.
func (s *StreamConnection) Subscribe(ctx context.Context, query string) (<-chan models.Event, error) {
	if err := s.conf.preConnectionChecks(); err != nil {
		return nil, err
	}
	conn, err := s.dial(ctx, StreamRequest{Query: query})
	if err != nil {
		return nil, err
	}

	out := make(chan models.Event, constants.DefaultSubscriberBuf)
	go s.run(ctx, conn, query, out)
	return out, nil
}

func (s *StreamConnection) run(ctx context.Context, conn *gorilla.Conn, query string, out chan<- models.Event) {
	defer close(out)

	var cursor string
	for {
		lastErr := s.readLoop(ctx, conn, &cursor, out)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("event stream dropped", "query", query, "error", lastErr)

		conn = nil
		for attempt := 0; conn == nil; attempt++ {
			delay, ok := s.conf.Retryer.NextDelay(attempt, lastErr)
			if !ok {
				s.emit(ctx, out, models.Event{Type: models.EventError, Error: lastErr.Error()})
				return
			}
			if !sleep(ctx, delay) {
				return
			}
			conn, lastErr = s.dial(ctx, StreamRequest{Query: query, Cursor: cursor})
		}
		s.conf.Retryer.Reset()
	}
}

// readLoop forwards events until the connection fails or ctx is done.
func (s *StreamConnection) readLoop(ctx context.Context, conn *gorilla.Conn, cursor *string, out chan<- models.Event) error {
	var once sync.Once
	closeConn := func() {
		once.Do(func() {
			if err := conn.Close(); err != nil {
				s.logger.Debug("closing stream", "error", err)
			}
		})
	}
	defer closeConn()

	stop := context.AfterFunc(ctx, closeConn)
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := DecodeEvent(s.conf.Unmarshaler, msg)
		if err != nil {
			s.logger.Warn("skipping malformed event", "error", err)
			continue
		}
		if ev.Cursor != "" {
			*cursor = ev.Cursor
		}
		if ev.Type == models.EventError {
			return errors.New(ev.Error)
		}
		if !s.emit(ctx, out, ev) {
			return ctx.Err()
		}
	}
}

func (s *StreamConnection) emit(ctx context.Context, out chan<- models.Event, ev models.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *StreamConnection) dial(ctx context.Context, req StreamRequest) (*gorilla.Conn, error) {
	u, err := streamURL(s.conf.BaseURL)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.conf.Secret)

	conn, res, err := s.dialer.DialContext(ctx, u, header)
	if err != nil {
		if res != nil && res.StatusCode >= 400 {
			return nil, &QueryError{Status: res.StatusCode, Code: CodeUnauthorized, Message: err.Error()}
		}
		return nil, fmt.Errorf("%w: dialing stream: %v", constants.ErrTransient, err)
	}
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}

	body, err := s.conf.Marshaler.Marshal(req)
	if err == nil {
		err = conn.WriteMessage(gorilla.TextMessage, body)
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: opening stream: %v", constants.ErrTransient, err)
	}
	return conn, nil
}

func streamURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case constants.HTTPScheme:
		u.Scheme = constants.WebsocketScheme
	case constants.HTTPSecureScheme:
		u.Scheme = constants.WebsocketSecureScheme
	}
	u.Path += streamPath
	return u.String(), nil
}

// DecodeEvent parses one stream message:
//
//	{"type": "update", "data": {"@doc": ...}, "cursor": "..."}
func DecodeEvent(u codec.Unmarshaler, msg []byte) (models.Event, error) {
	typ, err := jsonparser.GetString(msg, "type")
	if err != nil {
		return models.Event{}, fmt.Errorf("%w: event without type", constants.ErrMalformed)
	}
	ev := models.Event{Type: models.EventType(typ)}
	ev.Cursor, _ = jsonparser.GetString(msg, "cursor")

	switch ev.Type {
	case models.EventAdd, models.EventUpdate, models.EventRemove:
		raw, _, _, err := jsonparser.Get(msg, "data")
		if err != nil {
			return models.Event{}, fmt.Errorf("%w: %s event without data", constants.ErrMalformed, typ)
		}
		var tree any
		if err := u.Unmarshal(raw, &tree); err != nil {
			return models.Event{}, fmt.Errorf("%w: %v", constants.ErrMalformed, err)
		}
		ev.Doc, err = models.UntagDocument(tree)
		if err != nil {
			return models.Event{}, err
		}
	case models.EventError:
		code, _ := jsonparser.GetString(msg, "error", "code")
		message, _ := jsonparser.GetString(msg, "error", "message")
		ev.Error = code + ": " + message
	case models.EventStatus:
	default:
		return models.Event{}, fmt.Errorf("%w: unknown event type %q", constants.ErrMalformed, typ)
	}
	return ev, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
