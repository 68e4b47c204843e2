package connection

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/buger/jsonparser"

	"github.com/Etesie/fauna-typed/internal/rand"
	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/logger"
	"github.com/Etesie/fauna-typed/pkg/models"
)

const queryPath = "/query/1"

// QueryRequest is the body of a query call.
type QueryRequest struct {
	Query string `json:"query"`
}

// HTTPConnection sends FQL queries to the service and decodes tagged
// responses.
type HTTPConnection struct {
	conf       Config
	httpClient *http.Client
	logger     logger.Logger
}

func NewHTTPConnection(conf *Config) *HTTPConnection {
	c := *conf
	con := &HTTPConnection{conf: c, httpClient: c.HTTPClient, logger: c.Logger}
	if con.httpClient == nil {
		con.httpClient = &http.Client{Timeout: c.Timeout}
	}
	if con.logger == nil {
		con.logger = logger.Nop()
	}
	return con
}

// Connect checks the configuration and verifies the secret with a trivial
// query.
func (h *HTTPConnection) Connect(ctx context.Context) error {
	if err := h.conf.preConnectionChecks(); err != nil {
		return err
	}
	_, err := h.Query(ctx, "0")
	return err
}

func (h *HTTPConnection) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}

func (h *HTTPConnection) SetHTTPClient(client *http.Client) *HTTPConnection {
	h.httpClient = client
	return h
}

func (h *HTTPConnection) BaseURL() string { return h.conf.BaseURL }

func (h *HTTPConnection) Secret() string { return h.conf.Secret }

func (h *HTTPConnection) Logger() logger.Logger { return h.logger }

// Query runs fql and returns the decoded "data" of the response. Transient
// failures are retried with the configured Retryer.
func (h *HTTPConnection) Query(ctx context.Context, fql string) (any, error) {
	return h.query(ctx, fql, h.conf.Retryer)
}

// QueryOnce is Query without retries, for writes that must not be sent
// twice.
func (h *HTTPConnection) QueryOnce(ctx context.Context, fql string) (any, error) {
	return h.query(ctx, fql, NoRetry{})
}

func (h *HTTPConnection) query(ctx context.Context, fql string, retryer Retryer) (any, error) {
	if err := h.conf.preConnectionChecks(); err != nil {
		return nil, err
	}
	body, err := h.conf.Marshaler.Marshal(QueryRequest{Query: fql})
	if err != nil {
		return nil, err
	}

	requestID := rand.NewRequestID(constants.RequestIDLength)
	var result any
	err = Retry(ctx, retryer, func() error {
		respData, err := h.send(ctx, body, requestID)
		if err != nil {
			h.logger.Debug("query attempt failed", "request_id", requestID, "query", fql, "error", err)
			return err
		}
		result, err = h.decodeData(respData)
		return err
	})
	return result, err
}

func (h *HTTPConnection) send(ctx context.Context, body []byte, requestID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.conf.BaseURL+queryPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+h.conf.Secret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Format", "tagged")
	req.Header.Set("X-Query-Tags", "request_id="+requestID)

	return h.MakeRequest(req)
}

// MakeRequest performs req and returns the body of a 2xx response. Other
// statuses become a *QueryError; network failures are transient.
func (h *HTTPConnection) MakeRequest(req *http.Request) ([]byte, error) {
	resp, err := h.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", constants.ErrTransient, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			h.logger.Warn("closing response body", "error", err)
		}
	}()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", constants.ErrTransient, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBytes, nil
	}
	return nil, parseQueryError(resp.StatusCode, respBytes)
}

func (h *HTTPConnection) decodeData(respData []byte) (any, error) {
	raw, typ, _, err := jsonparser.Get(respData, "data")
	if err != nil {
		if typ == jsonparser.NotExist {
			return nil, fmt.Errorf("%w: response without data", constants.ErrMalformed)
		}
		return nil, fmt.Errorf("%w: %v", constants.ErrMalformed, err)
	}
	if typ == jsonparser.String {
		// Get strips the quotes of string values.
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", constants.ErrMalformed, err)
		}
		return s, nil
	}
	var tree any
	if err := h.conf.Unmarshaler.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrMalformed, err)
	}
	return models.Untag(tree)
}
