package daemon

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/karolberezicki/content-search-lucene/internal/document"
	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
	"github.com/karolberezicki/content-search-lucene/internal/indexing"
	"github.com/karolberezicki/content-search-lucene/internal/search"
	"github.com/karolberezicki/content-search-lucene/internal/service"
)

// Client talks to a running daemon. Each call opens its own connection.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new daemon client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    timeout,
	}
}

// Connect establishes a connection to the daemon.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, cserrors.New(cserrors.ErrCodeDaemonUnavailable, "failed to connect to daemon", err).
			WithDetail("socket", c.socketPath).
			WithSuggestion("Start the daemon with 'contentsearch serve'")
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var res PingResult
	return c.call(ctx, MethodPing, nil, &res)
}

// Status retrieves daemon status.
func (c *Client) Status(ctx context.Context) (StatusResult, error) {
	var res StatusResult
	err := c.call(ctx, MethodStatus, nil, &res)
	return res, err
}

// Update queues requests in order and returns how many were queued.
func (c *Client) Update(ctx context.Context, reqs ...document.ChangeRequest) (int, error) {
	var res UpdateResult
	err := c.call(ctx, MethodUpdate, UpdateParams{Requests: reqs}, &res)
	return res.Queued, err
}

// Search runs a search on the daemon.
func (c *Client) Search(ctx context.Context, req search.Request) (search.Results, error) {
	params, err := NewSearchParams(req)
	if err != nil {
		return search.Results{}, err
	}
	var res search.Results
	err = c.call(ctx, MethodSearch, params, &res)
	return res, err
}

// Indexes lists the open named indexes.
func (c *Client) Indexes(ctx context.Context) ([]string, error) {
	var res IndexesResult
	err := c.call(ctx, MethodIndexes, nil, &res)
	return res.Names, err
}

// Reset empties a named index.
func (c *Client) Reset(ctx context.Context, name string) error {
	var res struct{}
	return c.call(ctx, MethodReset, ResetParams{Name: name}, &res)
}

// TruncateQueue discards every queued request.
func (c *Client) TruncateQueue(ctx context.Context) (int64, error) {
	var res TruncateResult
	err := c.call(ctx, MethodQueueTruncate, nil, &res)
	return res.Discarded, err
}

// ProcessQueue applies every queued request and waits for the drain.
func (c *Client) ProcessQueue(ctx context.Context) (indexing.Report, error) {
	var res indexing.Report
	err := c.call(ctx, MethodQueueProcess, nil, &res)
	return res, err
}

// QueueStatus reports pending work.
func (c *Client) QueueStatus(ctx context.Context) (service.QueueStatus, error) {
	var res service.QueueStatus
	err := c.call(ctx, MethodQueueStatus, nil, &res)
	return res, err
}

// call sends one request and decodes its result into out. The deadline is
// the context's when it has one, the client timeout otherwise.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		ID:      uuid.NewString(),
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode %s params: %w", method, err)
		}
		req.Params = data
	}

	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return transportError(method, "failed to send request", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return transportError(method, "failed to receive response", err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("%s: response id %q does not match request %q", method, resp.ID, req.ID)
	}
	if resp.Error != nil {
		return remoteError(method, resp.Error)
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func transportError(method, msg string, err error) error {
	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		return cserrors.New(cserrors.ErrCodeDaemonTimeout, method+": "+msg, err)
	}
	return cserrors.New(cserrors.ErrCodeDaemonUnavailable, method+": "+msg, err)
}

// remoteError turns a response error back into a service error when the
// daemon reported one.
func remoteError(method string, e *Error) error {
	if e.Data != nil && e.Data.Code != "" {
		se := cserrors.New(e.Data.Code, e.Message, nil)
		for k, v := range e.Data.Details {
			se.WithDetail(k, v)
		}
		if e.Data.Suggestion != "" {
			se.WithSuggestion(e.Data.Suggestion)
		}
		return se
	}
	return fmt.Errorf("%s failed: %s (code: %d)", method, e.Message, e.Code)
}
