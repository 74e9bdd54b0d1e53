package daemon

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/karolberezicki/content-search-lucene/internal/document"
	cserrors "github.com/karolberezicki/content-search-lucene/internal/errors"
	"github.com/karolberezicki/content-search-lucene/internal/indexing"
	"github.com/karolberezicki/content-search-lucene/internal/search"
	"github.com/karolberezicki/content-search-lucene/internal/service"
)

// Handler is the service surface the server exposes.
type Handler interface {
	UpdateIndex(ctx context.Context, req document.ChangeRequest) error
	GetSearchResults(ctx context.Context, req search.Request) (search.Results, error)
	GetNamedIndexes() []string
	ResetIndex(ctx context.Context, name string) error
	TruncateQueue(ctx context.Context) (int64, error)
	ProcessQueue(ctx context.Context) (indexing.Report, error)
	QueueStatus(ctx context.Context) (service.QueueStatus, error)
	Status(ctx context.Context) (service.Status, error)
}

// StatusResult contains daemon status information.
type StatusResult struct {
	Running bool           `json:"running"`
	PID     int            `json:"pid"`
	Uptime  string         `json:"uptime"`
	Service service.Status `json:"service"`
}

// Server listens on a Unix socket and handles RPC requests.
type Server struct {
	socketPath string
	timeout    time.Duration
	listener   net.Listener
	handler    Handler
	started    time.Time

	mu       sync.Mutex
	onUpdate func()
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for h listening on the given socket path.
func NewServer(socketPath string, timeout time.Duration, h Handler) *Server {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		socketPath: socketPath,
		timeout:    timeout,
		handler:    h,
	}
}

// OnUpdate registers fn to run after every successful update call.
func (s *Server) OnUpdate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// ListenAndServe starts the server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// A previous daemon that died leaves its socket behind.
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return cserrors.New(cserrors.ErrCodeDaemonUnavailable,
			fmt.Sprintf("failed to listen on %s", s.socketPath), err)
	}
	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	slog.Info("server_listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			slog.Error("accept_failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	if err := conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		slog.Warn("connection_deadline_failed", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	start := time.Now()
	resp := s.handleRequest(ctx, req)

	_ = conn.SetWriteDeadline(time.Now().Add(s.timeout))
	if err := encoder.Encode(resp); err != nil {
		slog.Warn("response_write_failed",
			slog.String("method", req.Method),
			slog.String("error", err.Error()))
	}

	attrs := []any{
		slog.String("method", req.Method),
		slog.String("request_id", req.ID),
		slog.Duration("took", time.Since(start)),
	}
	if resp.Error != nil {
		attrs = append(attrs, slog.Int("code", resp.Error.Code), slog.String("error", resp.Error.Message))
	}
	slog.Debug("request_handled", attrs...)
}

// handleRequest dispatches a request to the handler.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}

	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})

	case MethodStatus:
		st, err := s.handler.Status(ctx)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, StatusResult{
			Running: true,
			PID:     os.Getpid(),
			Uptime:  time.Since(s.startedAt()).Round(time.Second).String(),
			Service: st,
		})

	case MethodUpdate:
		return s.handleUpdate(ctx, req)

	case MethodSearch:
		return s.handleSearch(ctx, req)

	case MethodIndexes:
		return NewSuccessResponse(req.ID, IndexesResult{Names: s.handler.GetNamedIndexes()})

	case MethodReset:
		var params ResetParams
		if resp, ok := decodeParams(req, &params); !ok {
			return resp
		}
		if params.Name == "" {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, "name is required")
		}
		if err := s.handler.ResetIndex(ctx, params.Name); err != nil {
			return errorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, struct{}{})

	case MethodQueueTruncate:
		n, err := s.handler.TruncateQueue(ctx)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, TruncateResult{Discarded: n})

	case MethodQueueProcess:
		rep, err := s.handler.ProcessQueue(ctx)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, rep)

	case MethodQueueStatus:
		st, err := s.handler.QueueStatus(ctx)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, st)

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleUpdate(ctx context.Context, req Request) Response {
	var params UpdateParams
	if resp, ok := decodeParams(req, &params); !ok {
		return resp
	}

	queued := 0
	for _, cr := range params.Requests {
		if err := s.handler.UpdateIndex(ctx, cr); err != nil {
			return errorResponse(req.ID, err)
		}
		queued++
	}
	s.mu.Lock()
	notify := s.onUpdate
	s.mu.Unlock()
	if queued > 0 && notify != nil {
		notify()
	}
	return NewSuccessResponse(req.ID, UpdateResult{Queued: queued})
}

func (s *Server) handleSearch(ctx context.Context, req Request) Response {
	var params SearchParams
	if resp, ok := decodeParams(req, &params); !ok {
		return resp
	}

	sr, err := params.SearchRequest()
	if err != nil {
		if cserrors.GetCode(err) != "" {
			return errorResponse(req.ID, err)
		}
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	results, err := s.handler.GetSearchResults(ctx, sr)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return NewSuccessResponse(req.ID, results)
}

func (s *Server) startedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		return listener.Close()
	}
	return nil
}

func decodeParams(req Request, out any) (Response, bool) {
	if len(req.Params) == 0 {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "params are required"), false
	}
	if err := json.Unmarshal(req.Params, out); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, fmt.Sprintf("failed to decode params: %v", err)), false
	}
	return Response{}, true
}

// errorResponse reports a service error with its code, or an internal
// error for anything else.
func errorResponse(id string, err error) Response {
	var se *cserrors.ServiceError
	if !stderrors.As(err, &se) {
		return NewErrorResponse(id, ErrCodeInternalError, err.Error())
	}
	resp := NewErrorResponse(id, ErrCodeServiceError, se.Message)
	resp.Error.Data = &ErrorData{
		Code:       se.Code,
		Details:    se.Details,
		Suggestion: se.Suggestion,
	}
	return resp
}
