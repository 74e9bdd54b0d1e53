package daemon

import (
	"encoding/json"
	"fmt"

	"github.com/karolberezicki/content-search-lucene/internal/document"
	"github.com/karolberezicki/content-search-lucene/internal/query"
	"github.com/karolberezicki/content-search-lucene/internal/search"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing          = "ping"
	MethodStatus        = "status"
	MethodUpdate        = "update"
	MethodSearch        = "search"
	MethodIndexes       = "indexes"
	MethodReset         = "reset"
	MethodQueueTruncate = "queue.truncate"
	MethodQueueProcess  = "queue.process"
	MethodQueueStatus   = "queue.status"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrCodeServiceError marks a failure reported by the service itself.
// The service error code travels in Error.Data.
const ErrCodeServiceError = -32000

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData carries a service error across the socket.
type ErrorData struct {
	Code       string            `json:"code"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternalError, fmt.Sprintf("failed to encode result: %v", err))
	}
	return Response{
		JSONRPC: "2.0",
		Result:  data,
		ID:      id,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// SearchParams are the parameters for the search method.
type SearchParams struct {
	// Query is the expression in its tagged JSON form.
	Query    json.RawMessage `json:"query"`
	Identity []string        `json:"identity,omitempty"`
	Indexes  []string        `json:"indexes,omitempty"`
	Page     int             `json:"page,omitempty"`
	PageSize int             `json:"pageSize,omitempty"`
}

// NewSearchParams encodes req for the wire.
func NewSearchParams(req search.Request) (SearchParams, error) {
	q, err := query.Marshal(req.Expr)
	if err != nil {
		return SearchParams{}, err
	}
	return SearchParams{
		Query:    q,
		Identity: req.Identity,
		Indexes:  req.Indexes,
		Page:     req.Page,
		PageSize: req.PageSize,
	}, nil
}

// SearchRequest decodes the params into a search request.
func (p SearchParams) SearchRequest() (search.Request, error) {
	if len(p.Query) == 0 {
		return search.Request{}, fmt.Errorf("query is required")
	}
	expr, err := query.Unmarshal(p.Query)
	if err != nil {
		return search.Request{}, err
	}
	return search.Request{
		Expr:     expr,
		Identity: p.Identity,
		Indexes:  p.Indexes,
		Page:     p.Page,
		PageSize: p.PageSize,
	}, nil
}

// UpdateParams are the parameters for the update method. Requests are
// queued in slice order.
type UpdateParams struct {
	Requests []document.ChangeRequest `json:"requests"`
}

// UpdateResult reports how many requests were queued.
type UpdateResult struct {
	Queued int `json:"queued"`
}

// ResetParams are the parameters for the reset method.
type ResetParams struct {
	Name string `json:"name"`
}

// TruncateResult reports how many queued requests were discarded.
type TruncateResult struct {
	Discarded int64 `json:"discarded"`
}

// IndexesResult lists the open named indexes.
type IndexesResult struct {
	Names []string `json:"names"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
