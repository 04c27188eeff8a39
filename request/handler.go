// Package request is the entry point of the engine: it authorizes client
// operations, compiles them into query graphs, runs them on a connector and
// serializes their results.
package request

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/qengine"
	"github.com/syssam/qengine/builder"
	"github.com/syssam/qengine/connector"
	"github.com/syssam/qengine/document"
	"github.com/syssam/qengine/executor"
	"github.com/syssam/qengine/privacy"
)

// DefaultConcurrency is the number of operations of a non transactional
// batch running at the same time.
const DefaultConcurrency = 8

// Handler handles client requests.
type Handler struct {
	conn     connector.Connector
	schema   *builder.QuerySchema
	policies privacy.ModelPolicies
	log      *slog.Logger
	limit    int
}

// Option configures a Handler.
type Option func(*Handler)

// WithPolicies sets the privacy policies evaluated before building the
// graph of an operation.
func WithPolicies(p privacy.ModelPolicies) Option {
	return func(h *Handler) {
		h.policies = p
	}
}

// WithLogger sets the logger of the handler and of its executors.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.log = l
	}
}

// WithConcurrency sets the number of operations of a non transactional
// batch running at the same time. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.limit = n
		}
	}
}

// NewHandler returns a handler running operations compiled with s on conn.
func NewHandler(conn connector.Connector, s *builder.QuerySchema, opts ...Option) *Handler {
	h := &Handler{conn: conn, schema: s, log: slog.Default(), limit: DefaultConcurrency}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle handles a decoded request. It returns a *BatchResponse for batches
// and a *Response otherwise.
func (h *Handler) Handle(ctx context.Context, req *document.Request) any {
	if len(req.Batch) > 0 {
		return h.HandleBatch(ctx, req.Batch, req.Transactional)
	}
	return h.HandleOperation(ctx, &req.Operation)
}

// HandleOperation runs a single operation. Operations whose graph needs a
// transaction run in their own one. Panics are reported as internal errors.
func (h *Handler) HandleOperation(ctx context.Context, op *document.Operation) (resp *Response) {
	defer func() {
		if v := recover(); v != nil {
			h.log.ErrorContext(ctx, "operation panicked", "action", op.Action, "model", op.Model, "panic", v)
			resp = failure(&qengine.InternalError{Value: v})
		}
	}()
	start := time.Now()
	data, err := h.run(ctx, h.conn, op, false)
	if err != nil {
		h.log.DebugContext(ctx, "operation failed", "action", op.Action, "model", op.Model, "error", err)
		return failure(err)
	}
	h.log.DebugContext(ctx, "operation done", "action", op.Action, "model", op.Model, "duration", time.Since(start))
	return &Response{Data: map[string]any{name(op): data}}
}

// HandleBatch runs a batch of operations. A transactional batch runs its
// operations in order inside one transaction and fails as a whole. The
// operations of other batches run concurrently and fail individually.
func (h *Handler) HandleBatch(ctx context.Context, ops []document.Operation, transactional bool) *BatchResponse {
	if transactional {
		return h.transactionalBatch(ctx, ops)
	}
	out := &BatchResponse{Batch: make([]*Response, len(ops))}
	var eg errgroup.Group
	eg.SetLimit(h.limit)
	for i := range ops {
		eg.Go(func() error {
			out.Batch[i] = h.HandleOperation(ctx, &ops[i])
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

func (h *Handler) transactionalBatch(ctx context.Context, ops []document.Operation) (resp *BatchResponse) {
	defer func() {
		if v := recover(); v != nil {
			h.log.ErrorContext(ctx, "batch panicked", "panic", v)
			resp = &BatchResponse{Errors: []Error{errorOf(&qengine.InternalError{Value: v})}}
		}
	}()
	data := make([]any, len(ops))
	err := h.transact(ctx, func(tx connector.Queryable) error {
		for i := range ops {
			v, err := h.run(ctx, tx, &ops[i], true)
			if err != nil {
				return fmt.Errorf("request: batch operation %d (%s): %w", i, name(&ops[i]), err)
			}
			data[i] = v
		}
		return nil
	})
	if err != nil {
		h.log.DebugContext(ctx, "batch rolled back", "error", err)
		return &BatchResponse{Errors: []Error{errorOf(err)}}
	}
	out := &BatchResponse{Batch: make([]*Response, len(ops))}
	for i := range ops {
		out.Batch[i] = &Response{Data: map[string]any{name(&ops[i]): data[i]}}
	}
	return out
}

// run authorizes, builds, executes and serializes op on q. Graphs needing
// a transaction get one unless q already is one.
func (h *Handler) run(ctx context.Context, q connector.Queryable, op *document.Operation, inTx bool) (any, error) {
	cp := *op
	if h.policies != nil {
		if err := h.policies.Eval(ctx, &cp); err != nil {
			return nil, err
		}
	}
	g, err := builder.Build(h.schema, &cp)
	if err != nil {
		return nil, err
	}
	if g.NeedsTransaction() && !inTx {
		var data any
		err := h.transact(ctx, func(tx connector.Queryable) error {
			res, err := executor.New(tx, executor.WithLogger(h.log)).Execute(ctx, g)
			if err != nil {
				return err
			}
			data, err = serialize(res)
			return err
		})
		return data, err
	}
	res, err := executor.New(q, executor.WithLogger(h.log)).Execute(ctx, g)
	if err != nil {
		return nil, err
	}
	return serialize(res)
}

// transact runs fn in a transaction, committing it if fn succeeds and
// rolling it back otherwise.
func (h *Handler) transact(ctx context.Context, fn func(connector.Queryable) error) error {
	tx, err := h.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("request: begin transaction: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return qengine.NewAggregateError(err, &qengine.RollbackError{Err: rerr})
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("request: commit transaction: %w", err)
	}
	return nil
}

// ServeHTTP decodes a JSON request from the body and writes its response.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, err := document.Decode(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &Response{Errors: []Error{{Kind: KindInvalidInput, Message: err.Error()}}})
		return
	}
	writeJSON(w, http.StatusOK, h.Handle(r.Context(), req))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// name is the key of the operation result in the response data.
func name(op *document.Operation) string {
	return string(op.Action) + op.Model
}

func failure(err error) *Response {
	return &Response{Errors: []Error{errorOf(err)}}
}
