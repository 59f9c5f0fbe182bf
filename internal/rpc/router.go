// Package rpc exposes typed procedures over HTTP.
//
// Queries are served on GET, mutations on POST, both at <base>/<name>.
// Every response uses one envelope:
//
//	{"result":{"data":...}}
//	{"error":{"code":"...","message":"...","httpStatus":400,"path":"plans.create"}}
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Guard runs before a procedure decodes its input. A non-nil error aborts
// the call.
type Guard func(ctx context.Context) error

// Router holds the registered procedures.
type Router struct {
	mux     chi.Router
	log     *zap.Logger
	mappers []ErrorMapper
}

func NewRouter(log *zap.Logger, mappers ...ErrorMapper) *Router {
	rt := &Router{mux: chi.NewRouter(), log: log, mappers: mappers}
	rt.mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rt.writeError(w, r, procedureName(r), NewError(CodeNotFound, "No such procedure", nil))
	})
	rt.mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		rt.writeError(w, r, procedureName(r), NewError(CodeMethodNotSupported, "Unsupported method "+r.Method, nil))
	})
	return rt
}

// ServeHTTP lets the router be mounted under any prefix.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

// Query registers a read-only procedure without input.
func Query[Out any](rt *Router, name string, fn func(ctx context.Context) (Out, error), guards ...Guard) {
	rt.mux.Get("/"+name, func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := runGuards(ctx, guards); err != nil {
			rt.writeError(w, r, name, err)
			return
		}
		out, err := fn(ctx)
		if err != nil {
			rt.writeError(w, r, name, err)
			return
		}
		rt.writeResult(w, out)
	})
}

// Mutation registers a procedure that takes a JSON input.
func Mutation[In, Out any](rt *Router, name string, decode func(r io.Reader) (In, error), fn func(ctx context.Context, in In) (Out, error), guards ...Guard) {
	rt.mux.Post("/"+name, func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := runGuards(ctx, guards); err != nil {
			rt.writeError(w, r, name, err)
			return
		}
		in, err := decode(r.Body)
		if err != nil {
			rt.writeError(w, r, name, err)
			return
		}
		out, err := fn(ctx, in)
		if err != nil {
			rt.writeError(w, r, name, err)
			return
		}
		rt.writeResult(w, out)
	})
}

func runGuards(ctx context.Context, guards []Guard) error {
	for _, g := range guards {
		if err := g(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Router) writeResult(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"result": map[string]any{"data": data},
	})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, name string, err error) {
	rpcErr := rt.toRPCError(err)
	status := rpcErr.Code.HTTPStatus()

	fields := []zap.Field{
		zap.String("procedure", name),
		zap.String("code", string(rpcErr.Code)),
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		rt.log.Error("procedure failed", fields...)
	} else {
		rt.log.Debug("procedure rejected", fields...)
	}

	for k, vs := range rpcErr.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	writeJSON(w, status, map[string]any{
		"error": errorBody{
			Code:        rpcErr.Code,
			Message:     rpcErr.Message,
			HTTPStatus:  status,
			Path:        name,
			FieldErrors: rpcErr.FieldErrors,
		},
	})
}

func (rt *Router) toRPCError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	for _, m := range rt.mappers {
		if mapped := m(err); mapped != nil {
			return mapped
		}
	}
	return NewError(CodeInternal, "Internal server error", err)
}

func procedureName(r *http.Request) string {
	path := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePath != "" {
		path = rctx.RoutePath
	}
	return strings.TrimPrefix(path, "/")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
