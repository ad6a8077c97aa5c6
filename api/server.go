// Package api serves tickets and solutions over HTTP.
package api

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/fixdesk/remotedesk"
	"github.com/fixdesk/remotedesk/metrics"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/fixdesk/remotedesk/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

type Server struct {
	logger  shared.LoggerAdapter
	repo    store.Repository
	metrics *metrics.Collector
	promH   fasthttp.RequestHandler
	srv     *fasthttp.Server
}

// NewServer builds the HTTP surface over repo. m may be nil, in which case
// /metrics answers 404.
func NewServer(logger shared.LoggerAdapter, repo store.Repository, m *metrics.Collector) (*Server, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if repo == nil {
		return nil, shared.ErrNoStore
	}
	s := &Server{
		logger:  logger.With(zap.String("component", "api")),
		repo:    repo,
		metrics: m,
	}
	if m != nil {
		s.promH = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{}))
	}
	s.srv = &fasthttp.Server{
		Handler: s.Handler,
		Name:    "remotedesk/" + shared.Version,
	}
	return s, nil
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("api listening", zap.String("address", ln.Addr().String()))
	return s.srv.Serve(ln)
}

func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

// Handler routes a single request.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())
	route := path

	switch {
	case path == "/healthz" && method == fasthttp.MethodGet:
		s.healthz(ctx)
	case path == "/metrics" && method == fasthttp.MethodGet:
		if s.promH == nil {
			s.writeError(ctx, fasthttp.StatusNotFound, "metrics disabled")
			break
		}
		s.promH(ctx)
	case path == "/tickets":
		switch method {
		case fasthttp.MethodGet:
			s.listTickets(ctx)
		case fasthttp.MethodPost:
			s.createTicket(ctx)
		default:
			s.methodNotAllowed(ctx)
		}
	case strings.HasPrefix(path, "/tickets/"):
		route = "/tickets/{id}"
		if method != fasthttp.MethodGet {
			s.methodNotAllowed(ctx)
			break
		}
		s.getTicket(ctx, strings.TrimPrefix(path, "/tickets/"))
	case path == "/solutions":
		switch method {
		case fasthttp.MethodGet:
			s.findSolutions(ctx)
		case fasthttp.MethodPost:
			s.createSolution(ctx)
		default:
			s.methodNotAllowed(ctx)
		}
	case strings.HasPrefix(path, "/solutions/"):
		route = "/solutions/{id}"
		if method != fasthttp.MethodGet {
			s.methodNotAllowed(ctx)
			break
		}
		s.getSolution(ctx, strings.TrimPrefix(path, "/solutions/"))
	default:
		route = "other"
		s.writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
	s.metrics.APIRequest(route, strconv.Itoa(ctx.Response.StatusCode()))
}

func (s *Server) healthz(ctx *fasthttp.RequestCtx) {
	if err := s.repo.Ping(ctx); err != nil {
		s.logger.Error("store ping", err)
		s.writeError(ctx, fasthttp.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok", "version": shared.Version})
}

func (s *Server) listTickets(ctx *fasthttp.RequestCtx) {
	tickets, err := s.repo.GetTickets(ctx)
	if err != nil {
		s.writeStoreError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, tickets)
}

func (s *Server) createTicket(ctx *fasthttp.RequestCtx) {
	var t remotedesk.Ticket
	if err := sonic.Unmarshal(ctx.PostBody(), &t); err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, "invalid ticket body")
		return
	}
	created, err := s.repo.CreateTicket(ctx, t)
	if err != nil {
		s.writeStoreError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusCreated, created)
}

func (s *Server) getTicket(ctx *fasthttp.RequestCtx, id string) {
	t, err := s.repo.GetTicketByID(ctx, id)
	if err != nil {
		s.writeStoreError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, t)
}

func (s *Server) createSolution(ctx *fasthttp.RequestCtx) {
	var ns remotedesk.NewSolution
	if err := sonic.Unmarshal(ctx.PostBody(), &ns); err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, "invalid solution body")
		return
	}
	sol, err := s.repo.CreateSolution(ctx, ns)
	if err != nil {
		s.metrics.SolutionFailed()
		s.writeStoreError(ctx, err)
		return
	}
	s.metrics.SolutionSaved()
	s.writeJSON(ctx, fasthttp.StatusCreated, sol)
}

func (s *Server) findSolutions(ctx *fasthttp.RequestCtx) {
	q := string(ctx.QueryArgs().Peek("q"))
	found, err := s.repo.FindSolutions(ctx, q)
	if err != nil {
		s.writeStoreError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, found)
}

func (s *Server) getSolution(ctx *fasthttp.RequestCtx, id string) {
	sol, err := s.repo.GetSolution(ctx, id)
	if err != nil {
		s.writeStoreError(ctx, err)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, sol)
}

func (s *Server) methodNotAllowed(ctx *fasthttp.RequestCtx) {
	s.writeError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
}

func (s *Server) writeStoreError(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		s.writeError(ctx, fasthttp.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrInvalidTicket), errors.Is(err, shared.ErrInvalidSolution):
		s.writeError(ctx, fasthttp.StatusBadRequest, err.Error())
	default:
		s.logger.Error("store request failed", err, zap.ByteString("path", ctx.Path()))
		s.writeError(ctx, fasthttp.StatusInternalServerError, "storage error")
	}
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, code int, msg string) {
	s.writeJSON(ctx, code, map[string]string{"error": msg})
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, code int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error("encoding response", err)
		ctx.Error("internal error", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	ctx.SetBody(data)
}
