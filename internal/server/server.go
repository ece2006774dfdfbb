// Package server 以 HTTP 暴露状态机分组
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/junbin-yang/go-fsmkit/pkg/logger"
	"github.com/junbin-yang/go-fsmkit/pkg/statemachine"
)

// Server 路由处理器。分组可在运行中整体替换（定义文件热重载）
type Server struct {
	group       atomic.Pointer[statemachine.Group]
	log         logger.Logger
	metrics     http.Handler
	metricsPath string
}

// Option 服务选项
type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics 在 path 上挂载指标处理器
func WithMetrics(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metrics = h
	}
}

func New(g *statemachine.Group, opts ...Option) *Server {
	s := &Server{
		log:         logger.Default(),
		metricsPath: "/metrics",
	}
	s.group.Store(g)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetGroup 替换分组，进行中的请求继续使用旧分组
func (s *Server) SetGroup(g *statemachine.Group) {
	s.group.Store(g)
}

// Group 当前分组
func (s *Server) Group() *statemachine.Group {
	return s.group.Load()
}

// Handler 构造路由
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Route("/machines", func(r chi.Router) {
		r.Get("/", s.listMachines)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.getMachine)
			r.Get("/history", s.getHistory)
			r.Post("/fire/{transition}", s.fire)
			r.Post("/cancel", s.cancel)
		})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, s.metricsPath, s.metrics)
	}
	return r
}

type machineView struct {
	Name        string              `json:"name"`
	Record      statemachine.Record `json:"record"`
	State       statemachine.State  `json:"state"`
	Transitions []string            `json:"transitions"`
	Available   []string            `json:"available"`
}

type fireRequest struct {
	Args []any `json:"args"`
}

type fireResponse struct {
	Machine machineView `json:"machine"`
	Ignored bool        `json:"ignored"`
}

type eventView struct {
	Transition string                `json:"transition"`
	Attempt    string                `json:"attempt,omitempty"`
	Type       statemachine.ExecType `json:"type"`
	Outcome    statemachine.Outcome  `json:"outcome"`
	Record     statemachine.Record   `json:"record"`
	Error      string                `json:"error,omitempty"`
	DurationMs int64                 `json:"duration_ms"`
	Time       time.Time             `json:"time"`
}

func view(m *statemachine.Machine) machineView {
	v := machineView{
		Name:        m.Name(),
		Record:      m.Record(),
		State:       m.GetState(),
		Transitions: m.Transitions(),
		Available:   []string{},
	}
	for _, name := range v.Transitions {
		if m.Can(name) {
			v.Available = append(v.Available, name)
		}
	}
	return v
}

func (s *Server) listMachines(w http.ResponseWriter, r *http.Request) {
	g := s.Group()
	out := make([]machineView, 0, g.Len())
	for _, name := range g.Names() {
		if m, ok := g.Get(name); ok {
			out = append(out, view(m))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) machine(w http.ResponseWriter, r *http.Request) (*statemachine.Machine, bool) {
	name := chi.URLParam(r, "name")
	m, ok := s.Group().Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, statemachine.ErrMachineNotFound)
	}
	return m, ok
}

func (s *Server) getMachine(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view(m))
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	history := m.History()
	out := make([]eventView, 0, len(history))
	for _, ev := range history {
		ew := eventView{
			Transition: ev.Transition,
			Attempt:    ev.Attempt,
			Type:       ev.Type,
			Outcome:    ev.Outcome,
			Record:     ev.Record,
			DurationMs: ev.Duration.Milliseconds(),
			Time:       ev.Time,
		}
		if ev.Err != nil {
			ew.Error = ev.Err.Error()
		}
		out = append(out, ew)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) fire(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	transition := chi.URLParam(r, "transition")

	var req fireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ignored := !m.Can(transition)
	if err := m.Fire(r.Context(), transition, req.Args...); err != nil {
		s.log.Warn("fire failed",
			logger.String("machine", m.Name()),
			logger.String("transition", transition),
			logger.Err(err),
		)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, fireResponse{Machine: view(m), Ignored: ignored})
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	cancelled := m.Cancel()
	writeJSON(w, http.StatusOK, map[string]any{
		"cancelled": cancelled,
		"machine":   view(m),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, statemachine.ErrUnknownTransition), errors.Is(err, statemachine.ErrMachineNotFound):
		return http.StatusNotFound
	case statemachine.IsInvalidTransitionError(err):
		return http.StatusConflict
	case statemachine.IsHookError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Duration("elapsed", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
