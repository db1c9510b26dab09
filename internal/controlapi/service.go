// Package controlapi exposes the core plan-generation, validation, and
// execution pipeline as a long-lived HTTP + WebSocket service.
package controlapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	core "github.com/aqa-systems/brain/internal/app/core/service"
	"github.com/aqa-systems/brain/internal/generator"
	"github.com/aqa-systems/brain/internal/history"
	"github.com/aqa-systems/brain/internal/orchestrator"
	"github.com/aqa-systems/brain/internal/validator"
	"github.com/aqa-systems/brain/internal/versionstore"
	"github.com/aqa-systems/brain/internal/workspace"
	"github.com/aqa-systems/brain/pkg/logger"
)

// Server bundles every dependency the control API's handlers need. It holds
// no request-scoped mutable state of its own besides the audit ring and
// metrics collectors, both already internally synchronized.
type Server struct {
	Generator    *generator.Generator
	Validator    *validator.Validator
	Orchestrator *orchestrator.Orchestrator
	History      history.Backend
	Versions     versionstore.Store
	Workspace    workspace.Config

	CacheDir   string
	HistoryDir string

	log     *logger.Logger
	metrics *metrics
	audit   *auditLog
}

// Service wires a Server into a long-lived *http.Server following the same
// addr/Start/Stop lifecycle shape the rest of the application's background
// services use.
type Service struct {
	addr    string
	server  *http.Server
	handler http.Handler
	log     *logger.Logger
	srv     *Server
}

// NewService constructs the control API service listening on addr.
func NewService(srv *Server, addr string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("controlapi")
	}
	srv.log = log
	srv.metrics = newMetrics()

	var sink auditSink
	if path := strings.TrimSpace(os.Getenv("AQA_AUDIT_LOG_PATH")); path != "" {
		if s, err := newFileAuditSink(path); err == nil {
			sink = s
		} else {
			log.Warnf("audit log file not configured: %v", err)
		}
	}
	srv.audit = newAuditLog(300, sink)

	handler := srv.routes()
	// Order matters: correlation id must exist before anything logs or
	// errors reference it; audit records after the handler has run;
	// CORS short-circuits preflight before any of that; metrics wraps
	// the outermost surface so every response (incl. CORS preflights) counts.
	handler = wrapWithAudit(srv.audit, handler)
	handler = wrapWithRequestID(handler)
	handler = wrapWithCORS(handler)
	handler = srv.metrics.instrument(handler)

	return &Service{addr: addr, handler: handler, log: log, srv: srv}
}

func (s *Service) Name() string { return "controlapi" }

// Descriptor reports which downstream surfaces this instance actually
// exposes, so the lifecycle manager's startup summary reflects how the
// Server was wired rather than a fixed capability list.
func (s *Service) Descriptor() core.Descriptor {
	caps := []string{"http", "websocket"}
	if s.srv.History != nil {
		caps = append(caps, "history")
	}
	if s.srv.Versions != nil {
		caps = append(caps, "plan-versions")
	}
	return core.Descriptor{Name: s.Name(), Domain: "controlapi", Layer: core.LayerIngress}.
		WithCapabilities(caps...)
}

func (s *Service) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: orchestrator.DefaultTimeout + 30*time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("control api server error: %v", err)
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// routes assembles the full ServeMux. Path parameters are parsed by hand
// (strings.TrimPrefix) rather than via a router dependency, matching how
// the rest of the application's HTTP surface is built.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/admin/audit", s.handleAdminAudit)

	mux.HandleFunc("/generate", s.handleGenerate)
	mux.HandleFunc("/validate", s.handleValidate)
	mux.HandleFunc("/execute", s.handleExecute)

	mux.HandleFunc("/history", s.handleHistoryList)
	mux.HandleFunc("/history/stats", s.handleHistoryStats)
	mux.HandleFunc("/history/", s.handleHistoryItem)

	mux.HandleFunc("/plans", s.handlePlansList)
	mux.HandleFunc("/plans/", s.handlePlanItem)

	mux.HandleFunc("/workspace/init", s.handleWorkspaceInit)
	mux.HandleFunc("/workspace/status", s.handleWorkspaceStatus)

	mux.HandleFunc("/ws/execute", s.handleWSExecute)

	return mux
}

func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 200)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"entries": s.audit.listLimit(offset, limit),
	})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// decodeOptionalJSON decodes r's body into dst if present, tolerating an
// empty body for endpoints whose request payload is entirely optional.
func decodeOptionalJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		return err
	}
	return nil
}
