package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Mindburn-Labs/returns-core/pkg/audit"
	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
	"github.com/Mindburn-Labs/returns-core/pkg/orchestrator"
	"github.com/Mindburn-Labs/returns-core/pkg/ratelimit"
)

// maxBodyBytes caps step request bodies. Arguments are small structured
// JSON; anything larger is not a legitimate step.
const maxBodyBytes = 64 * 1024

// Server exposes the orchestrator over HTTP. It owns no business logic:
// every decision is delegated to the orchestrator and its collaborators.
type Server struct {
	orch     *orchestrator.Orchestrator
	auditLog audit.Log
	limiter  ratelimit.LimiterStore
	policy   ratelimit.Policy
	logger   *slog.Logger
}

// NewServer wires the HTTP layer. limiter may be nil, which disables
// per-session rate limiting (tests, embedded use).
func NewServer(orch *orchestrator.Orchestrator, auditLog audit.Log, limiter ratelimit.LimiterStore, policy ratelimit.Policy, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		orch:     orch,
		auditLog: auditLog,
		limiter:  limiter,
		policy:   policy,
		logger:   logger,
	}
}

// Handler builds the routed handler with the standard middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/steps", s.handleStep)
	mux.HandleFunc("GET /v1/sessions/{session_id}/audit", s.handleAudit)
	mux.HandleFunc("GET /v1/sessions/{session_id}/audit/verify", s.handleAuditVerify)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleNotFound)

	var h http.Handler = mux
	h = AccessLog(s.logger)(h)
	h = Recover(s.logger)(h)
	h = RequestID(h)
	return h
}

// handleStep executes one orchestrator step. A failed step is still a 200:
// the failure is part of the structured result, not a transport error.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req contracts.StepRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteBadRequest(w, "malformed step request: "+err.Error())
		return
	}
	if req.SessionID == "" {
		WriteBadRequest(w, "session_id is required")
		return
	}
	if req.Op == "" {
		WriteBadRequest(w, "op is required")
		return
	}

	if s.limiter != nil {
		if err := ratelimit.Check(r.Context(), s.limiter, req.SessionID, s.policy); err != nil {
			if errors.Is(err, ratelimit.ErrLimited) {
				WriteTooManyRequests(w, 1)
				return
			}
			WriteInternal(w, err)
			return
		}
	}

	res, err := s.orch.Execute(r.Context(), req)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAudit returns the full ordered audit trail for one session.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	entries, err := s.auditLog.Session(r.Context(), sessionID)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"entries":    entries,
	})
}

// handleAuditVerify re-walks the session's hash chain.
func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	err := s.auditLog.VerifyChain(r.Context(), sessionID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": sessionID,
			"valid":      true,
		})
	case errors.Is(err, audit.ErrChainBroken):
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": sessionID,
			"valid":      false,
			"detail":     err.Error(),
		})
	default:
		WriteInternal(w, err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteNotFound(w, "no such endpoint: "+r.URL.Path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
