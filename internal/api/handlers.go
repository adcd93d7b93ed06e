package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"healthsync/internal/domain/credential"
	"healthsync/internal/provider"

	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 1 << 20

type Handlers struct {
	registry    *provider.Registry
	credentials credential.Store
	logger      *slog.Logger
}

func NewHandlers(registry *provider.Registry, credentials credential.Store, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{registry: registry, credentials: credentials, logger: logger}
}

// VerifyWebhook answers the subscriber verification handshake: 204 for a configured code,
// 404 otherwise.
func (h *Handlers) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	push, err := h.registry.Push(chi.URLParam(r, "provider"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if !push.IsValidVerificationCode(r.URL.Query().Get("verify")) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReceiveWebhook queues a notification delivery. A body that is not valid JSON queues nothing.
func (h *Handlers) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	push, err := h.registry.Push(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("webhook body too large", "provider", name, "limit", tooLarge.Limit)
			writeError(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		h.logger.Warn("webhook body is not valid JSON", "provider", name, "error", err)
		body = nil
	}

	receipt, err := push.IngestNotifications(r.Context(), body)
	if err != nil {
		h.logger.Error("failed to ingest notifications", "provider", name, "error", err)
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// Connect stores a token handed over by the external authorization flow.
func (h *Handlers) Connect(w http.ResponseWriter, r *http.Request) {
	kind, err := provider.ParseKind(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	userID := chi.URLParam(r, "user_id")

	var tok credential.Token
	if err := json.NewDecoder(r.Body).Decode(&tok); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		writeError(w, http.StatusBadRequest, "access_token is required")
		return
	}

	if err := h.credentials.Put(r.Context(), string(kind), userID, tok); err != nil {
		h.logger.Error("failed to store credentials", "provider", kind, "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "connected",
		"provider": string(kind),
		"user_id":  userID,
	})
}

// GetData returns raw provider payloads for the requested metrics.
func (h *Handlers) GetData(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	userID := chi.URLParam(r, "user_id")

	pull, err := h.registry.Pull(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	kind, _ := provider.ParseKind(name)

	tok, err := h.credentials.Get(r.Context(), string(kind), userID)
	if err != nil {
		h.logger.Error("failed to load credentials", "provider", kind, "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load credentials")
		return
	}
	if tok == nil {
		writeError(w, http.StatusNotFound, "no credentials stored for user")
		return
	}

	q := r.URL.Query()
	metrics, err := pull.FetchMetrics(r.Context(), provider.PullRequest{
		UserID:    userID,
		Token:     *tok,
		Metrics:   splitList(q.Get("metrics")),
		Start:     q.Get("start"),
		End:       q.Get("end"),
		TimeStart: q.Get("time_start"),
		TimeEnd:   q.Get("time_end"),
	})
	switch {
	case errors.Is(err, provider.ErrNotSupported):
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	case err != nil:
		h.logger.Warn("provider pull failed", "provider", kind, "user_id", userID, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"provider": kind,
		"user_id":  userID,
		"metrics":  metrics,
	})
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
