package api

import (
	"net/http"

	"healthsync/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/webhooks/{provider}", h.VerifyWebhook)
	r.Post("/webhooks/{provider}", h.ReceiveWebhook)

	r.Post("/connect/{provider}/{user_id}", h.Connect)
	r.Get("/data/{provider}/{user_id}", h.GetData)

	r.Handle("/metrics", promhttp.Handler())

	return r
}
