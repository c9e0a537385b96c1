// Package triageapi exposes batch submission and results over HTTP.
package triageapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/fbtriage/internal/triage"
)

// TriageService defines the business operations triageapi needs.
type TriageService interface {
	Submit(ctx context.Context, source string, items []triage.FeedbackItem) (*triage.SubmitResult, error)
	Get(ctx context.Context, id string) (*triage.Batch, bool, error)
	Status() triage.RemoteStatus
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", a.handleStatus)
		r.Post("/batches", a.handleSubmit)
		r.Get("/batches/{id}", a.handleGetBatch)
		r.Get("/batches/{id}/table", a.handleTable)
		r.Get("/batches/{id}/export", a.handleExport)
	})
}

func (a *API) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Status())
}

// loadBatch fetches the batch named in the route and writes the error
// response itself when it cannot.
func (a *API) loadBatch(w http.ResponseWriter, r *http.Request) (*triage.Batch, bool) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("fbtriage.batch.id", id))

	b, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get batch", "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}

	span.SetAttributes(attribute.String("fbtriage.batch.status", string(b.Status)))
	return b, true
}

func (a *API) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, ok := a.loadBatch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type tableResponse struct {
	ID      string         `json:"batch_id"`
	Status  triage.Status  `json:"status"`
	Rows    []triage.Row   `json:"rows"`
	Summary triage.Summary `json:"summary"`
}

func (a *API) handleTable(w http.ResponseWriter, r *http.Request) {
	b, ok := a.loadBatch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tableResponse{
		ID:      b.ID,
		Status:  b.Status,
		Rows:    triage.Rows(b.Records),
		Summary: triage.Summarize(b.Records),
	})
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	b, ok := a.loadBatch(w, r)
	if !ok {
		return
	}
	if b.Status != triage.StatusComplete && b.Status != triage.StatusFailed {
		writeError(w, http.StatusConflict, "batch not finished")
		return
	}

	data, err := triage.Export(b.Records)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to export batch", "id", b.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+triage.ExportFileName(b.ID)+`"`)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
