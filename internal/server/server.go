// Package server exposes revenue recognition over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/iwvelando/revenue-recognition/internal/config"
	"github.com/iwvelando/revenue-recognition/internal/ingest"
	"github.com/iwvelando/revenue-recognition/internal/logging"
	"github.com/iwvelando/revenue-recognition/internal/recognition"
	"github.com/iwvelando/revenue-recognition/internal/store"
	"github.com/iwvelando/revenue-recognition/pkg/constants"
	"github.com/iwvelando/revenue-recognition/pkg/output"
	"go.uber.org/zap"
)

// RunStore persists and reads recognition runs.
type RunStore interface {
	SaveRun(ctx context.Context, taxRate float64, results []recognition.Result) (int64, error)
	LatestRunID(ctx context.Context) (int64, error)
	Run(ctx context.Context, runID int64) (store.Run, error)
	MonthlyTotals(ctx context.Context, runID int64) ([]store.MonthlyTotal, error)
}

type handler struct {
	logger        *zap.Logger
	conf          config.Configuration
	runs          RunStore
	layout        output.Layout
	maxUploadSize int64
	version       string
}

// NewHandler constructs the HTTP handler that serves the recognition API.
// runs may be nil, in which case results are not persisted.
func NewHandler(logger *zap.Logger, conf config.Configuration, runs RunStore, maxUploadSize int64, version string) http.Handler {
	logger = logging.OrNop(logger)

	if maxUploadSize <= 0 {
		maxUploadSize = constants.DefaultMaxUploadSizeBytes
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{
		logger:        logger,
		conf:          conf,
		runs:          runs,
		layout:        output.NewLayout(conf.Fields),
		maxUploadSize: maxUploadSize,
		version:       trimmedVersion,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/recognize", h.handleRecognize)
		r.Get("/runs/latest", h.handleLatestRun)
		r.Get("/runs/{id}", h.handleRun)
		r.Get("/version", h.handleVersion)
	})

	return r
}

type recognizeResponse struct {
	Batches  []output.BatchView `json:"batches"`
	Warnings []string           `json:"warnings,omitempty"`
	Duration string             `json:"duration"`
	RunID    *int64             `json:"runId,omitempty"`
}

type runResponse struct {
	RunID     int64          `json:"runId"`
	CreatedAt string         `json:"createdAt"`
	TaxRate   float64        `json:"taxRate"`
	Batches   []batchSummary `json:"batches"`
	Totals    []monthlyTotal `json:"totals"`
}

type batchSummary struct {
	Key        string `json:"key"`
	Records    int    `json:"records"`
	Allocated  int    `json:"allocated"`
	Flagged    int    `json:"flagged"`
	Skipped    int    `json:"skipped"`
	Unbalanced int    `json:"unbalanced"`
	Empty      bool   `json:"empty"`
}

type monthlyTotal struct {
	Batch string  `json:"batch"`
	Month string  `json:"month"`
	Label string  `json:"label"`
	Total float64 `json:"total"`
}

func (h *handler) handleRecognize(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleRecognize"
	start := time.Now()

	outputFormat := r.URL.Query().Get("format")
	if outputFormat == "" {
		outputFormat = constants.OutputFormatJSON
	}
	if outputFormat != constants.OutputFormatJSON && outputFormat != constants.OutputFormatCSV {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", outputFormat), op)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	data, err := h.readDocument(r)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds limit of %d bytes", h.maxUploadSize), op)
			return
		}
		h.respondError(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	batches, err := ingest.Decode(bytes.NewReader(data))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid batch document: %v", err), op)
		return
	}

	results, err := recognition.Recognize(r.Context(), h.logger, h.conf, batches)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, fmt.Sprintf("recognition failed: %v", err), op)
		return
	}

	var runID *int64
	if h.runs != nil {
		id, err := h.runs.SaveRun(r.Context(), h.conf.Rate(), results)
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store run: %v", err), op)
			return
		}
		runID = &id
	}

	if outputFormat == constants.OutputFormatCSV {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		if runID != nil {
			w.Header().Set("X-Run-Id", strconv.FormatInt(*runID, 10))
		}
		if err := output.CsvFormat(w, results, h.layout); err != nil {
			h.logger.Error("failed to write CSV response",
				zap.String("op", op),
				zap.Error(err),
			)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, recognizeResponse{
		Batches:  output.Views(results, h.layout),
		Warnings: warnings(results),
		Duration: time.Since(start).String(),
		RunID:    runID,
	})
}

// readDocument returns the uploaded batch document: the multipart field
// "file", or the raw request body otherwise.
func (h *handler) readDocument(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, errors.New("empty request body")
		}
		return data, nil
	}

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to parse upload: %w", err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("missing batch document file")
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			h.logger.Warn("failed to close uploaded file",
				zap.String("op", "server.readDocument"),
				zap.Error(closeErr),
			)
		}
	}()

	return io.ReadAll(file)
}

func warnings(results []recognition.Result) []string {
	var out []string
	for _, result := range results {
		if result.Summary.Empty {
			out = append(out, fmt.Sprintf("%s: batch has no records", result.Key))
		}
		for _, issue := range result.Summary.Issues {
			out = append(out, fmt.Sprintf("%s: %v", result.Key, issue))
		}
	}
	return out
}

func (h *handler) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleLatestRun"
	if h.runs == nil {
		h.respondError(w, http.StatusNotFound, "run store is not configured", op)
		return
	}

	runID, err := h.runs.LatestRunID(r.Context())
	if err != nil {
		h.respondStoreError(w, err, op)
		return
	}
	h.respondRun(w, r, runID, op)
}

func (h *handler) handleRun(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleRun"
	if h.runs == nil {
		h.respondError(w, http.StatusNotFound, "run store is not configured", op)
		return
	}

	runID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || runID < 1 {
		h.respondError(w, http.StatusBadRequest, "run id must be a positive integer", op)
		return
	}
	h.respondRun(w, r, runID, op)
}

func (h *handler) respondRun(w http.ResponseWriter, r *http.Request, runID int64, op string) {
	run, err := h.runs.Run(r.Context(), runID)
	if err != nil {
		h.respondStoreError(w, err, op)
		return
	}
	totals, err := h.runs.MonthlyTotals(r.Context(), runID)
	if err != nil {
		h.respondStoreError(w, err, op)
		return
	}

	resp := runResponse{
		RunID:     run.ID,
		CreatedAt: run.CreatedAt.Format(time.RFC3339),
		TaxRate:   run.TaxRate,
		Batches:   make([]batchSummary, 0, len(run.Batches)),
		Totals:    make([]monthlyTotal, 0, len(totals)),
	}
	for _, b := range run.Batches {
		resp.Batches = append(resp.Batches, batchSummary(b))
	}
	for _, t := range totals {
		resp.Totals = append(resp.Totals, monthlyTotal{
			Batch: t.BatchKey,
			Month: t.Month.String(),
			Label: t.Month.Label(h.layout.MonthLabel),
			Total: t.Total,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handler) respondStoreError(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, store.ErrNoRuns) {
		h.respondError(w, http.StatusNotFound, err.Error(), op)
		return
	}
	h.respondError(w, http.StatusInternalServerError, err.Error(), op)
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Info(fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			zap.String("op", "server.logRequests"),
			zap.String("requestId", middleware.GetReqID(r.Context())),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (h *handler) respondError(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("recognition request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

// writeJSON encodes payload before writing the header, so an encoding failure
// becomes a 500 instead of a truncated response.
func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		h.logger.Error("failed to encode JSON response",
			zap.String("op", "server.writeJSON"),
			zap.Error(err),
		)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"failed to encode response"}`+"\n")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("failed to write JSON response",
			zap.String("op", "server.writeJSON"),
			zap.Error(err),
		)
	}
}
