// Package httpapi exposes the upload pipeline and the merged view over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/gyeh/visitload/internal/ingest"
	"github.com/gyeh/visitload/internal/model"
	"github.com/gyeh/visitload/internal/normalize"
	"github.com/gyeh/visitload/internal/tabular"
)

// UploadField is the multipart field carrying the spreadsheet.
const UploadField = "file"

// Processor runs one upload through the pipeline.
type Processor interface {
	Process(ctx context.Context, rr tabular.RowReader) (*ingest.Result, error)
}

// MergedViewer answers the merged patient/visit query.
type MergedViewer interface {
	MergedView(ctx context.Context) ([]model.MergedRecord, error)
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the upload, merged-view and health endpoints.
type Handler struct {
	proc   Processor
	merged MergedViewer
	health Pinger
	log    zerolog.Logger
}

func NewHandler(proc Processor, merged MergedViewer, health Pinger, log zerolog.Logger) *Handler {
	return &Handler{proc: proc, merged: merged, health: health, log: log}
}

// RegisterRoutes mounts the handler's routes on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/file-upload/excel", h.Upload)
	e.GET("/patient-visits/merged", h.Merged)
	e.GET("/health", h.Health)
}

// NewServer builds an echo instance with middleware, error handling and
// the handler's routes. maxUploadMB bounds request bodies.
func NewServer(h *Handler, maxUploadMB int64, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(log)

	e.Use(middleware.RequestID())
	e.Use(Logger(log))
	e.Use(Recovery(log))
	if maxUploadMB > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", maxUploadMB)))
	}

	h.RegisterRoutes(e)
	return e
}

// Upload accepts a multipart spreadsheet and returns the processed records.
func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile(UploadField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return echo.NewHTTPError(http.StatusBadRequest, "File is required")
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "File is required")
	}

	if err := tabular.Allowed(fh.Filename, fh.Header.Get(echo.HeaderContentType)); err != nil {
		return err
	}

	res, err := h.process(c.Request().Context(), fh)
	if err != nil {
		return err
	}
	h.log.Info().
		Str("file", res.Summary.FilePath).
		Str("sha256", res.Summary.FileSHA256).
		Str("batch_id", res.Summary.IngestBatchID).
		Int("records", len(res.Records)).
		Msg("upload ingested")
	return c.JSON(http.StatusOK, res.Records)
}

func (h *Handler) process(ctx context.Context, fh *multipart.FileHeader) (*ingest.Result, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	hr := normalize.NewHashingReader(f)
	rr, err := tabular.Open(fh.Filename, hr)
	if err != nil {
		return nil, &ingest.PipelineError{Phase: ingest.PhasePreflight, Err: err}
	}
	defer rr.Close()

	h.log.Info().Str("file", fh.Filename).Int64("size", fh.Size).Msg("upload received")
	res, err := h.proc.Process(ctx, rr)
	if res != nil && res.Summary != nil {
		// Readers may stop before EOF; hash the whole upload regardless.
		if _, cerr := io.Copy(io.Discard, hr); cerr == nil {
			res.Summary.FileSHA256 = hr.Sum()
		}
		res.Summary.FilePath = fh.Filename
	}
	return res, err
}

// Merged returns the merged patient/visit view.
func (h *Handler) Merged(c echo.Context) error {
	rows, err := h.merged.MergedView(c.Request().Context())
	if err != nil {
		return fmt.Errorf("merged view: %w", err)
	}
	return c.JSON(http.StatusOK, rows)
}

// Health pings the store.
func (h *Handler) Health(c echo.Context) error {
	if err := h.health.Ping(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "store unavailable")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
