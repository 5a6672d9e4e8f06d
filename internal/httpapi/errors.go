package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gyeh/visitload/internal/ingest"
	"github.com/gyeh/visitload/internal/normalize"
	"github.com/gyeh/visitload/internal/tabular"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
}

// statusFor maps domain errors raised by an upload to HTTP statuses. Input
// problems are the client's fault; anything else is ours.
func statusFor(err error) int {
	var (
		httpErr *echo.HTTPError
		hdrErr  *ingest.HeaderError
		valErr  *ingest.ValidationError
		dateErr *normalize.DateFormatError
		typeErr *tabular.FileTypeError
	)
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.As(err, &hdrErr), errors.As(err, &valErr), errors.As(err, &dateErr), errors.As(err, &typeErr):
		return http.StatusBadRequest
	}
	var pe *ingest.PipelineError
	if errors.As(err, &pe) && pe.Phase == ingest.PhasePreflight {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func messageFor(err error, status int) string {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if m, ok := httpErr.Message.(string); ok {
			return m
		}
		return http.StatusText(status)
	}
	var pe *ingest.PipelineError
	if errors.As(err, &pe) && status == http.StatusBadRequest {
		return pe.Err.Error()
	}
	if status >= http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}

// ErrorHandler renders errors as ErrorBody JSON.
func ErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		body := ErrorBody{
			StatusCode: status,
			Message:    messageFor(err, status),
			Error:      http.StatusText(status),
			Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
			Path:       c.Request().URL.Path,
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Error().Err(err).Msg("write error response")
		}
	}
}
