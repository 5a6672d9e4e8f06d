package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/visitload/internal/config"
	"github.com/gyeh/visitload/internal/ingest"
	"github.com/gyeh/visitload/internal/merge"
	"github.com/gyeh/visitload/internal/model"
	"github.com/gyeh/visitload/internal/store/sqlitestore"
)

const uploadCSV = "patient,MRN,chart_status,PayorSourceName,BranchCode,form,form_status,admitDate,M1023(1),Pain(1)\n" +
	"\"Doe, Jane\",M1,Open,Medicare,BR1,SOC,Completed,2024-01-15,I10,3\n"

func newTestServer(t *testing.T) (*echo.Echo, *sqlitestore.Store) {
	t.Helper()
	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "visits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	proc := ingest.NewProcessor(config.DefaultProfile(), merge.NewEngine(st, zerolog.Nop()), st, zerolog.Nop())
	h := NewHandler(proc, st, st, zerolog.Nop())
	return NewServer(h, 5, zerolog.Nop()), st
}

func multipartBody(t *testing.T, field, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func upload(t *testing.T, e *echo.Echo, field, filename, contentType, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, field, filename, contentType, content)
	req := httptest.NewRequest(http.MethodPost, "/file-upload/excel", body)
	req.Header.Set(echo.HeaderContentType, ct)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestUpload_ReturnsProcessedRecords(t *testing.T) {
	e, st := newTestServer(t)

	rec := upload(t, e, UploadField, "visits.csv", "text/csv", uploadCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got []model.ProcessedRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "M1", got[0].MRN)
	assert.Equal(t, []string{"I10"}, got[0].ICDCodes)
	assert.Equal(t, []any{"3"}, got[0].Questionnaire["Pain"])

	rows, err := st.MergedView(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestUpload_MissingFile(t *testing.T) {
	e, _ := newTestServer(t)

	rec := upload(t, e, "other", "visits.csv", "text/csv", uploadCSV)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, http.StatusBadRequest, body.StatusCode)
	assert.Equal(t, "File is required", body.Message)
	assert.Equal(t, "Bad Request", body.Error)
	assert.Equal(t, "/file-upload/excel", body.Path)
	assert.NotEmpty(t, body.Timestamp)
}

func TestUpload_NotMultipart(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/file-upload/excel", strings.NewReader("{}"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "File is required", decodeError(t, rec).Message)
}

func TestUpload_RejectsFileType(t *testing.T) {
	e, _ := newTestServer(t)

	rec := upload(t, e, UploadField, "scan.pdf", "application/pdf", "%PDF")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "invalid file type: application/pdf")
}

func TestUpload_HeaderError(t *testing.T) {
	e, st := newTestServer(t)

	rec := upload(t, e, UploadField, "visits.csv", "text/csv", "MRN,form\nM1,SOC\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t,
		"the following required fields are missing: BranchCode is missing, admitDate is missing",
		decodeError(t, rec).Message)

	rows, err := st.MergedView(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUpload_BadDate(t *testing.T) {
	e, _ := newTestServer(t)

	csv := strings.Replace(uploadCSV, "2024-01-15", "tomorrow", 1)
	rec := upload(t, e, UploadField, "visits.csv", "text/csv", csv)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid date format: tomorrow", decodeError(t, rec).Message)
}

func TestMerged(t *testing.T) {
	e, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, upload(t, e, UploadField, "visits.csv", "text/csv", uploadCSV).Code)

	req := httptest.NewRequest(http.MethodGet, "/patient-visits/merged", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []model.MergedRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Doe", rows[0].FirstName)
	assert.Equal(t, "Jane", rows[0].LastName)
}

func TestHealth(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("down") }

func TestHealth_StoreDown(t *testing.T) {
	h := NewHandler(nil, nil, downPinger{}, zerolog.Nop())
	e := NewServer(h, 0, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store unavailable", decodeError(t, rec).Message)
}

type brokenViewer struct{}

func (brokenViewer) MergedView(context.Context) ([]model.MergedRecord, error) {
	return nil, errors.New("connection reset")
}

func TestMerged_InternalErrorHidesCause(t *testing.T) {
	h := NewHandler(nil, brokenViewer{}, downPinger{}, zerolog.Nop())
	e := NewServer(h, 0, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/patient-visits/merged", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "internal server error", body.Message)
	assert.Equal(t, "Internal Server Error", body.Error)
}

func TestRecovery(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	e.Use(Recovery(zerolog.Nop()))
	e.GET("/boom", func(echo.Context) error { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"header", &ingest.PipelineError{Phase: ingest.PhaseHeaders, Err: &ingest.HeaderError{Missing: []string{"MRN"}}}, http.StatusBadRequest},
		{"validation", &ingest.PipelineError{Phase: ingest.PhaseValidate, Row: 2, Err: &ingest.ValidationError{}}, http.StatusBadRequest},
		{"preflight", &ingest.PipelineError{Phase: ingest.PhasePreflight, Err: errors.New("corrupt")}, http.StatusBadRequest},
		{"merge", &ingest.PipelineError{Phase: ingest.PhaseMerge, Row: 2, Err: &merge.PersistenceError{Op: "upsert", Err: errors.New("x")}}, http.StatusInternalServerError},
		{"echo", echo.NewHTTPError(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
