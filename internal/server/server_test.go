package server_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/pdfa/pdfatest"
	"github.com/rezonia/facturx/internal/processor"
	"github.com/rezonia/facturx/internal/server"
)

func newTestServer() *server.Server {
	config := &server.Config{
		Address:      ":8080",
		Debug:        true,
		MaxBodyBytes: 1 << 20,
	}
	pipeline := processor.NewPipeline(processor.WithClock(func() time.Time {
		return time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	}))
	return server.NewServer(config, server.WithPipeline(pipeline))
}

func readSample(t testing.TB, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "samples", name))
	require.NoError(t, err)
	return data
}

func serve(srv *server.Server, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, data, pdf []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if data != nil {
		require.NoError(t, mw.WriteField("data", string(data)))
	}
	if pdf != nil {
		fw, err := mw.CreateFormFile("pdf", "base.pdf")
		require.NoError(t, err)
		_, err = fw.Write(pdf)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer()

	w := serve(srv, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.Equal(t, "ok", response["status"])
	assert.NotEmpty(t, response["time"])
}

func TestRequestID(t *testing.T) {
	srv := newTestServer()

	w := serve(srv, http.MethodGet, "/health", nil, "")
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "trace-42")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "trace-42", w.Header().Get("X-Request-ID"))
}

func TestProfilesEndpoint(t *testing.T) {
	srv := newTestServer()

	w := serve(srv, http.MethodGet, "/api/v1/profiles", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var response server.ProfilesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Profiles, 5)

	ids := make([]string, 0, len(response.Profiles))
	for _, p := range response.Profiles {
		ids = append(ids, p.ID)
		assert.Equal(t, "factur-x.xml", p.AttachmentFileName)
		assert.NotEmpty(t, p.SpecificationID)
	}
	assert.Contains(t, ids, "en16931")
}

func TestValidateEndpoint(t *testing.T) {
	srv := newTestServer()

	w := serve(srv, http.MethodPost, "/api/v1/profiles/minimum/validate", readSample(t, "minimum.json"), "application/json")
	assert.Equal(t, http.StatusOK, w.Code)

	var response server.ValidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Valid)
	assert.Equal(t, "minimum", response.Profile)
	assert.Empty(t, response.Errors)
}

func TestValidateEndpoint_Invalid(t *testing.T) {
	srv := newTestServer()

	body := []byte(`{"issueDate": "yesterday"}`)
	w := serve(srv, http.MethodPost, "/api/v1/profiles/minimum/validate", body, "application/json")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var response server.ValidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.False(t, response.Valid)
	require.NotEmpty(t, response.Errors)
	assert.Equal(t, 1, response.Errors.Count(model.ErrCodeInvalidDate))
	assert.Contains(t, response.Errors.Paths(), "number")
}

func TestValidateEndpoint_Errors(t *testing.T) {
	srv := newTestServer()

	tests := []struct {
		name   string
		target string
		body   []byte
		status int
	}{
		{"unknown profile", "/api/v1/profiles/xrechnung/validate", readSample(t, "minimum.json"), http.StatusNotFound},
		{"empty body", "/api/v1/profiles/minimum/validate", nil, http.StatusBadRequest},
		{"not json or yaml", "/api/v1/profiles/minimum/validate", []byte("<invoice/>"), http.StatusBadRequest},
		{"too large", "/api/v1/profiles/minimum/validate", bytes.Repeat([]byte("a"), 2<<20), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(srv, http.MethodPost, tt.target, tt.body, "")
			assert.Equal(t, tt.status, w.Code)

			var response server.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.NotEmpty(t, response.Error)
			assert.NotEmpty(t, response.RequestID)
		})
	}
}

func TestXMLEndpoint(t *testing.T) {
	srv := newTestServer()

	w := serve(srv, http.MethodPost, "/api/v1/profiles/en16931/xml", readSample(t, "en16931.yaml"), "application/yaml")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "factur-x.xml")
	assert.True(t, strings.HasPrefix(w.Body.String(), "<?xml"))
	assert.Contains(t, w.Body.String(), "INV-2024-0042")
}

func TestPDFEndpoint(t *testing.T) {
	srv := newTestServer()

	body, contentType := multipartBody(t, readSample(t, "minimum.json"), pdfatest.New())
	w := serve(srv, http.MethodPost, "/api/v1/profiles/minimum/pdf", body.Bytes(), contentType)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

	w = serve(srv, http.MethodPost, "/api/v1/attachments", w.Body.Bytes(), "application/pdf")
	require.Equal(t, http.StatusOK, w.Code)

	var response server.AttachmentsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Files, 1)
	assert.Equal(t, "factur-x.xml", response.Files[0].Name)
	assert.Equal(t, model.RelationshipAlternative, response.Files[0].Relationship)
	assert.Nil(t, response.Files[0].Data)
	require.NotNil(t, response.Metadata)
	assert.Equal(t, "MINIMUM", response.Metadata.ConformanceLevel)
	assert.Equal(t, "1.7", response.Version)
}

func TestPDFEndpoint_Errors(t *testing.T) {
	srv := newTestServer()

	tests := []struct {
		name   string
		data   []byte
		pdf    []byte
		status int
	}{
		{"missing data", nil, pdfatest.New(), http.StatusBadRequest},
		{"invalid data", []byte(`{"number": "1"}`), pdfatest.New(), http.StatusUnprocessableEntity},
		{"broken pdf", readSample(t, "minimum.json"), []byte("%PDF-1.4 nothing else"), http.StatusUnprocessableEntity},
		{"no pdf and no renderer", readSample(t, "minimum.json"), nil, http.StatusNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.data, tt.pdf)
			w := serve(srv, http.MethodPost, "/api/v1/profiles/minimum/pdf", body.Bytes(), contentType)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestAttachmentsEndpoint(t *testing.T) {
	srv := newTestServer()
	pdf := pdfatest.New(pdfatest.WithAttachment("notes.txt", []byte("hello")))

	w := serve(srv, http.MethodPost, "/api/v1/attachments?data=true", pdf, "application/pdf")
	require.Equal(t, http.StatusOK, w.Code)

	var response server.AttachmentsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Files, 1)
	assert.Equal(t, "notes.txt", response.Files[0].Name)
	assert.Equal(t, 5, response.Files[0].Size)
	assert.Equal(t, []byte("hello"), response.Files[0].Data)
	assert.Nil(t, response.Metadata)

	w = serve(srv, http.MethodPost, "/api/v1/attachments", []byte("<xml/>"), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInspectEndpoint(t *testing.T) {
	srv := newTestServer()

	w := serve(srv, http.MethodPost, "/api/v1/profiles/en16931/xml", readSample(t, "en16931.yaml"), "")
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(srv, http.MethodPost, "/api/v1/inspect", w.Body.Bytes(), "application/xml")
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "INV-2024-0042", response["number"])
	assert.Equal(t, "en16931", response["profile"])

	w = serve(srv, http.MethodPost, "/api/v1/inspect", []byte("<Invoice/>"), "application/xml")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = serve(srv, http.MethodPost, "/api/v1/inspect", pdfatest.New(), "application/pdf")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

// Benchmark tests

func BenchmarkXMLEndpoint(b *testing.B) {
	srv := newTestServer()
	data := readSample(b, "en16931.yaml")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		serve(srv, http.MethodPost, "/api/v1/profiles/en16931/xml", data, "")
	}
}

func BenchmarkHealth(b *testing.B) {
	srv := newTestServer()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		serve(srv, http.MethodGet, "/health", nil, "")
	}
}
