package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"label-reader/api/internal/handle"
	"label-reader/api/internal/label"
	"label-reader/api/internal/store"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

type emptyRunner struct{}

func (emptyRunner) Run(context.Context, []byte, string) (label.Outcome, error) {
	return label.Outcome{Record: &label.LabelRecord{}}, nil
}

func (emptyRunner) Last(context.Context) (json.RawMessage, error) { return nil, store.ErrEmpty }

func TestRoutes(t *testing.T) {
	srv := httptest.NewServer(NewMux(handle.New(emptyRunner{}, nil), "ok"))
	defer srv.Close()

	tests := []struct {
		method, path string
		wantStatus   int
		wantBody     string
	}{
		{http.MethodGet, "/healthz", http.StatusOK, "ok"},
		{http.MethodGet, "/resultado", http.StatusOK, "Nenhum resultado gerado ainda."},
		{http.MethodPost, "/upload", http.StatusOK, "json_result"},
		{http.MethodGet, "/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, bytes.NewReader(pngMagic))
			resp, err := srv.Client().Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if !strings.Contains(string(b), tt.wantBody) {
				t.Fatalf("body = %q, want containing %q", b, tt.wantBody)
			}
			if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
				t.Fatalf("missing CORS header")
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
	req.Header.Set("Access-Control-Request-Headers", "X-Request-Timeout")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if called || rec.Code != http.StatusNoContent {
		t.Fatalf("preflight reached handler=%v status=%d", called, rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Headers") != "X-Request-Timeout" {
		t.Fatalf("allow headers = %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}
