package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ok", func(c *gin.Context) { Success(c, http.StatusOK, gin.H{"value": 1}) })
	r.GET("/fail", func(c *gin.Context) {
		FailWithFields(c, http.StatusBadRequest, ErrValidation, map[string]string{"title": "required"})
	})
	return r
}

func TestRequestIDPropagation(t *testing.T) {
	r := newRouter()

	tests := []struct {
		name     string
		header   string
		wantEcho bool
	}{
		{"no header", "", false},
		{"well formed", "req-123_abc.7", true},
		{"control characters", "bad\nid", false},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ok", nil)
			if tc.header != "" {
				req.Header.Set(requestIDHeader, tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if got == "" {
				t.Fatal("missing X-Request-ID header")
			}
			if tc.wantEcho && got != tc.header {
				t.Fatalf("request id = %q, want %q", got, tc.header)
			}
			if !tc.wantEcho && got == tc.header {
				t.Fatalf("request id %q should have been replaced", got)
			}

			var body Response
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Metadata.RequestID != got {
				t.Fatalf("metadata request id = %q, header = %q", body.Metadata.RequestID, got)
			}
		})
	}
}

func TestFailEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Data  any       `json:"data"`
		Error ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data != nil {
		t.Fatalf("data = %v, want null", body.Data)
	}
	if body.Error.Code != ErrValidation || body.Error.Message != GetMessage(ErrValidation) {
		t.Fatalf("error = %+v", body.Error)
	}
	if body.Error.Fields["title"] != "required" {
		t.Fatalf("fields = %v", body.Error.Fields)
	}
}
