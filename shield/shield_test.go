package shield

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/docprompt/kit"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestHeadToGet(t *testing.T) {
	var method string
	h := HeadToGet(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodHead, "/healthz", nil))
	if method != http.MethodGet {
		t.Errorf("method = %s, want GET", method)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(DefaultHeaders())(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}

	rec = httptest.NewRecorder()
	SecurityHeaders(HeaderConfig{XFrameOptions: "SAMEORIGIN"})(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("Content-Security-Policy") != "" {
		t.Error("empty CSP should not be sent")
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	// Declared length over the cap is refused up front.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}

	// Unknown length is cut off while reading.
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789"))
	req.ContentLength = -1
	h.ServeHTTP(httptest.NewRecorder(), req)
	var mbe *http.MaxBytesError
	if readErr == nil || !errors.As(readErr, &mbe) {
		t.Errorf("read err = %v, want *http.MaxBytesError", readErr)
	}

	readErr = nil
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
	if readErr != nil {
		t.Errorf("small body: %v", readErr)
	}
}

func TestTraceID(t *testing.T) {
	var traceID, requestID, transport string
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = kit.GetTraceID(r.Context())
		requestID = kit.GetRequestID(r.Context())
		transport = kit.GetTransport(r.Context())
		if GetLogger(r.Context()) == nil {
			t.Error("no request logger")
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(traceID) != 8 || rec.Header().Get("X-Trace-ID") != traceID {
		t.Errorf("trace id = %q, header = %q", traceID, rec.Header().Get("X-Trace-ID"))
	}
	if requestID == "" || rec.Header().Get("X-Request-ID") != requestID {
		t.Errorf("request id = %q, header = %q", requestID, rec.Header().Get("X-Request-ID"))
	}
	if transport != "http" {
		t.Errorf("transport = %q", transport)
	}

	const supplied = "0190f5c2-6a8e-7c3b-9d4e-5f6a7b8c9d0e"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", supplied)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if requestID != supplied {
		t.Errorf("client request id not kept: %q", requestID)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "<script>")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if requestID == "<script>" {
		t.Error("invalid client request id was echoed")
	}
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg := BasicAuthConfig{User: "alice", PasswordHash: string(hash)}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	h := BasicAuth(cfg)(okHandler)

	tests := []struct {
		name       string
		user, pass string
		set        bool
		want       int
	}{
		{"valid", "alice", "s3cret", true, http.StatusOK},
		{"wrong password", "alice", "nope", true, http.StatusUnauthorized},
		{"wrong user", "bob", "s3cret", true, http.StatusUnauthorized},
		{"missing", "", "", false, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/v1/formats", nil)
		if tt.set {
			req.SetBasicAuth(tt.user, tt.pass)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
		if tt.want == http.StatusUnauthorized && !strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), "Basic ") {
			t.Errorf("%s: missing challenge", tt.name)
		}
	}
}

func TestBasicAuth_Disabled(t *testing.T) {
	rec := httptest.NewRecorder()
	BasicAuth(BasicAuthConfig{})(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestBasicAuthConfig_Validate(t *testing.T) {
	if err := (BasicAuthConfig{User: "alice", PasswordHash: "plaintext"}).Validate(); err == nil {
		t.Error("expected error for non-bcrypt hash")
	}
	h, err := HashPassword("pw")
	if err != nil {
		t.Fatal(err)
	}
	if err := (BasicAuthConfig{User: "alice", PasswordHash: h}).Validate(); err != nil {
		t.Errorf("HashPassword output rejected: %v", err)
	}
}

func TestDefaultStack(t *testing.T) {
	stack := DefaultStack(1024)
	if len(stack) != 4 {
		t.Fatalf("stack length = %d", len(stack))
	}
	var h http.Handler = okHandler
	for i := len(stack) - 1; i >= 0; i-- {
		h = stack[i](h)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("X-Trace-ID") == "" || rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("stack not applied: %d %v", rec.Code, rec.Header())
	}
}
