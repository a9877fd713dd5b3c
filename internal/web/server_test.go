package web

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/colannotate/internal/config"
	"github.com/JonMunkholm/colannotate/internal/core"
	"github.com/JonMunkholm/colannotate/internal/human"
	"github.com/JonMunkholm/colannotate/internal/oracle"
)

func testConfig(t *testing.T, vars map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(func(key string) (string, bool) {
		if key == "ORACLE_API_KEY" {
			return "test-key", true
		}
		v, ok := vars[key]
		return v, ok
	})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	return cfg
}

func newTestServer(t *testing.T, o oracle.Oracle, cfg *config.Config, limiter *core.RunLimiter) (*Server, *core.Service) {
	t.Helper()
	svc := core.NewService(core.NewEngine(o, human.Decline{}, core.Options{}), limiter, core.ServiceConfig{})
	s := NewServer(svc, cfg)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s, svc
}

func uploadRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/annotate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func startRun(t *testing.T, s *Server) string {
	t.Helper()
	rec := serve(s, uploadRequest(t, "rain.csv", "rain_mm\n1.5\n2.0\n", map[string]string{
		"name":        "Rainfall",
		"description": "Daily rain <gauge> readings",
	}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/annotate status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["run_id"] == "" {
		t.Fatalf("response = %v, want run_id", resp)
	}
	return resp["run_id"]
}

func waitDone(t *testing.T, svc *core.Service, id string) core.Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := svc.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	return run
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, oracle.NewScript(), testConfig(t, nil), nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s, want status ok", rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestAnnotate_UploadAndFetchRun(t *testing.T) {
	s, svc := newTestServer(t, oracle.NewScript("FEATURE", "FLOAT"), testConfig(t, nil), nil)

	id := startRun(t, s)
	waitDone(t, svc, id)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET run status = %d, body %s", rec.Code, rec.Body.String())
	}
	var run core.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Status != core.StatusSucceeded {
		t.Errorf("Status = %q, want succeeded (error %q)", run.Status, run.Error)
	}
	if run.Dataset.Name != "Rainfall" || run.Source != "rain.csv" {
		t.Errorf("Dataset/Source = %q/%q, want Rainfall/rain.csv", run.Dataset.Name, run.Source)
	}
	if run.Report == nil || len(run.Report.Schema.Feature) != 1 || run.Report.Schema.Feature[0].Name != "rain_mm" {
		t.Fatalf("Report = %+v, want rain_mm feature", run.Report)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	var runs []core.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != id || runs[0].Report != nil {
		t.Errorf("GET /api/runs = %+v, want one summary without report", runs)
	}
}

func TestAnnotate_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		fields   map[string]string
		wantCode string
	}{
		{"no file", "", "", nil, ""},
		{"unsupported format", "data.nc", "x", nil, "TBL001"},
		{"empty file", "empty.csv", "", nil, "TBL002"},
		{"relation without database", "", "", map[string]string{"relation": "public.readings"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, oracle.NewScript(), testConfig(t, nil), nil)

			rec := serve(s, uploadRequest(t, tt.filename, tt.content, tt.fields))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
			if tt.wantCode != "" && !strings.Contains(rec.Body.String(), tt.wantCode) {
				t.Errorf("body = %s, want code %s", rec.Body.String(), tt.wantCode)
			}
		})
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s, _ := newTestServer(t, oracle.NewScript(), testConfig(t, nil), nil)

	for _, path := range []string{"/api/runs/missing", "/api/runs/missing/events"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rec.Code)
		}
		var resp ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Code != "RUN002" {
			t.Errorf("GET %s body = %s, want code RUN002", path, rec.Body.String())
		}
	}

	rec := serve(s, httptest.NewRequest(http.MethodPost, "/api/runs/missing/cancel", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("cancel status = %d, want 404", rec.Code)
	}
}

func TestRunEvents_StreamsCompletion(t *testing.T) {
	s, svc := newTestServer(t, oracle.NewScript("FEATURE", "FLOAT"), testConfig(t, nil), nil)

	id := startRun(t, s)
	waitDone(t, svc, id)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs/"+id+"/events", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: progress") || !strings.Contains(body, "event: complete") {
		t.Errorf("body = %q, want progress and complete events", body)
	}
	if !strings.Contains(body, `"status":"succeeded"`) {
		t.Errorf("body = %q, want succeeded status", body)
	}
}

func TestRunPage_RendersReport(t *testing.T) {
	s, svc := newTestServer(t, oracle.NewScript("FEATURE", "FLOAT"), testConfig(t, nil), nil)

	id := startRun(t, s)
	waitDone(t, svc, id)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/runs/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"<h1>Rainfall</h1>", "rain_mm", "FLOAT", "&lt;gauge&gt;"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, "<gauge>") {
		t.Error("description not escaped")
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/runs/missing", nil))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "RUN002") {
		t.Errorf("missing run page = %d %s, want 404 with RUN002", rec.Code, rec.Body.String())
	}
}

func TestAnnotate_TooManyRuns(t *testing.T) {
	blocking := oracle.Func(func(ctx context.Context, _ string, _ []oracle.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	s, svc := newTestServer(t, blocking, testConfig(t, nil), core.NewRunLimiter(1, 20*time.Millisecond))

	id := startRun(t, s)
	t.Cleanup(func() {
		svc.Cancel(id)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Drain(ctx)
	})

	rec := serve(s, uploadRequest(t, "more.csv", "x\n1\n", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 (body %s)", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After not set")
	}
	if !strings.Contains(rec.Body.String(), "RUN001") {
		t.Errorf("body = %s, want code RUN001", rec.Body.String())
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig(t, map[string]string{"REQUIRE_API_KEY": "true", "API_KEYS": "secret"})
	s, _ := newTestServer(t, oracle.NewScript(), cfg, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without key status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	req.Header.Set("X-API-Key", "secret")
	if rec := serve(s, req); rec.Code != http.StatusOK {
		t.Errorf("with key status = %d, want 200", rec.Code)
	}

	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200 without key", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.stop()

	if !rl.allow("1.2.3.4") || !rl.allow("1.2.3.4") {
		t.Fatal("first two requests rejected")
	}
	if rl.allow("1.2.3.4") {
		t.Error("third request allowed, want rejected")
	}
	if !rl.allow("5.6.7.8") {
		t.Error("other client rejected")
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"first\nsecond", "first"},
		{"connect postgres://user:pw@host/db failed", "connect [redacted]"},
	}
	for _, tt := range tests {
		if got := sanitizeErrorMessage(tt.in); got != tt.want {
			t.Errorf("sanitizeErrorMessage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
