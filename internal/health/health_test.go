package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLive_AlwaysReturns200(t *testing.T) {
	h := New()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.Live(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !body.OK {
		t.Error("ok = false, want true")
	}
}

func TestLive_ContentType(t *testing.T) {
	h := New()
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.Live(rec, req)

	ct := rec.Header().Get("Content-Type")
	if ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestReady_AllCheckersPass(t *testing.T) {
	h := New(
		Checker{Name: "skills-host", Check: func(_ context.Context) error { return nil }},
		Checker{Name: "memory", Check: func(_ context.Context) error { return nil }},
	)

	req := httptest.NewRequest("GET", "/health/ready", nil)
	rec := httptest.NewRecorder()
	h.Ready(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !body.OK {
		t.Error("ok = false, want true")
	}
	if body.Checks["skills-host"] != "ok" {
		t.Errorf("skills-host check = %q, want %q", body.Checks["skills-host"], "ok")
	}
	if body.Checks["memory"] != "ok" {
		t.Errorf("memory check = %q, want %q", body.Checks["memory"], "ok")
	}
}

func TestReady_CheckerFails(t *testing.T) {
	h := New(
		Checker{Name: "skills-host", Check: func(_ context.Context) error {
			return errors.New("connection refused")
		}},
		Checker{Name: "memory", Check: func(_ context.Context) error { return nil }},
	)

	req := httptest.NewRequest("GET", "/health/ready", nil)
	rec := httptest.NewRecorder()
	h.Ready(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.OK {
		t.Error("ok = true, want false")
	}
	if body.Checks["skills-host"] != "fail: connection refused" {
		t.Errorf("skills-host check = %q, want %q", body.Checks["skills-host"], "fail: connection refused")
	}
	if body.Checks["memory"] != "ok" {
		t.Errorf("memory check = %q, want %q", body.Checks["memory"], "ok")
	}
}

func TestReady_NoCheckers(t *testing.T) {
	h := New()

	req := httptest.NewRequest("GET", "/health/ready", nil)
	rec := httptest.NewRecorder()
	h.Ready(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !body.OK {
		t.Error("ok = false, want true")
	}
}

func TestReady_AllCheckersFail(t *testing.T) {
	h := New(
		Checker{Name: "skills-host", Check: func(_ context.Context) error {
			return errors.New("timeout")
		}},
		Checker{Name: "python-bridge", Check: func(_ context.Context) error {
			return errors.New("not started")
		}},
	)

	req := httptest.NewRequest("GET", "/health/ready", nil)
	rec := httptest.NewRecorder()
	h.Ready(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.OK {
		t.Error("ok = true, want false")
	}
	if body.Checks["skills-host"] != "fail: timeout" {
		t.Errorf("skills-host check = %q", body.Checks["skills-host"])
	}
	if body.Checks["python-bridge"] != "fail: not started" {
		t.Errorf("python-bridge check = %q", body.Checks["python-bridge"])
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	h := New(
		Checker{Name: "test", Check: func(_ context.Context) error { return nil }},
	)

	mux := http.NewServeMux()
	h.Register(mux)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/health", http.StatusOK},
		{"/health/ready", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestReady_RespectsContextCancellation(t *testing.T) {
	h := New(
		Checker{Name: "slow", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	req := httptest.NewRequest("GET", "/health/ready", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Ready(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
