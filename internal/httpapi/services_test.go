package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/orakle-ai/orakle/internal/supervise"
)

func newIdleSupervisor(t *testing.T) *supervise.Supervisor {
	t.Helper()
	sup, err := supervise.New([]supervise.ServiceConfig{
		{
			Name:      "skills-host",
			Command:   []string{"/bin/sh", "-c", "sleep 60"},
			Port:      50321,
			HealthURL: "http://127.0.0.1:50321/health",
		},
	})
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	return sup
}

func TestServices_NoSupervisorConfigured(t *testing.T) {
	srv := newTestServer(t, nil)
	h := srv.Routes()

	tests := []struct {
		method string
		path   string
	}{
		{"GET", "/services"},
		{"POST", "/services/start"},
		{"POST", "/services/stop"},
		{"POST", "/services/restart"},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader("{}"))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want 503", rec.Code)
			}
		})
	}
}

func TestServiceStates_ReportsStopped(t *testing.T) {
	srv := newTestServer(t, func(o *Options) {
		o.Supervisor = newIdleSupervisor(t)
	})

	rec := doJSON(t, srv.Routes(), "GET", "/services", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got map[string]supervise.State
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode states: %v", err)
	}
	if got["skills-host"] != supervise.StateStopped {
		t.Errorf("skills-host = %q, want stopped", got["skills-host"])
	}
}

func TestServiceStop_OnStoppedServicesSucceeds(t *testing.T) {
	srv := newTestServer(t, func(o *Options) {
		o.Supervisor = newIdleSupervisor(t)
	})

	rec := doJSON(t, srv.Routes(), "POST", "/services/stop", stopRequest{Force: true})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestServiceRestart_RunsResetHook(t *testing.T) {
	// A supervisor with no services restarts instantly, which is all the hook
	// plumbing needs.
	sup, err := supervise.New(nil)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}

	hookCalled := false
	srv := newTestServer(t, func(o *Options) {
		o.Supervisor = sup
		o.OnServicesRestart = func() { hookCalled = true }
	})

	rec := doJSON(t, srv.Routes(), "POST", "/services/restart", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !hookCalled {
		t.Error("restart hook was not called")
	}
}

func TestServiceEvents_SendsStateSnapshot(t *testing.T) {
	srv := newTestServer(t, func(o *Options) {
		o.Supervisor = newIdleSupervisor(t)
	})

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/services/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var got supervise.Update
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if got.Service != "skills-host" {
		t.Errorf("service = %q, want skills-host", got.Service)
	}
	if got.State != supervise.StateStopped {
		t.Errorf("state = %q, want stopped", got.State)
	}
}
