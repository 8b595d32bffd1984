package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/stagezero/internal/config"
)

func testConfig(baseURL string) config.DeliveryConfig {
	return config.DeliveryConfig{
		Enabled:   true,
		BaseURL:   baseURL,
		ProjectID: "proj-1",
		APIKeyEnv: "TEST_WATSONX_API_KEY",
		Timeout:   5 * time.Second,
	}
}

func TestConfigured(t *testing.T) {
	t.Setenv("TEST_WATSONX_API_KEY", "secret")

	c := NewClient(testConfig("http://example.invalid"), zap.NewNop())
	if !c.Configured() {
		t.Error("Configured() = false with key, project and enabled set")
	}

	disabled := testConfig("http://example.invalid")
	disabled.Enabled = false
	if NewClient(disabled, zap.NewNop()).Configured() {
		t.Error("Configured() = true while disabled")
	}

	noProject := testConfig("http://example.invalid")
	noProject.ProjectID = ""
	if NewClient(noProject, zap.NewNop()).Configured() {
		t.Error("Configured() = true without project id")
	}
}

func TestDeliver(t *testing.T) {
	t.Setenv("TEST_WATSONX_API_KEY", "secret")

	var gotPath, gotAuth string
	var gotBody map[string]string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer backend.Close()

	c := NewClient(testConfig(backend.URL), zap.NewNop())
	if err := c.Deliver(context.Background(), map[string]string{"k": "v"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if gotPath != "/v1/projects/proj-1/ingest" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody["k"] != "v" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestDeliver_BackendError(t *testing.T) {
	t.Setenv("TEST_WATSONX_API_KEY", "secret")

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer backend.Close()

	c := NewClient(testConfig(backend.URL), zap.NewNop())
	if err := c.Deliver(context.Background(), "payload"); err == nil {
		t.Error("Deliver returned nil on 403 response")
	}
}

func TestDeliver_NotConfigured(t *testing.T) {
	cfg := testConfig("http://example.invalid")
	cfg.Enabled = false

	err := NewClient(cfg, zap.NewNop()).Deliver(context.Background(), "payload")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}
