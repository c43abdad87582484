package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/seantiz/gradbridge/internal/model"
)

func unloadCount(t *testing.T, result string) float64 {
	t.Helper()
	var m dto.Metric
	if err := unloadsTotal.WithLabelValues(result).Write(&m); err != nil {
		t.Fatalf("read unload counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestGetRegistry(t *testing.T) {
	srv, rt := newTestServer(t)
	sess := loadModel(t, srv, rt, "GeLU")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/registry")
	if err != nil {
		t.Fatalf("GET /v1/registry: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body registryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.State != "active" {
		t.Errorf("state = %q, want active", body.State)
	}
	if keys := body.Pools["forward_core"]; len(keys) != 1 || keys[0] != "GeLU" {
		t.Errorf("forward_core keys = %v, want [GeLU]", keys)
	}
	if !body.ForwardRunner || !body.BackwardRunner {
		t.Errorf("runners = %v/%v, want both registered", body.ForwardRunner, body.BackwardRunner)
	}
	if body.Session == nil || body.Session.ID != sess.ID {
		t.Errorf("session = %+v, want %s", body.Session, sess.ID)
	}
}

func TestUnloadModel(t *testing.T) {
	srv, rt := newTestServer(t)
	sess := loadModel(t, srv, rt, "GeLU")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	okBefore := unloadCount(t, unloadOK)
	noModelBefore := unloadCount(t, unloadNoModel)

	resp, err := http.Post(ts.URL+"/v1/models/unload", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /v1/models/unload: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var ev model.LifecycleEvent
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != model.EventModelUnloaded || ev.SessionID != sess.ID {
		t.Errorf("event = %+v, want model_unloaded for %s", ev, sess.ID)
	}
	if ev.Released != 3 {
		t.Errorf("released = %d, want 3", ev.Released)
	}
	if ev.FromState != "active" || ev.ToState != "fully_torn_down" {
		t.Errorf("transition = %s -> %s, want active -> fully_torn_down", ev.FromState, ev.ToState)
	}

	resp2, err := http.Post(ts.URL+"/v1/models/unload", "application/json", nil)
	if err != nil {
		t.Fatalf("second POST: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusConflict {
		t.Errorf("second unload status = %d, want 409", resp2.StatusCode)
	}

	if got := unloadCount(t, unloadOK) - okBefore; got != 1 {
		t.Errorf("unloaded counter delta = %v, want 1", got)
	}
	if got := unloadCount(t, unloadNoModel) - noModelBefore; got != 1 {
		t.Errorf("no_model counter delta = %v, want 1", got)
	}
}
