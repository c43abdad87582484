package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/seantiz/gradbridge/internal/model"
)

func TestListEventsAndStats(t *testing.T) {
	srv, rt := newTestServer(t)
	loadModel(t, srv, rt, "GeLU")
	if _, err := srv.engine.UnloadModel(context.Background()); err != nil {
		t.Fatalf("UnloadModel: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/events")
	if err != nil {
		t.Fatalf("GET /v1/events: %v", err)
	}
	defer resp.Body.Close()

	var body listEventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 || len(body.Events) != 2 {
		t.Fatalf("events = %+v, want 2", body)
	}
	if body.Events[0].Kind != model.EventModelUnloaded {
		t.Errorf("newest event = %q, want %q", body.Events[0].Kind, model.EventModelUnloaded)
	}

	resp2, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET /v1/stats: %v", err)
	}
	defer resp2.Body.Close()

	var stats statsResponse
	if err := json.NewDecoder(resp2.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("total = %d, want 2", stats.Total)
	}
	if stats.Released != 3 {
		t.Errorf("released = %d, want 3", stats.Released)
	}
	if stats.ByKind[model.EventModelLoaded] != 1 {
		t.Errorf("by_kind[model_loaded] = %d, want 1", stats.ByKind[model.EventModelLoaded])
	}
}

func TestStreamSessionEvents(t *testing.T) {
	srv, rt := newTestServer(t)
	sess := loadModel(t, srv, rt, "GeLU")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/sessions/" + sess.ID + "/events")
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	// Headers arrive after the handler subscribed, so the unload is seen.
	if _, err := srv.engine.UnloadModel(context.Background()); err != nil {
		t.Fatalf("UnloadModel: %v", err)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	body := string(data)
	if !strings.Contains(body, "event: "+model.EventModelUnloaded) {
		t.Errorf("stream missing unload event:\n%s", body)
	}
	if !strings.HasSuffix(body, "event: done\ndata: stream complete\n\n") {
		t.Errorf("stream missing done event:\n%s", body)
	}
}

func TestStreamUnloadedSessionIsEmpty(t *testing.T) {
	srv, rt := newTestServer(t)
	sess := loadModel(t, srv, rt, "GeLU")
	if _, err := srv.engine.UnloadModel(context.Background()); err != nil {
		t.Fatalf("UnloadModel: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/sessions/" + sess.ID + "/events")
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || len(data) != 0 {
		t.Errorf("status = %d, body = %q; want 200 and empty", resp.StatusCode, data)
	}
}

func TestStreamUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/sessions/nonexistent/events")
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
