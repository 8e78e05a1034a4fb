package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"rollcall/internal/events"
)

func TestHubHandlerPublishesRecords(t *testing.T) {
	hub := events.NewHub(16)
	h := NewHubHandler(hub, slog.LevelInfo)
	l := slog.New(h).With("component", "worker")

	l.Info("submission succeeded", "profile", "alice", "attempt", 2)

	published := hub.SnapshotSince(0)
	if len(published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(published))
	}
	ev := published[0]
	if ev.Type != events.TypeLog {
		t.Errorf("event type = %q", ev.Type)
	}

	data := make(map[string]any)
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data["level"] != "INFO" {
		t.Errorf("level = %v", data["level"])
	}
	if data["message"] != "submission succeeded" {
		t.Errorf("message = %v", data["message"])
	}
	if data["component"] != "worker" {
		t.Errorf("component = %v", data["component"])
	}
	if data["profile"] != "alice" {
		t.Errorf("profile = %v", data["profile"])
	}
}

func TestHubHandlerFiltersBelowLevel(t *testing.T) {
	hub := events.NewHub(16)
	h := NewHubHandler(hub, slog.LevelInfo)
	l := slog.New(h)

	l.Debug("too quiet")

	if got := hub.SnapshotSince(0); len(got) != 0 {
		t.Errorf("debug record should not be published, got %d events", len(got))
	}
}

func TestTeeWritesBothSinks(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	hub := events.NewHub(16)

	teed := Tee(base, hub, slog.LevelInfo)
	teed.Info("both sinks")

	if !bytes.Contains(buf.Bytes(), []byte("both sinks")) {
		t.Errorf("base handler missed the record: %s", buf.String())
	}
	if got := hub.SnapshotSince(0); len(got) != 1 {
		t.Errorf("hub missed the record, got %d events", len(got))
	}
}
