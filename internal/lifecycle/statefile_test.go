package lifecycle

import (
	"testing"
	"time"
)

func TestLoadStateMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	rec, err := LoadState(dir)
	if err != nil {
		t.Fatalf("expected no error for missing state file, got %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record for fresh directory, got %+v", rec)
	}
}

func TestSaveLoadStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC().Truncate(time.Second)
	rec := &StateRecord{
		LastStarted:         now,
		LastStopped:         &now,
		PeerID:              "peer-1",
		TasksProcessed:      7,
		SuccessfulShutdowns: 2,
		UncleanShutdowns:    1,
	}
	if err := SaveState(dir, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := LoadState(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.PeerID != rec.PeerID || got.TasksProcessed != rec.TasksProcessed {
		t.Fatalf("round-trip mismatch: %+v vs %+v", got, rec)
	}
	if got.LastStopped == nil || !got.LastStopped.Equal(now) {
		t.Fatalf("expected last_stopped %v, got %v", now, got.LastStopped)
	}
}
