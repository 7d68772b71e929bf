package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/fitfighter/rigbridge/internal/rig"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRecordResult_Upsert(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	res := SessionResult{
		SessionID:   "abc123",
		Game:        "whackamole",
		ReturnCode:  0,
		DurationSec: 60,
		FinishedAt:  time.Now().UTC(),
	}
	if err := st.RecordResult(ctx, res); err != nil {
		t.Fatalf("record: %v", err)
	}

	// A replayed result for the same session overwrites.
	res.ReturnCode = 1
	if err := st.RecordResult(ctx, res); err != nil {
		t.Fatalf("record replay: %v", err)
	}

	results, err := st.RecentResults(ctx, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 row after replay, got %d", len(results))
	}
	if results[0].ReturnCode != 1 {
		t.Errorf("expected the replay to win, got return code %d", results[0].ReturnCode)
	}
	if results[0].Game != "whackamole" {
		t.Errorf("unexpected game %q", results[0].Game)
	}
}

func TestRecentResults_OrderAndLimit(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := st.RecordResult(ctx, SessionResult{
			SessionID:   fmt.Sprintf("session-%d", i),
			Game:        "whackamole",
			DurationSec: 60,
			FinishedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	results, err := st.RecentResults(ctx, 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(results))
	}
	if results[0].SessionID != "session-4" {
		t.Errorf("expected most recent first, got %q", results[0].SessionID)
	}
	if !results[0].FinishedAt.After(results[2].FinishedAt) {
		t.Error("results should be ordered newest first")
	}
}

func TestRecentResults_LimitBounds(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	// Out-of-range limits fall back to the default instead of erroring.
	for _, limit := range []int{0, -5, 1000} {
		if _, err := st.RecentResults(ctx, limit); err != nil {
			t.Errorf("limit %d: %v", limit, err)
		}
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.RecordResult(context.Background(), SessionResult{
		SessionID:  "abc123",
		Game:       "whackamole",
		FinishedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	st.Close()

	// Reopening runs migrations again; ErrNoChange must be tolerated and
	// the data preserved.
	st, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	results, err := st.RecentResults(context.Background(), 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected the row to survive a reopen, got %d rows", len(results))
	}
}

func TestRecorder_HandleSessionEnd(t *testing.T) {
	st := openTestStore(t)
	rec := NewRecorder(st)

	payload := []byte(`{"event":"game_over","sessionId":"abc123","game":"whackamole","returnCode":0,"durationGame":60,"timestamp":"2026-08-01T12:00:00Z"}`)
	rec.HandleSessionEnd(rig.TopicInfo{SessionID: "abc123"}, payload)

	results, err := st.RecentResults(context.Background(), 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 recorded result, got %d", len(results))
	}
	got := results[0]
	if got.SessionID != "abc123" || got.Game != "whackamole" || got.DurationSec != 60 {
		t.Errorf("unexpected row %+v", got)
	}
	want := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if !got.FinishedAt.Equal(want) {
		t.Errorf("expected finished_at %v, got %v", want, got.FinishedAt)
	}
}

func TestRecorder_SessionIDFallsBackToTopic(t *testing.T) {
	st := openTestStore(t)
	rec := NewRecorder(st)

	rec.HandleSessionEnd(rig.TopicInfo{SessionID: "from-topic"}, []byte(`{"event":"game_over","game":"whackamole"}`))

	results, err := st.RecentResults(context.Background(), 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 || results[0].SessionID != "from-topic" {
		t.Errorf("expected fallback to the topic's session id, got %+v", results)
	}
}

func TestRecorder_MalformedResultIsDropped(t *testing.T) {
	st := openTestStore(t)
	rec := NewRecorder(st)

	rec.HandleSessionEnd(rig.TopicInfo{SessionID: "abc123"}, []byte(`{"event":`))
	rec.HandleSessionEnd(rig.TopicInfo{}, []byte(`{"event":"game_over"}`))

	results, err := st.RecentResults(context.Background(), 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected nothing recorded, got %d rows", len(results))
	}
}
