package archive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchRangeBisectsOnOversized(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		start := r.URL.Query().Get("start")
		end := r.URL.Query().Get("end")
		// First call (the full hour) is rejected as oversized; the two
		// bisected 30-minute halves succeed.
		if n == 1 {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("seg:" + start + ":" + end))
	}))
	defer srv.Close()

	c := NewClient(Config{DataselectURL: srv.URL, MaxFetchSeconds: 86_400})
	start := time.Date(2025, 10, 24, 0, 0, 0, 0, time.UTC)
	segs, err := c.FetchRange(context.Background(), testSID(), start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("len(segs) = %d, want 2 (one per bisected half)", len(segs))
	}
	if !segs[0].End.Equal(segs[1].Start) {
		t.Fatalf("segments not contiguous: %v / %v", segs[0].End, segs[1].Start)
	}
}

func TestFetchRangePersistentNoDataBecomesGapSegment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(Config{DataselectURL: srv.URL, MaxFetchSeconds: 86_400})
	start := time.Date(2025, 10, 24, 0, 0, 0, 0, time.UTC)
	segs, err := c.FetchRange(context.Background(), testSID(), start, start.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("FetchRange: %v", err)
	}
	if len(segs) != 1 || !segs[0].NoData {
		t.Fatalf("expected one NoData segment, got %+v", segs)
	}
}

func TestFetchRangePropagatesPermanentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Config{DataselectURL: srv.URL, MaxFetchSeconds: 86_400})
	start := time.Date(2025, 10, 24, 0, 0, 0, 0, time.UTC)
	_, err := c.FetchRange(context.Background(), testSID(), start, start.Add(10*time.Minute))
	if err == nil {
		t.Fatal("expected error for persistent 4xx response")
	}
}
