package infra

import (
	"context"
	"testing"
	"time"

	"media-analytics-api/middleware/ratelimit/domain"
)

func sampleEvents() []domain.StatsEvent {
	return []domain.StatsEvent{
		{Identity: "ip:1", Policy: "auth", Outcome: domain.OutcomeAllowed, Method: "POST", Path: "/v1/auth/login"},
		{Identity: "ip:1", Policy: "auth", Outcome: domain.OutcomeDenied, Method: "POST", Path: "/v1/auth/login"},
		{Identity: "user:7", Policy: "views", Outcome: domain.OutcomeFailOpen, Method: "GET", Path: "/v1/media/{id}"},
		{Identity: "user:7", Policy: "media-write", Outcome: domain.OutcomeFailClosed, Method: "POST", Path: "/v1/media"},
	}
}

func checkSummary(t *testing.T, sum domain.StatsSummary) {
	t.Helper()
	want := domain.Counters{Allowed: 1, Denied: 1, FailOpen: 1, FailClosed: 1}
	if sum.Total != want {
		t.Fatalf("unexpected total %+v", sum.Total)
	}
	if got := sum.ByPolicy["auth"]; got.Allowed != 1 || got.Denied != 1 {
		t.Fatalf("unexpected auth counters %+v", got)
	}
	if got := sum.ByRoute["GET /v1/media/{id}"]; got.FailOpen != 1 {
		t.Fatalf("unexpected route counters %+v", got)
	}
	if got := sum.ByPolicy["media-write"]; got.FailClosed != 1 {
		t.Fatalf("unexpected media-write counters %+v", got)
	}
}

func TestMemoryStatsStore_Summary(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()
	for _, ev := range sampleEvents() {
		if err := s.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	sum, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	checkSummary(t, sum)

	if got := s.ByKey()["ip:1"]; got.Allowed != 1 || got.Denied != 1 {
		t.Fatalf("unexpected per-key counters %+v", got)
	}

	// o snapshot não enxerga escritas posteriores
	_ = s.Record(ctx, sampleEvents()[0])
	if sum.ByPolicy["auth"].Allowed != 1 {
		t.Fatalf("summary must be a copy")
	}
	if s.Total().Allowed != 2 {
		t.Fatalf("expected 2 allowed, got %d", s.Total().Allowed)
	}
}

func TestMemoryStatsStore_KeysNotTrackedByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), sampleEvents()[0])
	if len(s.ByKey()) != 0 {
		t.Fatalf("expected no per-key tracking")
	}
}

func TestRedisStatsStore_RecordAndSummary(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsPrefix("stats:"), WithStatsTrackKeys(true), WithStatsTTL(time.Hour))
	ctx := context.Background()

	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	for _, ev := range sampleEvents() {
		ev.At = at
		if err := s.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	sum, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	checkSummary(t, sum)

	bucket := "stats:minute:202403011230"
	if !mr.Exists(bucket) {
		t.Fatalf("expected minute bucket %s", bucket)
	}
	if ttl := mr.TTL(bucket); ttl != time.Hour {
		t.Fatalf("expected bucket ttl=1h, got %s", ttl)
	}
	if got := mr.HGet("stats:key:ip:1", "denied"); got != "1" {
		t.Fatalf("expected per-key denied=1, got %q", got)
	}
	if mr.TTL("stats:total") != 0 {
		t.Fatalf("cumulative hashes must not expire")
	}
}

func TestRedisStatsStore_NoBucketNoKeys(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsBucket("none"))
	_ = s.Record(context.Background(), sampleEvents()[0])

	for _, k := range mr.Keys() {
		if k != "ratelimit-stats:total" && k != "ratelimit-stats:policy" && k != "ratelimit-stats:route" {
			t.Fatalf("unexpected key %s", k)
		}
	}
}

func TestRedisStatsStore_EmptyPrefixKeepsDefault(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsPrefix(""))
	if s.prefix != domain.DefaultStatsPrefix {
		t.Fatalf("expected default prefix, got %q", s.prefix)
	}
}

func TestFoldGrouped_SplitsOnLastColon(t *testing.T) {
	out := map[string]domain.Counters{}
	err := foldGrouped(map[string]string{
		"GET /v1/media/{id}:allowed": "3",
		"GET /v1/media/{id}:denied":  "2",
		"broken":                     "9",
	}, out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out["GET /v1/media/{id}"]; got.Allowed != 3 || got.Denied != 2 {
		t.Fatalf("unexpected fold %+v", got)
	}
	if len(out) != 1 {
		t.Fatalf("expected malformed field to be skipped")
	}

	if err := foldGrouped(map[string]string{"a:allowed": "x"}, out); err == nil {
		t.Fatalf("expected parse error")
	}
}
