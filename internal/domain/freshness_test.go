package domain

import (
	"testing"
	"time"
)

func TestTTLTableDefaults(t *testing.T) {
	tbl := DefaultTTLTable()
	if got := tbl.TTL(RecordKindIdentity); got != time.Hour {
		t.Fatalf("identity TTL = %v, want 1h", got)
	}
	if got := tbl.TTL(RecordKindResolve); got != 24*time.Hour {
		t.Fatalf("resolve TTL = %v, want 24h", got)
	}
}

func TestTTLTableOverride(t *testing.T) {
	tbl := DefaultTTLTable()
	tbl[RecordKindIdentity] = 5 * time.Minute
	if got := tbl.TTL(RecordKindIdentity); got != 5*time.Minute {
		t.Fatalf("override didn't take effect, got %v", got)
	}
	// unrelated kinds stay at their built-in default
	if got := tbl.TTL(RecordKindResolve); got != 24*time.Hour {
		t.Fatalf("unrelated kind changed: got %v", got)
	}
}

func TestOutdated(t *testing.T) {
	tbl := DefaultTTLTable()
	now := time.Now()

	fresh := now.Add(-30 * time.Minute)
	if tbl.Outdated(RecordKindIdentity, fresh, now) {
		t.Fatalf("30m old identity should not be outdated (TTL 1h)")
	}

	stale := now.Add(-2 * time.Hour)
	if !tbl.Outdated(RecordKindIdentity, stale, now) {
		t.Fatalf("2h old identity should be outdated (TTL 1h)")
	}

	// boundary: exactly at TTL is not yet outdated (strict >)
	boundary := now.Add(-time.Hour)
	if tbl.Outdated(RecordKindIdentity, boundary, now) {
		t.Fatalf("exactly-at-TTL should not be outdated")
	}
}

func TestStatusForRecord(t *testing.T) {
	tbl := DefaultTTLTable()
	now := time.Now()

	fresh := StatusForRecord(RecordKindIdentity, now.Add(-time.Minute), now, tbl)
	if !fresh.Has(StatusCached) || fresh.Has(StatusOutdated) {
		t.Fatalf("fresh record status = %v, want Cached only", fresh)
	}

	stale := StatusForRecord(RecordKindIdentity, now.Add(-2*time.Hour), now, tbl)
	if !stale.Has(StatusCached) || !stale.Has(StatusOutdated) {
		t.Fatalf("stale record status = %v, want Cached and Outdated both set", stale)
	}
}
