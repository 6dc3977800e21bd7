package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestDedup(t *testing.T) (*Deduplicator, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	d, err := New("redis://"+mr.Addr(), "")
	if err != nil {
		mr.Close()
		t.Fatalf("New: %v", err)
	}
	return d, mr
}

func TestAlreadySentNewKey(t *testing.T) {
	d, mr := setupTestDedup(t)
	defer mr.Close()
	defer d.Close()

	if d.AlreadySent(context.Background(), "alert:low_balance:wallet1") {
		t.Error("AlreadySent should return false for a new key")
	}
}

func TestRecordAndClear(t *testing.T) {
	d, mr := setupTestDedup(t)
	defer mr.Close()
	defer d.Close()

	ctx := context.Background()
	key := "alert:low_balance:wallet1"

	d.Record(ctx, key, 0)
	if !d.AlreadySent(ctx, key) {
		t.Fatal("recorded key should report as sent")
	}

	d.Clear(ctx, key)
	if d.AlreadySent(ctx, key) {
		t.Fatal("cleared key should be ready to fire again")
	}
}

func TestRecordWithTTLExpires(t *testing.T) {
	d, mr := setupTestDedup(t)
	defer mr.Close()
	defer d.Close()

	ctx := context.Background()
	key := "alert:refresh_failure"

	d.Record(ctx, key, time.Minute)
	if !d.AlreadySent(ctx, key) {
		t.Fatal("key should be suppressed inside the TTL window")
	}

	mr.FastForward(2 * time.Minute)
	if d.AlreadySent(ctx, key) {
		t.Fatal("key should expire after the TTL window")
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("not-a-redis-url", ""); err == nil {
		t.Fatal("invalid redis url should error")
	}
}
