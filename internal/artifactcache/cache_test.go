package artifactcache

import (
	"context"
	"testing"
	"time"

	"gifforge/internal/source"
)

func testRequest() source.Request {
	return source.Request{FPS: 10, Quality: 80, Format: source.FormatGIF}
}

func TestFingerprintSensitivity(t *testing.T) {
	mod := time.Unix(1700000000, 0)
	base := Fingerprint("/videos/a.mp4", 1024, mod, testRequest())

	tests := []struct {
		name string
		key  string
	}{
		{"different path", Fingerprint("/videos/b.mp4", 1024, mod, testRequest())},
		{"different size", Fingerprint("/videos/a.mp4", 2048, mod, testRequest())},
		{"different mtime", Fingerprint("/videos/a.mp4", 1024, mod.Add(time.Second), testRequest())},
		{"different fps", Fingerprint("/videos/a.mp4", 1024, mod, source.Request{FPS: 5, Quality: 80, Format: source.FormatGIF})},
		{"different quality", Fingerprint("/videos/a.mp4", 1024, mod, source.Request{FPS: 10, Quality: 30, Format: source.FormatGIF})},
		{"different format", Fingerprint("/videos/a.mp4", 1024, mod, source.Request{FPS: 10, Quality: 80, Format: source.FormatMP4})},
	}

	for _, tt := range tests {
		if tt.key == base {
			t.Errorf("%s: fingerprint collided with base", tt.name)
		}
	}

	if again := Fingerprint("/videos/a.mp4", 1024, mod, testRequest()); again != base {
		t.Error("identical inputs produced different fingerprints")
	}
}

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return c
}

func TestCacheRoundTrip(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	if _, _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want miss", ok, err)
	}

	artifact := []byte("GIF89a-test-bytes")
	if err := c.Set(ctx, "fp1", "gif", artifact, time.Hour); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	data, format, ok, err := c.Get(ctx, "fp1")
	if err != nil || !ok {
		t.Fatalf("Get(fp1) = ok=%v err=%v, want hit", ok, err)
	}
	if format != "gif" {
		t.Errorf("format = %q, want gif", format)
	}
	if string(data) != string(artifact) {
		t.Errorf("data = %q, want %q", data, artifact)
	}
}

func TestCacheOverwrite(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "fp1", "gif", []byte("old"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "fp1", "mp4", []byte("new"), time.Hour); err != nil {
		t.Fatal(err)
	}

	data, format, ok, err := c.Get(ctx, "fp1")
	if err != nil || !ok {
		t.Fatalf("Get after overwrite = ok=%v err=%v", ok, err)
	}
	if format != "mp4" || string(data) != "new" {
		t.Errorf("got %q/%q, want mp4/new", format, data)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	// Negative-offset expiry via direct insert: Set treats ttl<=0 as default.
	if _, err := c.db.ExecContext(ctx,
		"INSERT INTO artifacts (fingerprint, format, data, size, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)",
		"stale", "gif", []byte("x"), 1, time.Now().Add(-2*time.Hour).Unix(), time.Now().Add(-time.Hour).Unix()); err != nil {
		t.Fatal(err)
	}

	if _, _, ok, err := c.Get(ctx, "stale"); err != nil || ok {
		t.Fatalf("Get(stale) = ok=%v err=%v, want expired miss", ok, err)
	}

	// Lazy eviction removed the row.
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM artifacts WHERE fingerprint = 'stale'").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expired row still present")
	}
}

func TestCachePurge(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	for i, exp := range []int64{
		time.Now().Add(-time.Hour).Unix(),
		time.Now().Add(-time.Minute).Unix(),
		time.Now().Add(time.Hour).Unix(),
	} {
		if _, err := c.db.ExecContext(ctx,
			"INSERT INTO artifacts (fingerprint, format, data, size, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)",
			string(rune('a'+i)), "gif", []byte("x"), 1, time.Now().Unix(), exp); err != nil {
			t.Fatal(err)
		}
	}

	n, err := c.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Purge() = %d, want 2", n)
	}
}
