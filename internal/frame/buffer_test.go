package frame

import "testing"

func TestPoolGetRelease(t *testing.T) {
	pool := NewPool(4, 2, 2)

	buf := pool.Get()
	if len(buf.Pix) != 4*2*4 {
		t.Fatalf("Pix length = %d, want %d", len(buf.Pix), 4*2*4)
	}
	if pool.InUse() != 1 {
		t.Errorf("InUse = %d, want 1", pool.InUse())
	}

	buf.Pix[0] = 0xFF
	buf.Release()

	if pool.InUse() != 0 {
		t.Errorf("InUse after release = %d, want 0", pool.InUse())
	}

	// The recycled buffer must come back zeroed.
	buf2 := pool.Get()
	for i, v := range buf2.Pix {
		if v != 0 {
			t.Fatalf("recycled buffer not zeroed at byte %d: %d", i, v)
		}
	}
}

func TestPoolReusesBuffers(t *testing.T) {
	pool := NewPool(2, 2, 4)

	buf := pool.Get()
	pix := &buf.Pix[0]
	buf.Release()

	buf2 := pool.Get()
	if &buf2.Pix[0] != pix {
		t.Error("pool did not reuse the released buffer")
	}
}

func TestPoolRetentionBound(t *testing.T) {
	pool := NewPool(2, 2, 1)

	a, b := pool.Get(), pool.Get()
	a.Release()
	b.Release()

	pool.mu.Lock()
	retained := len(pool.free)
	pool.mu.Unlock()

	if retained != 1 {
		t.Errorf("retained %d buffers, want 1", retained)
	}
}

func TestPoolTrim(t *testing.T) {
	pool := NewPool(2, 2, 4)
	pool.Get().Release()
	pool.Trim()

	pool.mu.Lock()
	retained := len(pool.free)
	pool.mu.Unlock()

	if retained != 0 {
		t.Errorf("retained %d buffers after Trim, want 0", retained)
	}
}

func TestReleaseNilSafe(t *testing.T) {
	var buf *Buffer
	buf.Release() // must not panic

	b := &Buffer{}
	b.Release() // no pool, must not panic
}

func TestFrameBytes(t *testing.T) {
	pool := NewPool(640, 480, 2)
	if got := pool.FrameBytes(); got != 640*480*4 {
		t.Errorf("FrameBytes = %d, want %d", got, 640*480*4)
	}
}
