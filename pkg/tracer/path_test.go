package tracer

import "testing"

func TestResolvePathAbsolutePassthrough(t *testing.T) {
	c := newCWDCache()
	got := c.resolvePath(1, "/etc/hostname")
	if got != "/etc/hostname" {
		t.Fatalf("got %q, want unchanged absolute path", got)
	}
}

func TestResolvePathUsesCachedCWD(t *testing.T) {
	c := newCWDCache()
	c.set(42, "/var/lib/app")

	got := c.resolvePath(42, "data/file.txt")
	want := "/var/lib/app/data/file.txt"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestResolvePathUnreadableCWDReturnsInputUnchanged(t *testing.T) {
	c := newCWDCache()
	const bogusPID = 999999999 // reading its cwd symlink must fail

	got := c.resolvePath(bogusPID, "relative/path")
	if got != "relative/path" {
		t.Fatalf("got %q, want the input returned unchanged", got)
	}
}

func TestCWDCacheInvalidate(t *testing.T) {
	c := newCWDCache()
	c.set(7, "/a/b")
	if _, ok := c.get(7); !ok {
		t.Fatalf("expected cache hit before invalidation")
	}
	c.invalidate(7)
	if _, ok := c.get(7); ok {
		t.Fatalf("expected cache miss after invalidation")
	}
}
