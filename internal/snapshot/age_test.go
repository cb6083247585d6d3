package snapshot

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestSealer(t *testing.T, passphrase string) (*AgeSealer, *MemoryStore) {
	t.Helper()
	dir := t.TempDir()
	pub := filepath.Join(dir, "keys", "csync.pub")
	priv := filepath.Join(dir, "keys", "csync.key")
	if passphrase != "" {
		if err := Keygen(pub, priv, passphrase); err != nil {
			t.Fatalf("Keygen() error = %v", err)
		}
	}
	inner := NewMemoryStore()
	return NewAgeSealer(inner, pub, priv), inner
}

func TestAgeSealer_IsConfigured(t *testing.T) {
	t.Parallel()
	if s, _ := newTestSealer(t, ""); s.IsConfigured() {
		t.Error("IsConfigured() = true before Keygen, want false")
	}
	if s, _ := newTestSealer(t, "pw"); !s.IsConfigured() {
		t.Error("IsConfigured() = false after Keygen, want true")
	}
}

func TestAgeSealer_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "simple text", input: []byte("hello world")},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
		{name: "large data", input: bytes.Repeat([]byte("abcdef"), 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			sealer, inner := newTestSealer(t, "test-passphrase")

			if err := sealer.Put(ctx, "host", bytes.NewReader(tt.input), int64(len(tt.input)), 3); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			var stored bytes.Buffer
			if err := inner.Get(ctx, "host", &stored); err != nil {
				t.Fatalf("inner Get() error = %v", err)
			}
			if len(tt.input) > 0 && bytes.Contains(stored.Bytes(), tt.input) {
				t.Error("stored snapshot contains the plaintext")
			}
			if v, _ := sealer.Version(ctx, "host"); v != 3 {
				t.Errorf("Version() = %d, want 3", v)
			}

			if err := sealer.Unlock("test-passphrase"); err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			var out bytes.Buffer
			if err := sealer.Get(ctx, "host", &out); err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !bytes.Equal(out.Bytes(), tt.input) {
				t.Errorf("round-trip failed: got %d bytes, want %d bytes", out.Len(), len(tt.input))
			}
		})
	}
}

func TestAgeSealer_GetLocked(t *testing.T) {
	t.Parallel()
	sealer, _ := newTestSealer(t, "pw")
	var out bytes.Buffer
	if err := sealer.Get(context.Background(), "host", &out); !errors.Is(err, ErrLocked) {
		t.Errorf("Get() error = %v, want ErrLocked", err)
	}
}

func TestAgeSealer_UnlockWrongPassphrase(t *testing.T) {
	t.Parallel()
	sealer, _ := newTestSealer(t, "correct-passphrase")
	if err := sealer.Unlock("wrong-passphrase"); err == nil {
		t.Error("Unlock() with wrong passphrase should return error")
	}
}

func TestAgeSealer_PutBeforeKeygen(t *testing.T) {
	t.Parallel()
	sealer, _ := newTestSealer(t, "")
	if err := sealer.Put(context.Background(), "host", bytes.NewReader([]byte("data")), 4, 1); err == nil {
		t.Error("Put() before Keygen should return error")
	}
}

func TestAgeSealer_SizeMismatch(t *testing.T) {
	t.Parallel()
	sealer, inner := newTestSealer(t, "pw")
	if err := sealer.Put(context.Background(), "host", bytes.NewReader([]byte("data")), 99, 1); err == nil {
		t.Error("Put() expected size mismatch error")
	}
	if v, _ := inner.Version(context.Background(), "host"); v != 0 {
		t.Error("mismatched snapshot reached the store")
	}
}
