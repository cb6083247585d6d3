package csync_test

import (
	"testing"

	"csync/internal/csync"
)

func TestPathNormalizer(t *testing.T) {
	t.Parallel()
	n := csync.NewPathNormalizer("/site/content/")

	if n.Root() != "/site/content" {
		t.Errorf("Root() = %q, want /site/content", n.Root())
	}

	toDB := []struct {
		in, want string
	}{
		{"/site/content/a.md", "/a.md"},
		{"/site/content/posts/b.md", "/posts/b.md"},
		{"posts/b.md", "/posts/b.md"},
		{"/posts/b.md/", "/posts/b.md"},
		{"/site/contentx/a.md", "/site/contentx/a.md"},
	}
	for _, tt := range toDB {
		if got := n.ToDBPath(tt.in); got != tt.want {
			t.Errorf("ToDBPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	toFull := []struct {
		in, want string
	}{
		{"/a.md", "/site/content/a.md"},
		{"a.md", "/site/content/a.md"},
		{"/site/content/a.md", "/site/content/a.md"},
	}
	for _, tt := range toFull {
		if got := n.ToFullPath(tt.in); got != tt.want {
			t.Errorf("ToFullPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPathNormalizer_RoundTrip(t *testing.T) {
	t.Parallel()
	n := csync.NewPathNormalizer("/site/content")

	for _, p := range []string{"/a.md", "/posts/2024/b.md", "/x y.md"} {
		if got := n.ToDBPath(n.ToFullPath(p)); got != p {
			t.Errorf("ToDBPath(ToFullPath(%q)) = %q", p, got)
		}
	}
}

func TestPathNormalizer_Contains(t *testing.T) {
	t.Parallel()
	n := csync.NewPathNormalizer("/site/content")

	tests := map[string]bool{
		"/site/content":        true,
		"/site/content/a.md":   true,
		"/site/content/x/b.md": true,
		"/site/contentx/a.md":  false,
		"/elsewhere/a.md":      false,
		"a.md":                 false,
	}
	for p, want := range tests {
		if got := n.Contains(p); got != want {
			t.Errorf("Contains(%q) = %v, want %v", p, got, want)
		}
	}
}
