package cms

import (
	"context"
	"slices"
	"testing"

	"csync/internal/content"
	"csync/internal/csync"
	"csync/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	return NewStore(db, content.Registry())
}

func newRecord(t *testing.T, s *Store, class string, fields map[string]string) csync.Content {
	t.Helper()
	c, ok := s.ContentClasses().New(class)
	if !ok {
		t.Fatalf("unknown class %s", class)
	}
	for field, v := range fields {
		if err := c.Assign(field, &v); err != nil {
			t.Fatalf("Assign(%s) error = %v", field, err)
		}
	}
	return c
}

func TestStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tags, err := s.GetOrAddTagsByName(ctx, []string{"Five Tag", "Six Tag"})
	if err != nil {
		t.Fatalf("GetOrAddTagsByName() error = %v", err)
	}
	c := newRecord(t, s, "post", map[string]string{
		"title":       "New Content 1",
		"dateCreated": "2024-02-03",
		"author":      "Ann",
		"content":     "Body",
	})
	c.SetTags(tags)

	if err := s.SaveContent(ctx, c); err != nil {
		t.Fatalf("SaveContent() error = %v", err)
	}
	if c.ID() == 0 {
		t.Fatal("SaveContent() did not assign an id")
	}

	got, err := s.ContentByID(ctx, c.ID())
	if err != nil {
		t.Fatalf("ContentByID() error = %v", err)
	}
	if got == nil {
		t.Fatal("ContentByID() returned nil")
	}
	for _, field := range c.Fields() {
		want, have := c.Raw(field), got.Raw(field)
		if (want == nil) != (have == nil) || (want != nil && *want != *have) {
			t.Errorf("%s = %v, want %v", field, have, want)
		}
	}
	if !got.IsSystem(csync.FieldAddress) {
		t.Error("loaded address is not derived")
	}
	if names := csync.TagNames(got.Tags()); !slices.Equal(names, []string{"Five Tag", "Six Tag"}) {
		t.Errorf("tags = %v", names)
	}

	byAddr, err := s.ContentByAddress(ctx, "/new-content-1")
	if err != nil {
		t.Fatalf("ContentByAddress() error = %v", err)
	}
	if byAddr == nil || byAddr.ID() != c.ID() {
		t.Errorf("ContentByAddress() = %v, want content %d", byAddr, c.ID())
	}
}

func TestStore_ExplicitAddressSurvivesReload(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c := newRecord(t, s, "page", map[string]string{"title": "About", "address": "/about-us"})
	if err := s.SaveContent(ctx, c); err != nil {
		t.Fatalf("SaveContent() error = %v", err)
	}

	got, _ := s.ContentByAddress(ctx, "/about-us")
	if got == nil {
		t.Fatal("no content at /about-us")
	}
	if got.IsSystem(csync.FieldAddress) {
		t.Error("explicit address loaded as derived")
	}
}

func TestStore_ClearedDefaultSurvivesReload(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c := newRecord(t, s, "post", map[string]string{"title": "Quiet"})
	if err := c.Assign("active", nil); err != nil {
		t.Fatalf("Assign(active, nil) error = %v", err)
	}
	if err := s.SaveContent(ctx, c); err != nil {
		t.Fatalf("SaveContent() error = %v", err)
	}

	got, err := s.ContentByID(ctx, c.ID())
	if err != nil || got == nil {
		t.Fatalf("ContentByID() = %v, %v", got, err)
	}
	if v := got.Raw("active"); v != nil {
		t.Errorf("active = %q after reload, want unset", *v)
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if c, err := s.ContentByID(ctx, 99); err != nil || c != nil {
		t.Errorf("ContentByID(99) = %v, %v, want nil, nil", c, err)
	}
	if c, err := s.ContentByAddress(ctx, "/nowhere"); err != nil || c != nil {
		t.Errorf("ContentByAddress() = %v, %v, want nil, nil", c, err)
	}
}

func TestStore_GetOrAddTagsByName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.GetOrAddTagsByName(ctx, []string{"A", "B"})
	if err != nil {
		t.Fatalf("GetOrAddTagsByName() error = %v", err)
	}
	second, err := s.GetOrAddTagsByName(ctx, []string{"B", "C", "A"})
	if err != nil {
		t.Fatalf("GetOrAddTagsByName() error = %v", err)
	}

	if names := csync.TagNames(second); !slices.Equal(names, []string{"B", "C", "A"}) {
		t.Errorf("names = %v, want input order", names)
	}
	if second[0].ID != first[1].ID || second[2].ID != first[0].ID {
		t.Error("existing tags were not reused")
	}
	if second[1].ID == 0 {
		t.Error("new tag has no id")
	}
}

func TestStore_UpdateReplacesTags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tags, _ := s.GetOrAddTagsByName(ctx, []string{"X", "Y", "X"})
	c := newRecord(t, s, "post", map[string]string{"title": "Hello"})
	c.SetTags(tags)
	if err := s.SaveContent(ctx, c); err != nil {
		t.Fatalf("SaveContent() error = %v", err)
	}

	got, _ := s.ContentByID(ctx, c.ID())
	if names := csync.TagNames(got.Tags()); !slices.Equal(names, []string{"X", "Y"}) {
		t.Errorf("tags = %v, want duplicates dropped", names)
	}

	c.SetTags(tags[1:2])
	if err := s.SaveContent(ctx, c); err != nil {
		t.Fatalf("SaveContent() update error = %v", err)
	}
	got, _ = s.ContentByID(ctx, c.ID())
	if names := csync.TagNames(got.Tags()); !slices.Equal(names, []string{"Y"}) {
		t.Errorf("tags = %v, want [Y]", names)
	}
}

func TestStore_SaveContentErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("no address", func(t *testing.T) {
		c := newRecord(t, s, "post", nil)
		if err := s.SaveContent(ctx, c); err == nil {
			t.Error("SaveContent() expected error for content without a title")
		}
	})

	t.Run("duplicate address", func(t *testing.T) {
		a := newRecord(t, s, "post", map[string]string{"title": "Same"})
		b := newRecord(t, s, "page", map[string]string{"title": "Same"})
		if err := s.SaveContent(ctx, a); err != nil {
			t.Fatalf("SaveContent() error = %v", err)
		}
		if err := s.SaveContent(ctx, b); err == nil {
			t.Error("SaveContent() expected unique constraint error")
		}
	})
}

func TestStore_DeleteContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tags, _ := s.GetOrAddTagsByName(ctx, []string{"X"})
	c := newRecord(t, s, "post", map[string]string{"title": "Bye"})
	c.SetTags(tags)
	if err := s.SaveContent(ctx, c); err != nil {
		t.Fatalf("SaveContent() error = %v", err)
	}

	if err := s.DeleteContent(ctx, c); err != nil {
		t.Fatalf("DeleteContent() error = %v", err)
	}
	if got, _ := s.ContentByID(ctx, c.ID()); got != nil {
		t.Error("content still exists")
	}
	var links int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM content_tags`).Scan(&links); err != nil {
		t.Fatalf("counting links: %v", err)
	}
	if links != 0 {
		t.Errorf("content_tags has %d rows, want 0", links)
	}
}

func TestStore_ContentIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, title := range []string{"Zeta", "Alpha"} {
		if err := s.SaveContent(ctx, newRecord(t, s, "page", map[string]string{"title": title})); err != nil {
			t.Fatalf("SaveContent() error = %v", err)
		}
	}

	all, err := s.ContentIndex(ctx)
	if err != nil {
		t.Fatalf("ContentIndex() error = %v", err)
	}
	var addrs []string
	for _, c := range all {
		addrs = append(addrs, csync.Address(c))
	}
	if !slices.Equal(addrs, []string{"/alpha", "/zeta"}) {
		t.Errorf("addresses = %v, want [/alpha /zeta]", addrs)
	}
}

func TestMigrations(t *testing.T) {
	db, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := Migrations.CheckStatus(db); err == nil {
		t.Error("CheckStatus() expected error for fresh database")
	}
	if err := Migrations.Up(db); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if err := Migrations.CheckStatus(db); err != nil {
		t.Errorf("CheckStatus() after migration error = %v", err)
	}

	for _, table := range []string{"content", "tags", "content_tags", "cms_schema_migrations"} {
		var name string
		if err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name); err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}
