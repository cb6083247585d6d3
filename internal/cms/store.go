package cms

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"csync/internal/csync"
)

// Store is a SQLite content store. It persists any csync.Content generically:
// the address and body get their own columns and every other non-system field
// is kept as a JSON object of raw values.
type Store struct {
	db       *sql.DB
	registry *csync.ClassRegistry
	now      func() time.Time
}

var _ csync.ContentStore = (*Store)(nil)

// NewStore wraps a connection whose schema includes the content tables.
func NewStore(db *sql.DB, registry *csync.ClassRegistry) *Store {
	return &Store{db: db, registry: registry, now: time.Now}
}

// ContentClasses returns the registry records are built from.
func (s *Store) ContentClasses() *csync.ClassRegistry {
	return s.registry
}

type contentRow struct {
	id             int64
	class          string
	address        string
	addressDerived bool
	fields         string
	body           string
}

const selectContent = `SELECT id, content_class, address, address_derived, fields, body FROM content`

func scanContent(row interface{ Scan(...any) error }) (contentRow, error) {
	var r contentRow
	err := row.Scan(&r.id, &r.class, &r.address, &r.addressDerived, &r.fields, &r.body)
	return r, err
}

func (s *Store) ContentByID(ctx context.Context, id int64) (csync.Content, error) {
	r, err := scanContent(s.db.QueryRowContext(ctx, selectContent+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding content by id: %w", err)
	}
	return s.load(ctx, r)
}

func (s *Store) ContentByAddress(ctx context.Context, address string) (csync.Content, error) {
	r, err := scanContent(s.db.QueryRowContext(ctx, selectContent+` WHERE address = ?`, address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding content by address: %w", err)
	}
	return s.load(ctx, r)
}

// ContentIndex returns every record ordered by address.
func (s *Store) ContentIndex(ctx context.Context) ([]csync.Content, error) {
	rows, err := s.db.QueryContext(ctx, selectContent+` ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("listing content: %w", err)
	}
	var raw []contentRow
	for rows.Next() {
		r, err := scanContent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning content: %w", err)
		}
		raw = append(raw, r)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("listing content: %w", err)
	}

	// Tags are loaded after the cursor is closed; the pool holds one connection.
	out := make([]csync.Content, 0, len(raw))
	for _, r := range raw {
		c, err := s.load(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) load(ctx context.Context, r contentRow) (csync.Content, error) {
	c, ok := s.registry.New(r.class)
	if !ok {
		return nil, fmt.Errorf("content %d has unregistered class %q", r.id, r.class)
	}
	c.SetID(r.id)

	var fields map[string]*string
	if err := json.Unmarshal([]byte(r.fields), &fields); err != nil {
		return nil, fmt.Errorf("decoding fields of content %d: %w", r.id, err)
	}
	for _, name := range c.Fields() {
		v, ok := fields[name]
		if !ok || c.IsSystem(name) {
			continue
		}
		if err := c.Assign(name, v); err != nil {
			return nil, fmt.Errorf("loading %s of content %d: %w", name, r.id, err)
		}
	}

	if r.addressDerived {
		if err := c.SetDerived(csync.FieldAddress, r.address); err != nil {
			return nil, err
		}
	} else if err := c.Assign(csync.FieldAddress, &r.address); err != nil {
		return nil, err
	}
	if err := c.Assign(csync.FieldBody, &r.body); err != nil {
		return nil, err
	}

	tags, err := s.tagsFor(ctx, r.id)
	if err != nil {
		return nil, err
	}
	c.SetTags(tags)
	return c, nil
}

func (s *Store) tagsFor(ctx context.Context, contentID int64) ([]csync.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.tag
		FROM content_tags ct
		JOIN tags t ON t.id = ct.tag_id
		WHERE ct.content_id = ?
		ORDER BY ct.position`, contentID)
	if err != nil {
		return nil, fmt.Errorf("loading tags: %w", err)
	}
	defer rows.Close()

	var tags []csync.Tag
	for rows.Next() {
		var t csync.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *Store) GetOrAddTagsByName(ctx context.Context, names []string) ([]csync.Tag, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	tags := make([]csync.Tag, 0, len(names))
	for _, name := range names {
		t := csync.Tag{Name: name}
		err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE tag = ?`, name).Scan(&t.ID)
		if errors.Is(err, sql.ErrNoRows) {
			res, err := tx.ExecContext(ctx, `INSERT INTO tags (tag) VALUES (?)`, name)
			if err != nil {
				return nil, fmt.Errorf("inserting tag %q: %w", name, err)
			}
			if t.ID, err = res.LastInsertId(); err != nil {
				return nil, fmt.Errorf("inserting tag %q: %w", name, err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("finding tag %q: %w", name, err)
		}
		tags = append(tags, t)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return tags, nil
}

// SaveContent inserts or updates c and replaces its tag links in one
// transaction. Tags must already exist.
func (s *Store) SaveContent(ctx context.Context, c csync.Content) error {
	address := csync.Address(c)
	if address == "" {
		return fmt.Errorf("%s content has no address (is the title set?)", c.Class())
	}

	// Unset fields are stored as explicit nulls so loading does not
	// reapply class defaults.
	fields := make(map[string]*string)
	for _, name := range c.Fields() {
		switch name {
		case csync.FieldID, csync.FieldClass, csync.FieldAddress, csync.FieldBody:
			continue
		}
		if c.IsSystem(name) {
			continue
		}
		fields[name] = c.Raw(name)
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}
	var body string
	if v := c.Raw(csync.FieldBody); v != nil {
		body = *v
	}
	derived := c.IsSystem(csync.FieldAddress)
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	id := c.ID()
	if id == 0 {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO content (content_class, address, address_derived, fields, body, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.Class(), address, derived, string(encoded), body, now, now)
		if err != nil {
			return fmt.Errorf("inserting content at %s: %w", address, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("inserting content at %s: %w", address, err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE content
			SET content_class = ?, address = ?, address_derived = ?, fields = ?, body = ?, updated_at = ?
			WHERE id = ?`,
			c.Class(), address, derived, string(encoded), body, now, id)
		if err != nil {
			return fmt.Errorf("updating content %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("updating content %d: no such content", id)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM content_tags WHERE content_id = ?`, id); err != nil {
		return fmt.Errorf("clearing tags of content %d: %w", id, err)
	}
	seen := make(map[int64]bool)
	for pos, t := range c.Tags() {
		if t.ID == 0 || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO content_tags (content_id, tag_id, position) VALUES (?, ?, ?)`,
			id, t.ID, pos); err != nil {
			return fmt.Errorf("linking tag %q to content %d: %w", t.Name, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	c.SetID(id)
	return nil
}

// DeleteContent removes c. Tag links and the managing content file row go
// with it through ON DELETE CASCADE.
func (s *Store) DeleteContent(ctx context.Context, c csync.Content) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM content WHERE id = ?`, c.ID()); err != nil {
		return fmt.Errorf("deleting content %d: %w", c.ID(), err)
	}
	return nil
}
