package fs

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"csync/internal/csync"
)

// Scan yields every regular file under root that the ignore matcher does not
// exclude. Directories are visited depth first in the order os.ReadDir
// returns them, so the sequence is sorted by name at each level. Ignored
// directories are not descended. A symlink, special file or unreadable entry
// ends the sequence with an error.
func (m *OSFilesystemManager) Scan(root string) iter.Seq2[csync.ScanEntry, error] {
	return func(yield func(csync.ScanEntry, error) bool) {
		m.scanDir(root, "", yield)
	}
}

// scanDir returns false once the caller stops iterating or an error was yielded.
func (m *OSFilesystemManager) scanDir(root, rel string, yield func(csync.ScanEntry, error) bool) bool {
	dir := filepath.Join(root, rel)
	entries, err := os.ReadDir(dir)
	if err != nil {
		yield(csync.ScanEntry{}, fmt.Errorf("reading directory %s: %w", dir, err))
		return false
	}

	for _, entry := range entries {
		entryRel := filepath.Join(rel, entry.Name())
		full := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if m.ignore.MatchDir(entryRel) {
				continue
			}
			if !m.scanDir(root, entryRel, yield) {
				return false
			}
			continue
		}
		if m.ignore.Match(entryRel) {
			continue
		}
		if err := checkMode(full, entry.Type()); err != nil {
			yield(csync.ScanEntry{}, err)
			return false
		}

		info, err := entry.Info()
		if err != nil {
			yield(csync.ScanEntry{}, fmt.Errorf("stat %s: %w", full, err))
			return false
		}
		e := csync.ScanEntry{
			Dir:     dir,
			Name:    entry.Name(),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		}
		if !yield(e, nil) {
			return false
		}
	}
	return true
}
