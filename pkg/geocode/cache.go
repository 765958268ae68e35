package geocode

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// failureSentinel is the file content written for a recorded failure.
const failureSentinel = "null"

// Cache is a filesystem-backed result cache with one entry per building
// identifier under per-source, per-outcome subdirectories:
//
//	<root>/<source>/success/<id>.json
//	<root>/<source>/fail/<id>.json
//
// A failure entry short-circuits future attempts against that source for the
// same identifier. Entries are never deleted here; clearing the directory is
// an operator action. Writes go through a temp file and os.Rename so a
// partially-written entry is never observable, which makes the cache safe
// for concurrent writers across processes.
type Cache struct {
	root string
}

// NewCache creates the cache directory layout under root.
func NewCache(root string) (*Cache, error) {
	for _, source := range []Source{SourceCensus, SourceGoogle} {
		for _, outcome := range []string{"success", "fail"} {
			dir := filepath.Join(root, string(source), outcome)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, eris.Wrapf(err, "geocode: create cache dir %s", dir)
			}
		}
	}
	return &Cache{root: root}, nil
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// HasSuccess reports whether a cached success exists for (source, id).
func (c *Cache) HasSuccess(source Source, id string) bool {
	return fileExists(c.path(source, "success", id))
}

// HasFailure reports whether a failure marker exists for (source, id).
func (c *Cache) HasFailure(source Source, id string) bool {
	return fileExists(c.path(source, "fail", id))
}

// ReadSuccess returns the cached raw payload for (source, id).
func (c *Cache) ReadSuccess(source Source, id string) ([]byte, error) {
	data, err := os.ReadFile(c.path(source, "success", id))
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: read cached %s result for %s", source, id)
	}
	return data, nil
}

// WriteSuccess stores the raw source payload for (source, id).
func (c *Cache) WriteSuccess(source Source, id string, payload []byte) error {
	return writeAtomic(c.path(source, "success", id), payload)
}

// WriteFailure records a permanent failure marker for (source, id).
func (c *Cache) WriteFailure(source Source, id string) error {
	return writeAtomic(c.path(source, "fail", id), []byte(failureSentinel))
}

// CountEntries returns the number of entries per outcome for a source.
func (c *Cache) CountEntries(source Source) (successes, failures int, err error) {
	successes, err = countFiles(filepath.Join(c.root, string(source), "success"))
	if err != nil {
		return 0, 0, err
	}
	failures, err = countFiles(filepath.Join(c.root, string(source), "fail"))
	if err != nil {
		return 0, 0, err
	}
	return successes, failures, nil
}

func (c *Cache) path(source Source, outcome, id string) string {
	return filepath.Join(c.root, string(source), outcome, id+".json")
}

// writeAtomic writes data to a temp file in the target directory and renames
// it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "geocode: create temp file in %s", dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrapf(err, "geocode: write temp file %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "geocode: close temp file %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "geocode: rename into %s", path)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func countFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, eris.Wrapf(err, "geocode: read cache dir %s", dir)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}
