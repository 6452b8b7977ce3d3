// Package cache keeps the last response for each remote data source on disk,
// so later loads can revalidate it with a conditional request instead of
// downloading it again.
package cache

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	fileSuffix = ".zip.gob"
	entryName  = "data.gob"
)

var ErrInvalidEntry = errors.New("invalid cache file")

// Entry is one cached response body with its validators.
type Entry struct {
	Source       string
	ETag         string
	LastModified string
	FetchedAt    time.Time
	Body         []byte
}

// Validated reports whether the entry can be revalidated by the server.
func (e *Entry) Validated() bool {
	return e.ETag != "" || e.LastModified != ""
}

// Store is a directory of gob-encoded, zip-compressed entries.
type Store struct {
	Dir string
}

// DefaultDir is the per-user cache directory.
func DefaultDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user cache directory: %w", err)
	}
	return filepath.Join(dir, "voterchart"), nil
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Path returns the cache file for source.
func (s *Store) Path(source string) string {
	sum := sha256.Sum256([]byte(source))
	return filepath.Join(s.Dir, hex.EncodeToString(sum[:])+fileSuffix)
}

// Exists checks if an entry exists for source.
func (s *Store) Exists(source string) bool {
	_, err := os.Stat(s.Path(source))
	return err == nil
}

// Save writes e, replacing any previous entry for the same source.
func (s *Store) Save(e *Entry) error {
	cacheFile := s.Path(e.Source)
	if err := os.MkdirAll(filepath.Dir(cacheFile), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", filepath.Dir(cacheFile), err)
	}

	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)
	dataWriter, err := zipWriter.Create(entryName)
	if err != nil {
		return fmt.Errorf("failed to create %s entry in zip: %w", entryName, err)
	}
	if err := gob.NewEncoder(dataWriter).Encode(e); err != nil {
		return fmt.Errorf("failed to gob-encode cache entry: %w", err)
	}
	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}

	// Write then rename so readers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(cacheFile), "entry-*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := buf.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache file %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cache file %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), cacheFile); err != nil {
		return fmt.Errorf("failed to move cache file into place: %w", err)
	}
	return nil
}

// Load reads the entry for source.
func (s *Store) Load(source string) (*Entry, error) {
	cacheFile := s.Path(source)
	zipReader, err := zip.OpenReader(cacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip cache file %s: %w", cacheFile, err)
	}
	defer zipReader.Close()

	if len(zipReader.File) == 0 || zipReader.File[0].Name != entryName {
		return nil, fmt.Errorf("%w: %s not found in %s", ErrInvalidEntry, entryName, cacheFile)
	}
	dataFile, err := zipReader.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s from zip: %w", entryName, err)
	}
	defer dataFile.Close()

	var e Entry
	if err := gob.NewDecoder(dataFile).Decode(&e); err != nil {
		return nil, fmt.Errorf("failed to gob-decode cache entry: %w", err)
	}
	if e.Source != source {
		return nil, fmt.Errorf("%w: %s holds %s", ErrInvalidEntry, cacheFile, e.Source)
	}
	return &e, nil
}

// Clear removes the entry for source, if any.
func (s *Store) Clear(source string) error {
	cacheFile := s.Path(source)
	if err := os.Remove(cacheFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file %s: %w", cacheFile, err)
	}
	return nil
}

// ClearAll removes every entry and returns how many were removed.
func (s *Store) ClearAll() (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory %s: %w", s.Dir, err)
	}

	removed := 0
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), fileSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.Dir, de.Name())); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove cache file %s: %w", de.Name(), err)
		}
		removed++
	}
	return removed, nil
}
