// Package prefs keeps the history of labels the operator has used.
//
// The store is loaded once at startup, grows by distinct entries only and is
// rewritten after every processed file. Last writer wins; one operator is expected.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
)

const DefaultFileName = "galasort-prefs.json"

type Loco struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

type Store struct {
	Locos     []Loco   `json:"locos"`
	Locations []string `json:"locations"`

	fs   afero.Fs
	path string
}

// Load reads the store at path. A missing file is an empty store.
func Load(fs afero.Fs, path string) (*Store, error) {
	s := &Store{fs: fs, path: path}
	b, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		s.normalize()
		return s, nil
	} else if err != nil {
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	if err := json.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("parse prefs %q: %w", path, err)
	}
	s.normalize()
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) normalize() {
	if s.Locos == nil {
		s.Locos = []Loco{}
	}
	if s.Locations == nil {
		s.Locations = []string{}
	}
}

// Remember appends the loco and location if they are new and not blank.
// It reports whether anything changed.
func (s *Store) Remember(loco Loco, location string) bool {
	changed := false
	loco.Name = strings.TrimSpace(loco.Name)
	loco.Number = strings.TrimSpace(loco.Number)
	if loco.Name != "" || loco.Number != "" {
		if !lo.ContainsBy(s.Locos, func(l Loco) bool { return l == loco }) {
			s.Locos = append(s.Locos, loco)
			changed = true
		}
	}
	location = strings.TrimSpace(location)
	if location != "" && !lo.Contains(s.Locations, location) {
		s.Locations = append(s.Locations, location)
		changed = true
	}
	return changed
}

// LocoNames returns the distinct loco names in sorted order.
func (s *Store) LocoNames() []string {
	names := lo.Uniq(lo.FilterMap(s.Locos, func(l Loco, _ int) (string, bool) {
		return l.Name, l.Name != ""
	}))
	sort.Strings(names)
	return names
}

// Numbers returns the numbers recorded for a loco name, in insertion order.
func (s *Store) Numbers(name string) []string {
	return lo.FilterMap(s.Locos, func(l Loco, _ int) (string, bool) {
		return l.Number, l.Name == name
	})
}

// Save writes the store through a temporary file and a rename.
func (s *Store) Save() error {
	if s.fs == nil || s.path == "" {
		return errors.New("prefs store has no backing file")
	}
	s.normalize()
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	return writeFileAtomic(s.fs, s.path, append(b, '\n'))
}

func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("make prefs dir: %w", err)
	}
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}
