package tally

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"gopkg.in/yaml.v3"
)

// Guard remembers which polls have been counted so that a second run over
// the same poll is refused with ballot.ErrAlreadyCounted.
type Guard interface {
	Check(poll string) error
	Mark(poll string, m Marker) error
}

// Marker is what a guard stores for a counted poll.
type Marker struct {
	Poll      string    `yaml:"poll"`
	RunID     string    `yaml:"run_id"`
	CountedAt time.Time `yaml:"counted_at"`
	Summary   Summary   `yaml:"summary"`
}

// MemoryGuard keeps markers for the lifetime of the process.
type MemoryGuard struct {
	mu      sync.Mutex
	markers map[string]Marker
}

// NewMemoryGuard returns an empty in-process guard.
func NewMemoryGuard() *MemoryGuard { return &MemoryGuard{markers: map[string]Marker{}} }

func (g *MemoryGuard) Check(poll string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.markers[poll]; ok {
		return fmt.Errorf("poll %q (run %s): %w", poll, m.RunID, ballot.ErrAlreadyCounted)
	}
	return nil
}

func (g *MemoryGuard) Mark(poll string, m Marker) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	m.Poll = poll
	g.markers[poll] = m
	return nil
}

// FileGuard stores one YAML marker per poll in a state directory.
type FileGuard struct {
	Dir string
}

var unsafePollChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// path keeps a readable form of the poll name and appends a digest of the
// exact name, so polls that sanitize alike still get separate markers.
func (g FileGuard) path(poll string) string {
	sum := sha256.Sum256([]byte(poll))
	name := fmt.Sprintf("%s-%s.counted.yaml", unsafePollChars.ReplaceAllString(poll, "_"), hex.EncodeToString(sum[:6]))
	return filepath.Join(g.Dir, name)
}

func (g FileGuard) Check(poll string) error {
	data, err := os.ReadFile(g.path(poll))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read count marker: %w", err)
	}
	var m Marker
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse count marker %s: %w", g.path(poll), err)
	}
	return fmt.Errorf("poll %q counted at %s (run %s): %w",
		poll, m.CountedAt.Format(time.RFC3339), m.RunID, ballot.ErrAlreadyCounted)
}

func (g FileGuard) Mark(poll string, m Marker) error {
	if err := os.MkdirAll(g.Dir, 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	m.Poll = poll
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(g.path(poll), data, 0o600)
}
