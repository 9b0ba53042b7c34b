package game

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Archive is the on-disk record of a completed match: enough to step
// through every resolved round after the live match is gone.
type Archive struct {
	MatchID        string
	WinnerID       string
	WinnerPayout   int64
	FinalStateHash string
	SavedAt        time.Time
	Rounds         []Result
}

const archiveVersion = 1

type archiveHeader struct {
	Version    int
	MatchID    string
	SavedAt    time.Time
	RoundCount int
}

// ArchiveStore persists match archives as gzipped gob files, one file
// per match.
type ArchiveStore struct {
	dir    string
	logger *zap.Logger
}

// NewArchiveStore creates a store rooted at dir. The directory is
// created on first save.
func NewArchiveStore(dir string, logger *zap.Logger) *ArchiveStore {
	return &ArchiveStore{dir: dir, logger: logger}
}

func (s *ArchiveStore) path(matchID string) string {
	return filepath.Join(s.dir, matchID+".replay")
}

// Save writes one match archive to disk.
func (s *ArchiveStore) Save(a Archive) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	file, err := os.Create(s.path(a.MatchID))
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	defer gz.Close()

	enc := gob.NewEncoder(gz)
	header := archiveHeader{
		Version:    archiveVersion,
		MatchID:    a.MatchID,
		SavedAt:    a.SavedAt,
		RoundCount: len(a.Rounds),
	}
	if err := enc.Encode(&header); err != nil {
		return fmt.Errorf("encode archive header: %w", err)
	}
	if err := enc.Encode(&a); err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("match archived",
			zap.String("match_id", a.MatchID),
			zap.Int("rounds", len(a.Rounds)),
			zap.String("directory", s.dir),
		)
	}
	return nil
}

// Load reads one match archive back from disk.
func (s *ArchiveStore) Load(matchID string) (Archive, error) {
	file, err := os.Open(s.path(matchID))
	if err != nil {
		return Archive{}, fmt.Errorf("open archive file: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return Archive{}, fmt.Errorf("read archive file: %w", err)
	}
	defer gz.Close()

	dec := gob.NewDecoder(gz)
	var header archiveHeader
	if err := dec.Decode(&header); err != nil {
		return Archive{}, fmt.Errorf("decode archive header: %w", err)
	}
	if header.Version != archiveVersion {
		return Archive{}, fmt.Errorf("unsupported archive version: %d", header.Version)
	}

	var a Archive
	if err := dec.Decode(&a); err != nil {
		return Archive{}, fmt.Errorf("decode archive: %w", err)
	}
	return a, nil
}

// Replay loads an archive and returns a cursor positioned before its
// first round.
func (s *ArchiveStore) Replay(matchID string) (*Replay, error) {
	a, err := s.Load(matchID)
	if err != nil {
		return nil, err
	}
	return NewReplay(a.MatchID, a.Rounds), nil
}

// Replay is a cursor over a match's resolved rounds, for spectator
// playback.
type Replay struct {
	MatchID string

	mu     sync.Mutex
	rounds []Result
	index  int
}

// NewReplay creates a cursor positioned before the first round.
func NewReplay(matchID string, rounds []Result) *Replay {
	return &Replay{MatchID: matchID, rounds: rounds}
}

// Next advances to the following round. The second return is false
// once playback runs past the final round.
func (r *Replay) Next() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index >= len(r.rounds) {
		return Result{}, false
	}
	res := r.rounds[r.index]
	r.index++
	return res, true
}

// Previous steps back to the prior round.
func (r *Replay) Previous() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index <= 1 {
		r.index = 0
		return Result{}, false
	}
	r.index--
	return r.rounds[r.index-1], true
}

// Rewind resets the cursor before the first round.
func (r *Replay) Rewind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = 0
}

// Size returns the number of recorded rounds.
func (r *Replay) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rounds)
}

// HealthTimeline reconstructs each player's health after every round
// from the recorded deltas, applying the same clamping the live match
// does. start maps player ids to their health before round 1.
func (r *Replay) HealthTimeline(start map[string]int, maxHealth int) []map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := make(map[string]int, len(start))
	for id, h := range start {
		current[id] = h
	}

	timeline := make([]map[string]int, 0, len(r.rounds))
	for _, round := range r.rounds {
		next := make(map[string]int, len(current))
		for id, h := range current {
			h += round.HealthChanges[id]
			if h < 0 {
				h = 0
			}
			if h > maxHealth {
				h = maxHealth
			}
			next[id] = h
		}
		timeline = append(timeline, next)
		current = next
	}
	return timeline
}
