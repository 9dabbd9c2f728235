// Package dedup implements the near-duplicate store gating corpus
// acceptance: exact shingle fingerprints, simhash proximity, and a
// title-frequency cap.
package dedup

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	shingleSize = 5
	maxShingles = 100
)

// Options tune the duplicate gates.
type Options struct {
	// TitleThreshold rejects a page once its title has been seen this many
	// times (default 5).
	TitleThreshold int
	// HammingDistance is the maximum simhash distance treated as a
	// near-duplicate (default 3).
	HammingDistance int
}

// Store is the append-only duplicate ledger shared by all domain workers.
// One mutex serializes the whole check-then-insert sequence so concurrent
// callers can never both accept the same content.
type Store struct {
	mu     sync.Mutex
	opts   Options
	path   string
	logger *zap.Logger

	fingerprints map[string]struct{}
	hashes       []uint64
	titleCounts  map[string]int
}

type snapshot struct {
	Fingerprints []string       `json:"fingerprints"`
	Hashes       []uint64       `json:"simhashes"`
	TitleCounts  map[string]int `json:"title_counts"`
}

// Open loads the store from path, starting empty when the file is absent
// or unreadable. Pass an empty path for a purely in-memory store.
func Open(path string, opts Options, logger *zap.Logger) *Store {
	if opts.TitleThreshold <= 0 {
		opts.TitleThreshold = 5
	}
	if opts.HammingDistance <= 0 {
		opts.HammingDistance = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		opts:         opts,
		path:         path,
		logger:       logger,
		fingerprints: make(map[string]struct{}),
		titleCounts:  make(map[string]int),
	}
	if path == "" {
		return s
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("dedup store unreadable, starting empty", zap.String("path", path), zap.Error(err))
		}
		return s
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logger.Warn("dedup store corrupt, starting empty", zap.String("path", path), zap.Error(err))
		return s
	}
	for _, fp := range snap.Fingerprints {
		s.fingerprints[fp] = struct{}{}
	}
	s.hashes = snap.Hashes
	if snap.TitleCounts != nil {
		s.titleCounts = snap.TitleCounts
	}
	return s
}

// CheckDuplicate reports whether the page duplicates stored content. The
// check and the record are one critical section: a non-duplicate page is
// inserted (fingerprint, simhash, title count) before the lock releases.
func (s *Store) CheckDuplicate(text, title string) bool {
	fp := Fingerprint(text)
	sh := Simhash(text)
	th := hashTitle(title)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.titleCounts[th] >= s.opts.TitleThreshold {
		return true
	}
	if _, ok := s.fingerprints[fp]; ok {
		return true
	}
	// Linear scan is acceptable at corpus scale.
	for _, existing := range s.hashes {
		if HammingDistance(sh, existing) <= s.opts.HammingDistance {
			return true
		}
	}

	s.fingerprints[fp] = struct{}{}
	s.hashes = append(s.hashes, sh)
	s.titleCounts[th]++
	return false
}

// Size returns the number of stored fingerprints.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fingerprints)
}

// Flush persists the store with the write-temp-then-rename discipline.
// Persistence failures are logged, not fatal: crawling continues without
// dedup durability for this cycle.
func (s *Store) Flush() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	snap := snapshot{
		Fingerprints: make([]string, 0, len(s.fingerprints)),
		Hashes:       append([]uint64(nil), s.hashes...),
		TitleCounts:  make(map[string]int, len(s.titleCounts)),
	}
	for fp := range s.fingerprints {
		snap.Fingerprints = append(snap.Fingerprints, fp)
	}
	for k, v := range s.titleCounts {
		snap.TitleCounts[k] = v
	}
	s.mu.Unlock()
	sort.Strings(snap.Fingerprints)

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal dedup snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create dedup dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write dedup temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace dedup store: %w", err)
	}
	return nil
}

// Fingerprint produces the exact-match key: lowercase the text, collapse
// all whitespace away, shingle into 5-char substrings, sort the distinct
// shingles, and keep the first 100.
func Fingerprint(text string) string {
	normalized := strings.ToLower(text)
	normalized = strings.Join(strings.Fields(normalized), "")
	if len(normalized) < shingleSize {
		return normalized
	}
	set := make(map[string]struct{})
	for i := 0; i+shingleSize <= len(normalized); i++ {
		set[normalized[i:i+shingleSize]] = struct{}{}
	}
	shingles := make([]string, 0, len(set))
	for sh := range set {
		shingles = append(shingles, sh)
	}
	sort.Strings(shingles)
	if len(shingles) > maxShingles {
		shingles = shingles[:maxShingles]
	}
	return strings.Join(shingles, "")
}

func hashTitle(title string) string {
	h := fnv.New64a()
	h.Write([]byte(title))
	return fmt.Sprintf("%x", h.Sum64())
}
