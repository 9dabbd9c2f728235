package metastore

import (
	"context"
	"sync"

	"github.com/harvestkit/harvestkit/internal/crawler"
)

// MemoryStore keeps page metadata in memory. It backs runs configured
// without a database and the engine tests.
type MemoryStore struct {
	mu    sync.Mutex
	pages map[string]crawler.PageMeta
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pages: make(map[string]crawler.PageMeta)}
}

func (s *MemoryStore) Upsert(ctx context.Context, meta crawler.PageMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[meta.URL] = meta
	return nil
}

func (s *MemoryStore) Headers(ctx context.Context, rawURL string) (etag, lastModified string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.pages[rawURL]
	if !ok {
		return "", "", nil
	}
	return meta.ETag, meta.LastModified, nil
}

// Get returns the stored row for a URL, mainly for assertions in tests.
func (s *MemoryStore) Get(rawURL string) (crawler.PageMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.pages[rawURL]
	return meta, ok
}

// Len reports the number of stored rows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

func (s *MemoryStore) Close() {}
