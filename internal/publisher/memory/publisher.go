// Package memory provides an in-process publisher double for tests and
// runs configured without Pub/Sub.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/harvestkit/harvestkit/internal/crawler"
)

// Publisher records published page records in memory.
type Publisher struct {
	mu      sync.Mutex
	records []crawler.PageRecord
	failErr error
}

func New() *Publisher {
	return &Publisher{}
}

// FailWith makes every subsequent Publish return err.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failErr = err
}

func (p *Publisher) Publish(ctx context.Context, record crawler.PageRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return "", p.failErr
	}
	p.records = append(p.records, record)
	return fmt.Sprintf("msg-%d", len(p.records)), nil
}

// Records returns a copy of everything published so far.
func (p *Publisher) Records() []crawler.PageRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]crawler.PageRecord(nil), p.records...)
}
