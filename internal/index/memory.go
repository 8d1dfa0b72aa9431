package index

import (
	"context"
	"sync"

	"github.com/franz/bibcluster/internal/model"
)

// MemoryProjector keeps documents in memory. It backs `--index memory` and
// tests.
type MemoryProjector struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryProjector returns an empty in-memory index.
func NewMemoryProjector() *MemoryProjector {
	return &MemoryProjector{docs: make(map[string]Document)}
}

func (p *MemoryProjector) Upsert(ctx context.Context, works []*model.Work) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range works {
		p.docs[w.UUID] = BuildDocument(w)
	}
	return nil
}

func (p *MemoryProjector) Delete(ctx context.Context, uuids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range uuids {
		delete(p.docs, id)
	}
	return nil
}

// Get returns the document stored for a work uuid.
func (p *MemoryProjector) Get(uuid string) (Document, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	doc, ok := p.docs[uuid]
	return doc, ok
}

// Len returns the number of indexed documents.
func (p *MemoryProjector) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.docs)
}
