package layout

import (
	"sync"

	"opscal/internal/model"
)

// PreviewReader exposes live drag candidates to the layout pass.
type PreviewReader interface {
	Preview(eventID string) (model.Span, bool)
}

// PreviewMap holds the in-flight {start, end} candidate per event id. The
// drag controller writes it; every layout pass reads it fresh.
type PreviewMap struct {
	mu      sync.RWMutex
	entries map[string]model.Span
}

func NewPreviewMap() *PreviewMap {
	return &PreviewMap{entries: make(map[string]model.Span)}
}

func (p *PreviewMap) Preview(eventID string) (model.Span, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.entries[eventID]
	return s, ok
}

// Set overwrites any previous candidate for eventID (last write wins).
func (p *PreviewMap) Set(eventID string, s model.Span) {
	p.mu.Lock()
	p.entries[eventID] = s
	p.mu.Unlock()
}

func (p *PreviewMap) Delete(eventID string) {
	p.mu.Lock()
	delete(p.entries, eventID)
	p.mu.Unlock()
}

func (p *PreviewMap) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
