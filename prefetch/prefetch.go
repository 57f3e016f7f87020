// Package prefetch warms the next-sequence query ahead of the save
// action so the allocation at save time usually costs no round trip.
// A warmed answer is a hint, not an authority: it is handed out at most
// once and is discarded whenever the selection or the bucket changes.
package prefetch

import (
	"context"
	"log"
	"sync"

	"rodlot/model"
)

// Source is the remote query the prefetcher runs opportunistically.
type Source interface {
	NextSequence(ctx context.Context, grade, yymmdd string) (*model.SeqData, error)
	LastBatch(ctx context.Context, grade string) string
}

type Prefetcher struct {
	src Source

	mu    sync.Mutex
	grade string
	date  string // YYMMDD
	data  *model.SeqData
}

func New(src Source) *Prefetcher {
	return &Prefetcher{src: src}
}

// Warm queries the server for (grade, date) and parks the answer.
// Replaces whatever was parked before, so a selection change
// automatically invalidates the stale slot. Query failure just leaves
// the slot empty; the save path will query again itself.
func (p *Prefetcher) Warm(ctx context.Context, grade, yymmdd string) {
	p.mu.Lock()
	p.grade, p.date, p.data = grade, yymmdd, nil
	p.mu.Unlock()

	data, err := p.src.NextSequence(ctx, grade, yymmdd)
	if err != nil {
		log.Printf("INFO: [Prefetch] warm failed for %s/%s (save will fetch): %v", grade, yymmdd, err)
		return
	}

	p.mu.Lock()
	// Only park if the selection didn't move while we were fetching.
	if p.grade == grade && p.date == yymmdd {
		p.data = data
	}
	p.mu.Unlock()
	log.Printf("INFO: [Prefetch] warmed %s/%s: maxSeq=%d", grade, yymmdd, data.MaxSeq)
}

// Take hands out the parked answer for (grade, date) and clears the
// slot. Two rapid saves can therefore never both ride the same hint;
// the second one queries the server fresh.
func (p *Prefetcher) Take(grade, yymmdd string) *model.SeqData {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil || p.grade != grade || p.date != yymmdd {
		return nil
	}
	data := p.data
	p.data = nil
	return data
}

// Invalidate clears the slot. Called after any local or remote mutation
// (save, delete) that could move the bucket's max.
func (p *Prefetcher) Invalidate() {
	p.mu.Lock()
	p.data = nil
	p.mu.Unlock()
}

// LastBatch fetches the most recent batch display string for operator
// feedback. Purely informational; failures return "".
func (p *Prefetcher) LastBatch(ctx context.Context, grade string) string {
	return p.src.LastBatch(ctx, grade)
}
