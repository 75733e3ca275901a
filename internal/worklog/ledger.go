package worklog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Tiliavir/worklog-sync/internal/model"
)

// Ledger is the append-only history of push batches.
type Ledger struct {
	mu      sync.RWMutex
	batches []model.Batch
	index   map[string]int
	covered map[string]string // entry id -> batch id
}

// NewLedger builds a ledger from persisted batches. Each batch is verified
// and no entry may appear in two batches.
func NewLedger(batches []model.Batch) (*Ledger, error) {
	l := &Ledger{
		index:   make(map[string]int, len(batches)),
		covered: make(map[string]string),
	}
	for _, b := range batches {
		if err := l.append(b); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Get returns a copy of the batch with the given id.
func (l *Ledger) Get(id string) (model.Batch, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[id]
	if !ok {
		return model.Batch{}, fmt.Errorf("batch %s: %w", id, model.ErrNotFound)
	}
	return copyBatch(l.batches[i]), nil
}

// All returns the batches in append order.
func (l *Ledger) All() []model.Batch {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Batch, len(l.batches))
	for i, b := range l.batches {
		out[i] = copyBatch(b)
	}
	return out
}

// Newest returns the batches newest first.
func (l *Ledger) Newest() []model.Batch {
	out := l.All()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// BatchOf returns the id of the batch covering the entry, if any.
func (l *Ledger) BatchOf(entryID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.covered[entryID]
	return id, ok
}

// Len returns the number of batches.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.batches)
}

func (l *Ledger) append(b model.Batch) error {
	if err := b.Verify(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.index[b.ID]; dup {
		return &model.ConsistencyError{Subject: b.ID, Message: "duplicate batch id"}
	}
	for _, m := range b.Members {
		if other, ok := l.covered[m.EntryID]; ok {
			return &model.ConsistencyError{Subject: b.ID, Message: fmt.Sprintf("entry %s already in batch %s", m.EntryID, other)}
		}
	}
	l.index[b.ID] = len(l.batches)
	l.batches = append(l.batches, copyBatch(b))
	for _, m := range b.Members {
		l.covered[m.EntryID] = b.ID
	}
	return nil
}

func (l *Ledger) setStatus(id string, status model.BatchStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return fmt.Errorf("batch %s: %w", id, model.ErrNotFound)
	}
	l.batches[i].Status = status
	return nil
}

func copyBatch(b model.Batch) model.Batch {
	ms := make([]model.BatchMember, len(b.Members))
	copy(ms, b.Members)
	b.Members = ms
	return b
}
