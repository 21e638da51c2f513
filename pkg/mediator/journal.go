package mediator

import (
	"sync"

	"github.com/haasonsaas/dpc/pkg/admin"
)

const DefaultJournalSize = 256

// Journal keeps the most recent command outcomes in memory.
type Journal struct {
	mu    sync.Mutex
	buf   []admin.Outcome
	next  int
	full  bool
	total int
}

func NewJournal(size int) *Journal {
	if size <= 0 {
		size = DefaultJournalSize
	}
	return &Journal{buf: make([]admin.Outcome, size)}
}

func (j *Journal) Record(o admin.Outcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.buf[j.next] = o
	j.next = (j.next + 1) % len(j.buf)
	if j.next == 0 {
		j.full = true
	}
	j.total++
}

// Recent returns retained outcomes, oldest first.
func (j *Journal) Recent() []admin.Outcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.full {
		out := make([]admin.Outcome, j.next)
		copy(out, j.buf[:j.next])
		return out
	}
	out := make([]admin.Outcome, 0, len(j.buf))
	out = append(out, j.buf[j.next:]...)
	out = append(out, j.buf[:j.next]...)
	return out
}

// Total counts every outcome ever recorded, including evicted ones.
func (j *Journal) Total() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.total
}
