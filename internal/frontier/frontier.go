// Package frontier holds the fixed set of seed tasks handed out to workers.
package frontier

import (
	"fmt"
	"sync"

	"github.com/JakeFAU/seedcrawl/internal/crawler"
)

// Frontier is a bounded, seal-once task set. Every enqueued task is handed to
// exactly one caller of TryDequeue.
type Frontier struct {
	ch     chan crawler.CrawlTask
	sealMu sync.Mutex
	sealed bool
}

// New constructs a frontier able to hold capacity tasks.
func New(capacity int) *Frontier {
	if capacity < 0 {
		capacity = 0
	}
	return &Frontier{
		ch: make(chan crawler.CrawlTask, capacity),
	}
}

// FromURLs builds and seals a frontier holding one task per URL, numbered by
// input position. Duplicates are kept.
func FromURLs(urls []string) (*Frontier, error) {
	f := New(len(urls))
	for i, u := range urls {
		if err := f.Enqueue(crawler.CrawlTask{URL: u, Seq: i}); err != nil {
			return nil, fmt.Errorf("enqueue seed %d: %w", i, err)
		}
	}
	f.Seal()
	return f, nil
}

// Enqueue adds a task. It fails once the frontier is sealed or when capacity
// is exhausted; it never blocks.
func (f *Frontier) Enqueue(task crawler.CrawlTask) error {
	f.sealMu.Lock()
	defer f.sealMu.Unlock()
	if f.sealed {
		return crawler.ErrFrontierSealed
	}
	select {
	case f.ch <- task:
		return nil
	default:
		return crawler.ErrFrontierFull
	}
}

// Seal forbids further Enqueue calls. Sealing twice is a no-op.
func (f *Frontier) Seal() {
	f.sealMu.Lock()
	defer f.sealMu.Unlock()
	if f.sealed {
		return
	}
	close(f.ch)
	f.sealed = true
}

// TryDequeue removes the next task without blocking. It returns false when
// nothing is pending.
func (f *Frontier) TryDequeue() (crawler.CrawlTask, bool) {
	select {
	case task, ok := <-f.ch:
		return task, ok
	default:
		return crawler.CrawlTask{}, false
	}
}

// Len reports the number of tasks still pending.
func (f *Frontier) Len() int {
	return len(f.ch)
}

var _ crawler.Frontier = (*Frontier)(nil)
