package frontier

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seedcrawl/internal/crawler"
)

func TestFromURLsPreservesOrderAndDuplicates(t *testing.T) {
	t.Parallel()

	f, err := FromURLs([]string{"http://a.test/", "http://b.test/", "http://a.test/"})
	require.NoError(t, err)
	require.Equal(t, 3, f.Len())

	for i, want := range []string{"http://a.test/", "http://b.test/", "http://a.test/"} {
		task, ok := f.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, crawler.CrawlTask{URL: want, Seq: i}, task)
	}
	_, ok := f.TryDequeue()
	assert.False(t, ok)
}

func TestEnqueueAfterSeal(t *testing.T) {
	t.Parallel()

	f := New(2)
	require.NoError(t, f.Enqueue(crawler.CrawlTask{URL: "http://a.test/"}))
	f.Seal()
	f.Seal()

	err := f.Enqueue(crawler.CrawlTask{URL: "http://b.test/"})
	require.ErrorIs(t, err, crawler.ErrFrontierSealed)

	task, ok := f.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "http://a.test/", task.URL)
}

func TestEnqueueFull(t *testing.T) {
	t.Parallel()

	f := New(1)
	require.NoError(t, f.Enqueue(crawler.CrawlTask{Seq: 0}))
	require.ErrorIs(t, f.Enqueue(crawler.CrawlTask{Seq: 1}), crawler.ErrFrontierFull)
}

func TestTryDequeueEmptyDoesNotBlock(t *testing.T) {
	t.Parallel()

	unsealed := New(4)
	_, ok := unsealed.TryDequeue()
	assert.False(t, ok)

	empty, err := FromURLs(nil)
	require.NoError(t, err)
	_, ok = empty.TryDequeue()
	assert.False(t, ok)
}

func TestConcurrentDequeueHandsOutEachTaskOnce(t *testing.T) {
	t.Parallel()

	const n = 500
	urls := make([]string, n)
	for i := range urls {
		urls[i] = "http://a.test/"
	}
	f, err := FromURLs(urls)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = make(map[int]int, n)
		wg   sync.WaitGroup
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, ok := f.TryDequeue()
				if !ok {
					return
				}
				mu.Lock()
				seen[task.Seq]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	for seq, count := range seen {
		assert.Equal(t, 1, count, "seq %d", seq)
	}
	assert.Equal(t, 0, f.Len())
}
