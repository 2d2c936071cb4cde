// Package progress carries crawl progress from workers to observers. Workers
// emit events without blocking; a Hub batches them on a background goroutine
// and fans them out to sinks such as the console bar or the log.
package progress
