// Package crawler holds the contracts shared by every stage of a seed crawl:
// the task and record types that flow from the frontier through the fetcher
// and extractor into a result sink, the interfaces each stage implements, and
// the error taxonomy used to tell per-URL failures apart from fatal ones.
package crawler
