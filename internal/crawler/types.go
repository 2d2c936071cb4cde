package crawler

import "time"

// CrawlTask is one seed URL waiting to be fetched. Seq is the zero-based
// position of the URL in the input list and survives into the output so the
// original order can be reconstructed downstream.
type CrawlTask struct {
	URL string
	Seq int
}

// ErrorKind classifies why a fetch produced no content.
type ErrorKind string

// Fetch failure classes recorded in the error column.
const (
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindDNS        ErrorKind = "dns"
	ErrorKindConnect    ErrorKind = "connect"
	ErrorKindTLS        ErrorKind = "tls"
	ErrorKindRedirect   ErrorKind = "redirect"
	ErrorKindCanceled   ErrorKind = "canceled"
	ErrorKindInvalidURL ErrorKind = "invalid_url"
	ErrorKindOther      ErrorKind = "other"
)

// FetchOutcome is what a Fetcher hands to the Extractor. StatusCode is zero
// when no HTTP response was received.
type FetchOutcome struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	Elapsed     time.Duration
	Truncated   bool
	Redirects   int
	Err         *FetchError
}

// Failed reports whether the fetch ended without a response.
func (o FetchOutcome) Failed() bool {
	return o.Err != nil
}

// BaseURL is the URL relative references on the page resolve against.
func (o FetchOutcome) BaseURL() string {
	if o.FinalURL != "" {
		return o.FinalURL
	}
	return o.URL
}

// Outcome buckets a ResultRecord for run summaries.
type Outcome string

// Outcome values.
const (
	OutcomeOK          Outcome = "ok"
	OutcomeHTTPError   Outcome = "http_error"
	OutcomeFetchFailed Outcome = "fetch_failed"
)

// ResultRecord is the one-row-per-URL summary written to the primary table.
type ResultRecord struct {
	Seq           int    `json:"sequence_index"`
	URL           string `json:"url"`
	StatusCode    int    `json:"http_status,omitempty"`
	Title         string `json:"title"`
	BodySize      int    `json:"body_size"`
	ElapsedMillis int64  `json:"elapsed_ms"`
	Error         string `json:"error,omitempty"`
	Truncated     bool   `json:"truncated"`
}

// Outcome classifies the record as fetched, fetched with an HTTP error
// status, or failed before a response arrived.
func (r ResultRecord) Outcome() Outcome {
	switch {
	case r.Error != "":
		return OutcomeFetchFailed
	case r.StatusCode >= 400:
		return OutcomeHTTPError
	default:
		return OutcomeOK
	}
}

// Heading is an h1-h6 element with its level and trimmed text.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// ExtendedRecord carries the structural data extracted in extended mode.
// All slices keep document order.
type ExtendedRecord struct {
	URL      string    `json:"url"`
	Links    []string  `json:"links"`
	Images   []string  `json:"images"`
	Headings []Heading `json:"headings"`
}
