package csvsink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seedcrawl/internal/crawler"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSinkWritesPrimaryRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "results.csv")
	s, err := New(path, false)
	require.NoError(t, err)

	require.NoError(t, s.Record(context.Background(), crawler.ResultRecord{
		Seq: 0, URL: "http://a.test/", StatusCode: 200, Title: `Hello, "world"`,
		BodySize: 120, ElapsedMillis: 15,
	}, nil))
	require.NoError(t, s.Record(context.Background(), crawler.ResultRecord{
		Seq: 1, URL: "http://slow.test/", ElapsedMillis: 30000, Error: "timeout",
	}, &crawler.ExtendedRecord{URL: "http://slow.test/", Links: []string{"ignored"}}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, primaryHeader, rows[0])
	assert.Equal(t, []string{"0", "http://a.test/", "200", `Hello, "world"`, "120", "15", "", "false"}, rows[1])
	assert.Equal(t, []string{"1", "http://slow.test/", "", "", "0", "30000", "timeout", "false"}, rows[2])
	assert.Equal(t, []string{path}, s.Paths())

	_, err = os.Stat(filepath.Join(filepath.Dir(path), "results_links.csv"))
	assert.True(t, os.IsNotExist(err), "extended files must not exist when extended mode is off")
}

func TestSinkExtendedFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "results.csv")
	s, err := New(path, true)
	require.NoError(t, err)

	ext := &crawler.ExtendedRecord{
		URL:      "http://a.test/",
		Links:    []string{"http://a.test/1", "http://a.test/2", "http://a.test/3"},
		Images:   []string{"http://a.test/i.png", "http://a.test/j.png"},
		Headings: []crawler.Heading{{Level: 2, Text: "Intro"}},
	}
	require.NoError(t, s.Record(context.Background(), crawler.ResultRecord{URL: "http://a.test/", StatusCode: 200}, ext))
	require.NoError(t, s.Close())

	assert.Equal(t, []string{
		path,
		filepath.Join(dir, "results_links.csv"),
		filepath.Join(dir, "results_images.csv"),
		filepath.Join(dir, "results_headings.csv"),
	}, s.Paths())

	links := readCSV(t, filepath.Join(dir, "results_links.csv"))
	assert.Equal(t, [][]string{
		linksHeader,
		{"http://a.test/", "0", "http://a.test/1"},
		{"http://a.test/", "1", "http://a.test/2"},
		{"http://a.test/", "2", "http://a.test/3"},
	}, links)
	images := readCSV(t, filepath.Join(dir, "results_images.csv"))
	assert.Len(t, images, 3)
	headings := readCSV(t, filepath.Join(dir, "results_headings.csv"))
	assert.Equal(t, [][]string{headingsHeader, {"http://a.test/", "0", "2", "Intro"}}, headings)
}

func TestSinkConcurrentRecordsStayWhole(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "results.csv")
	s, err := New(path, true)
	require.NoError(t, err)

	const writers, perWriter = 16, 25
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				seq := w*perWriter + i
				url := fmt.Sprintf("http://host%d.test/page\n%d", w, i)
				ext := &crawler.ExtendedRecord{URL: url, Links: []string{url + "/a", url + "/b"}}
				assert.NoError(t, s.Record(context.Background(), crawler.ResultRecord{
					Seq: seq, URL: url, StatusCode: 200, Title: "t,itle",
				}, ext))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, s.Close())

	rows := readCSV(t, path)
	require.Len(t, rows, writers*perWriter+1)
	seen := make(map[string]bool, writers*perWriter)
	for _, row := range rows[1:] {
		require.Len(t, row, len(primaryHeader))
		assert.False(t, seen[row[0]], "duplicate seq %s", row[0])
		seen[row[0]] = true
	}
	links := readCSV(t, filepath.Join(dir, "results_links.csv"))
	assert.Len(t, links, writers*perWriter*2+1)
}

func TestSinkTruncatesExistingOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale\nrows\n"), 0o600))
	s, err := New(path, false)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, [][]string{primaryHeader}, readCSV(t, path))
}

func TestNewRejectsUnwritablePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := New(dir, false)
	var cfgErr *crawler.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "output.path", cfgErr.Key)

	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	_, err = New(filepath.Join(blocker, "results.csv"), true)
	require.ErrorAs(t, err, &cfgErr)

	_, err = New("", false)
	require.ErrorAs(t, err, &cfgErr)
}

func TestRecordAfterCloseFails(t *testing.T) {
	t.Parallel()

	s, err := New(filepath.Join(t.TempDir(), "results.csv"), false)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Record(context.Background(), crawler.ResultRecord{Seq: 3}, nil)
	var werr *crawler.WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, 3, werr.Seq)
	assert.ErrorIs(t, err, crawler.ErrSinkClosed)
}

func TestWriteFailureIsSticky(t *testing.T) {
	t.Parallel()

	s, err := New(filepath.Join(t.TempDir(), "results.csv"), false)
	require.NoError(t, err)
	require.NoError(t, s.primary.file.Close())

	err = s.Record(context.Background(), crawler.ResultRecord{Seq: 0, URL: "http://a.test/"}, nil)
	var werr *crawler.WriteError
	require.ErrorAs(t, err, &werr)

	err = s.Record(context.Background(), crawler.ResultRecord{Seq: 1}, nil)
	require.ErrorAs(t, err, &werr)
	assert.Contains(t, err.Error(), "sink failed earlier")
	assert.Error(t, s.Close())
}
