// Package seeds reads the line-delimited seed URL list.
package seeds

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNoSeeds is returned when the input holds no URLs.
var ErrNoSeeds = errors.New("no seed URLs found")

const maxLineBytes = 1 << 20

// Load reads seeds from the file at path.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	urls, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}
	return urls, nil
}

// Read returns one URL per non-blank line in input order. Surrounding
// whitespace is trimmed and lines starting with '#' are skipped. Duplicates
// are kept.
func Read(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var urls []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan seeds: %w", err)
	}
	if len(urls) == 0 {
		return nil, ErrNoSeeds
	}
	return urls, nil
}
