// Package tsv reads tab-separated download logs as a lazy sequence of
// header-keyed records.
package tsv

import (
	"bufio"
	"io"
	"strings"
)

// maxLineBytes bounds a single record; oversized agent strings have been seen
// in the wild but never near this.
const maxLineBytes = 1024 * 1024

// Record maps column names to non-empty cell values. Columns missing from a
// row, and empty cells, are absent keys.
type Record map[string]string

// Reader yields records from a TSV byte stream without buffering the whole
// file. The first row is the header.
type Reader struct {
	scanner *bufio.Scanner
	header  []string
}

func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{scanner: s}
}

// Next returns the next record, or io.EOF after the last one. Empty lines are
// skipped silently.
func (r *Reader) Next() (Record, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()

		if r.header == nil {
			r.header = strings.Split(line, "\t")
			continue
		}

		if line == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		rec := make(Record, len(r.header))
		for i, f := range fields {
			if i >= len(r.header) {
				break
			}
			if f == "" {
				continue
			}
			rec[r.header[i]] = f
		}
		return rec, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
