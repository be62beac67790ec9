package summary

import (
	"bytes"
	"io"
)

const (
	// AudienceIDLength is the length of the hex audience identifier.
	AudienceIDLength = 64
	// CompactTimestampLength is the digits-only timestamp length (YYYYMMDDhhmmssm).
	CompactTimestampLength = 15
	// AudienceLineLength is the byte length of one audience line including the
	// tab and trailing newline. Audience blobs are exactly
	// AudienceLineLength * lineCount bytes.
	AudienceLineLength = AudienceIDLength + 1 + CompactTimestampLength + 1
)

// Audience is an insertion-ordered set of audience ids with the compact
// timestamp of their first observation.
type Audience struct {
	order  []string
	stamps map[string]string
}

func NewAudience() *Audience {
	return &Audience{stamps: map[string]string{}}
}

// Add records an id with its timestamp. Returns false when the id was already
// present; the original timestamp is kept.
func (a *Audience) Add(id, timestamp string) bool {
	if _, ok := a.stamps[id]; ok {
		return false
	}
	a.stamps[id] = timestamp
	a.order = append(a.order, id)
	return true
}

// Has reports whether the id was already recorded.
func (a *Audience) Has(id string) bool {
	_, ok := a.stamps[id]
	return ok
}

// Len is the number of distinct ids recorded.
func (a *Audience) Len() int {
	return len(a.order)
}

// ContentLength is the exact byte length of the rendered blob.
func (a *Audience) ContentLength() int64 {
	return int64(a.Len()) * AudienceLineLength
}

// WriteTo renders id\ttimestamp lines in insertion order.
func (a *Audience) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for _, id := range a.order {
		n, err := io.WriteString(w, id+"\t"+a.stamps[id]+"\n")
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Reader renders the blob and returns a reader over it.
func (a *Audience) Reader() io.Reader {
	var buf bytes.Buffer
	buf.Grow(int(a.ContentLength()))
	_, _ = a.WriteTo(&buf)
	return bytes.NewReader(buf.Bytes())
}

// CompactTimestamp reduces an ISO-8601 timestamp to its digits, truncated to
// CompactTimestampLength (YYYYMMDDhhmmssm).
func CompactTimestamp(t string) string {
	b := make([]byte, 0, CompactTimestampLength)
	for i := 0; i < len(t) && len(b) < CompactTimestampLength; i++ {
		if t[i] >= '0' && t[i] <= '9' {
			b = append(b, t[i])
		}
	}
	return string(b)
}
