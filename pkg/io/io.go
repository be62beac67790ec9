package io

import (
	"bytes"
	"io"
)

// ReadAllWithEstimate is a fork of io.ReadAll that allocates the buffer upfront
// when the size of the object is known.
func ReadAllWithEstimate(r io.Reader, estimatedBytes int64) ([]byte, error) {
	if estimatedBytes > 0 {
		// one extra byte so the final read hits EOF without growing the buffer
		buf := bytes.NewBuffer(make([]byte, 0, estimatedBytes+1))
		_, err := buf.ReadFrom(r)
		if err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	return io.ReadAll(r)
}
