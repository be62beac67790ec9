package backend

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
)

// MockRawReader implements RawReader over an in-memory object map.
type MockRawReader struct {
	mtx     sync.Mutex
	Objects map[string][]byte     // keyed by ObjectFileName(keypath, name)
	Infos   map[string]ObjectInfo // optional per-object metadata
	ListErr error
	ReadErr error
}

var _ RawReader = (*MockRawReader)(nil)

func (m *MockRawReader) List(_ context.Context, keypath KeyPath) ([]string, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	prefix := ObjectFileName(keypath, "") + "/"
	var names []string
	for key := range m.Objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		if strings.Contains(name, "/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MockRawReader) Read(_ context.Context, name string, keypath KeyPath) (io.ReadCloser, ObjectInfo, error) {
	if m.ReadErr != nil {
		return nil, ObjectInfo{}, m.ReadErr
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	key := ObjectFileName(keypath, name)
	b, ok := m.Objects[key]
	if !ok {
		return nil, ObjectInfo{}, ErrDoesNotExist
	}

	info, ok := m.Infos[key]
	if !ok {
		info = ObjectInfo{ETag: "mock-" + name, Size: int64(len(b))}
	}
	return io.NopCloser(bytes.NewReader(b)), info, nil
}

// MockRawWriter implements RawWriter, capturing writes in memory. Errs holds a
// per-object-name queue of results consumed one per Write call before any
// bytes are stored, which lets tests inject transient faults.
type MockRawWriter struct {
	mtx     sync.Mutex
	Objects map[string][]byte
	Errs    map[string][]error
	writes  int
}

var _ RawWriter = (*MockRawWriter)(nil)

func (m *MockRawWriter) Write(_ context.Context, name string, keypath KeyPath, data io.Reader, size int64) (ObjectInfo, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.writes++
	if queue := m.Errs[name]; len(queue) > 0 {
		next := queue[0]
		m.Errs[name] = queue[1:]
		if next != nil {
			return ObjectInfo{}, next
		}
	}

	b, err := io.ReadAll(data)
	if err != nil {
		return ObjectInfo{}, err
	}
	if size >= 0 && int64(len(b)) != size {
		return ObjectInfo{}, ErrSizeMismatch
	}

	if m.Objects == nil {
		m.Objects = map[string][]byte{}
	}
	m.Objects[ObjectFileName(keypath, name)] = b

	return ObjectInfo{ETag: "mock-" + name, Size: int64(len(b))}, nil
}

// Writes returns the number of Write calls observed, fault injections included.
func (m *MockRawWriter) Writes() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.writes
}
