package rag

import (
	"context"
	"path"
	"sync"
	"time"
)

// fakeStore is an in-memory Store that honours SetEx expirations
// against an injectable clock, so tests can roll time forward and watch
// entries lapse. Error fields, when set, fail the corresponding
// operation.
type fakeStore struct {
	mu      sync.Mutex
	data    map[string]storeEntry
	now     func() time.Time
	getErr  error
	setErr  error
	keysErr error
	delErr  error
}

type storeEntry struct {
	value   []byte
	expires time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data: make(map[string]storeEntry),
		now:  time.Now,
	}
}

func (s *fakeStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	e, ok := s.data[key]
	if !ok || s.expired(e) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *fakeStore) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	e := storeEntry{value: value}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

func (s *fakeStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keysErr != nil {
		return nil, s.keysErr
	}
	var keys []string
	for key, e := range s.data {
		if s.expired(e) {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *fakeStore) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delErr != nil {
		return 0, s.delErr
	}
	var deleted int64
	for _, key := range keys {
		if _, ok := s.data[key]; ok {
			delete(s.data, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *fakeStore) expired(e storeEntry) bool {
	return !e.expires.IsZero() && !s.now().Before(e.expires)
}

// fakeGenerator scripts the Generator interface. Without hooks it answers
// every generation with a fixed string and every embedding with a fixed
// vector.
type fakeGenerator struct {
	mu            sync.Mutex
	generateFn    func(ctx context.Context, messages []Message) (string, error)
	embedFn       func(ctx context.Context, texts []string) ([][]float32, error)
	generateCalls [][]Message
	embedCalls    [][]string
}

func (g *fakeGenerator) Generate(ctx context.Context, messages []Message) (string, error) {
	g.mu.Lock()
	g.generateCalls = append(g.generateCalls, messages)
	fn := g.generateFn
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, messages)
	}
	return "generated answer", nil
}

func (g *fakeGenerator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	g.mu.Lock()
	g.embedCalls = append(g.embedCalls, texts)
	fn := g.embedFn
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, texts)
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

func (g *fakeGenerator) generateCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.generateCalls)
}

// fakeIndex scripts the VectorIndex interface.
type fakeIndex struct {
	searchSegments []Segment
	searchErr      error
	scanSegments   []Segment
	scanErr        error

	searchCalls    int
	scanCalls      int
	lastK          int
	lastFilter     map[string]string
	lastScanFilter map[string][]string
	lastScanLimit  int
}

func (f *fakeIndex) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Segment, error) {
	f.searchCalls++
	f.lastK = k
	f.lastFilter = filter
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchSegments, nil
}

func (f *fakeIndex) Scan(ctx context.Context, filter map[string][]string, limit int) ([]Segment, error) {
	f.scanCalls++
	f.lastScanFilter = filter
	f.lastScanLimit = limit
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.scanSegments, nil
}

func (f *fakeIndex) Delete(ctx context.Context, filter map[string]string) error {
	return nil
}

func (f *fakeIndex) Stats(ctx context.Context) (IndexStats, error) {
	return IndexStats{Collection: "test", Segments: int64(len(f.searchSegments))}, nil
}

func segment(content string, score float32) Segment {
	return Segment{Content: content, Metadata: map[string]string{"source": "handbook.md"}, Score: score}
}
