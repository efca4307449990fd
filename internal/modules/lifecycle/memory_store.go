// README: In-process record store used by tests and by local runs without Firebase.
package lifecycle

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps collections in maps behind one mutex, so every method,
// Relocate included, is atomic.
type MemoryStore struct {
	mu    sync.Mutex
	cols  map[string]map[string]map[string]any
	clock func() time.Time
	last  time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cols:  make(map[string]map[string]map[string]any),
		clock: time.Now,
	}
}

// WithClock replaces the store clock used for ServerTimestamp.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.cols[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Record{ID: id, Fields: cloneFields(doc)}, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(collection, id, s.resolve(fields))
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any, expectVersion int64) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.cols[collection][id]
	if !ok {
		return ErrNotFound
	}
	current := &Record{ID: id, Fields: doc}
	if current.Version() != expectVersion {
		return ErrConflict
	}
	for k, v := range s.resolve(fields) {
		doc[k] = v
	}
	doc[FieldVersion] = expectVersion + 1
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cols[collection], id)
	return nil
}

func (s *MemoryStore) Relocate(ctx context.Context, op RelocateOp) (RelocateResult, error) {
	if err := ctx.Err(); err != nil {
		return RelocateResult{}, unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.cols[op.From][op.ID]
	if !ok {
		return RelocateResult{}, ErrNotFound
	}
	fields, err := op.Build(&Record{ID: op.ID, Fields: cloneFields(src)})
	if err != nil {
		return RelocateResult{}, err
	}
	if dst, exists := s.cols[op.To][op.ID]; exists {
		delete(s.cols[op.From], op.ID)
		return RelocateResult{Record: &Record{ID: op.ID, Fields: cloneFields(dst)}, Resumed: true}, nil
	}
	resolved := s.resolve(fields)
	s.put(op.To, op.ID, resolved)
	delete(s.cols[op.From], op.ID)
	return RelocateResult{Record: &Record{ID: op.ID, Fields: cloneFields(resolved)}}, nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Record
	for id, doc := range s.cols[collection] {
		if !matches(doc, q.Filters) {
			continue
		}
		matched = append(matched, &Record{ID: id, Fields: cloneFields(doc)})
	}
	sort.Slice(matched, func(i, j int) bool {
		ti, tj := asTime(matched[i].Fields[q.OrderBy]), asTime(matched[j].Fields[q.OrderBy])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return matched[i].ID > matched[j].ID
	})

	start := 0
	if q.After != "" {
		start = -1
		for i, r := range matched {
			if r.ID == q.After {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return Page{}, ErrNotFound
		}
	}
	matched = matched[start:]

	var page Page
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
		page.NextCursor = matched[len(matched)-1].ID
	}
	page.Records = matched
	return page, nil
}

func (s *MemoryStore) IDs(ctx context.Context, collection string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.cols[collection]))
	for id := range s.cols[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) put(collection, id string, fields map[string]any) {
	col, ok := s.cols[collection]
	if !ok {
		col = make(map[string]map[string]any)
		s.cols[collection] = col
	}
	col[id] = fields
}

// resolve copies fields and swaps ServerTimestamp for a non-decreasing clock reading.
func (s *MemoryStore) resolve(fields map[string]any) map[string]any {
	out := cloneFields(fields)
	for k, v := range out {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = s.now()
		}
	}
	return out
}

func (s *MemoryStore) now() time.Time {
	t := s.clock().UTC()
	if t.Before(s.last) {
		t = s.last
	}
	s.last = t
	return t
}

func matches(doc map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !reflect.DeepEqual(doc[f.Field], f.Value) {
			return false
		}
	}
	return true
}
