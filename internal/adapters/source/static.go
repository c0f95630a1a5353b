package source

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// defaultPageSize keeps scripted listings paginated like the real platform.
const defaultPageSize = 100

// Static is a scripted in-memory Source for tests and the simulator. It
// serves pre-loaded activity per community and can inject per-community
// failures to exercise partial-failure paths.
type Static struct {
	mu       sync.RWMutex
	records  map[string][]Activity
	failures map[string]error
	pageSize int
}

// StaticOption applies a configuration option to the Static source.
type StaticOption func(*Static)

// WithPageSize sets how many records each page carries.
func WithPageSize(n int) StaticOption {
	return func(s *Static) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewStatic creates an empty scripted source.
func NewStatic(opts ...StaticOption) *Static {
	s := &Static{
		records:  make(map[string][]Activity),
		failures: make(map[string]error),
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add loads activity for a community, kept sorted by creation time.
func (s *Static) Add(community string, acts ...Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[community] = append(s.records[community], acts...)
	sort.SliceStable(s.records[community], func(i, j int) bool {
		return s.records[community][i].CreatedAt.Before(s.records[community][j].CreatedAt)
	})
}

// Fail makes every listing for the community return err.
func (s *Static) Fail(community string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[community] = err
}

// ListActivity implements Source with offset-cursor pagination.
func (s *Static) ListActivity(ctx context.Context, community string, since, until time.Time, cursor string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.failures[community]; ok {
		return Page{}, err
	}

	matched := make([]Activity, 0)
	for _, a := range s.records[community] {
		if a.CreatedAt.Before(since) || !a.CreatedAt.Before(until) {
			continue
		}
		matched = append(matched, a)
	}

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return Page{}, ErrNotFound
		}
		offset = n
	}
	if offset >= len(matched) {
		return Page{}, nil
	}

	end := offset + s.pageSize
	next := ""
	if end < len(matched) {
		next = strconv.Itoa(end)
	} else {
		end = len(matched)
	}
	return Page{Records: matched[offset:end], NextCursor: next}, nil
}
