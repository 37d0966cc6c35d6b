package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Source reads remote template definitions. Storage uploaders satisfy it.
type Source interface {
	ReadObject(ctx context.Context, key string) ([]byte, error)
}

type entry struct {
	schema *Schema
	html   string
}

// Registry is the catalog of document templates. Local definitions are
// always available; remote ones, when a Source is configured, override them
// for CacheTTL after each sync.
type Registry struct {
	mu       sync.RWMutex
	order    []DocumentType
	local    map[DocumentType]entry
	remote   map[DocumentType]entry
	syncedAt time.Time

	source Source
	prefix string
	ttl    time.Duration
	group  singleflight.Group
	now    func() time.Time
}

type Option func(*Registry)

func WithRemote(source Source, prefix string, ttl time.Duration) Option {
	return func(r *Registry) {
		r.source = source
		r.prefix = prefix
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry returns a registry preloaded with the built-in templates.
func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{
		local:  make(map[DocumentType]entry),
		remote: make(map[DocumentType]entry),
		ttl:    5 * time.Minute,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, s := range builtinSchemas() {
		html, err := builtinHTML(s.Type)
		if err != nil {
			return nil, err
		}
		if err := r.Register(s, html); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a local template definition.
func (r *Registry) Register(s *Schema, html string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.local[s.Type]; !exists {
		r.order = append(r.order, s.Type)
	}
	r.local[s.Type] = entry{schema: s.Clone(), html: html}
	return nil
}

func (r *Registry) Get(ctx context.Context, t DocumentType) (*Schema, error) {
	e, ok := r.lookup(ctx, t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, t)
	}
	return e.schema.Clone(), nil
}

func (r *Registry) HTML(ctx context.Context, t DocumentType) (string, error) {
	e, ok := r.lookup(ctx, t)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, t)
	}
	return e.html, nil
}

func (r *Registry) List(ctx context.Context) []*Schema {
	r.ensureFresh(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Schema, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.entryLocked(t).schema.Clone())
	}
	return out
}

func (r *Registry) Types(ctx context.Context) []DocumentType {
	var types []DocumentType
	for _, s := range r.List(ctx) {
		types = append(types, s.Type)
	}
	return types
}

func (r *Registry) SearchByType(ctx context.Context, t DocumentType) []*Schema {
	s, err := r.Get(ctx, t)
	if err != nil {
		return nil
	}
	return []*Schema{s}
}

// SearchByKeyword returns templates whose keywords, tags, name or description
// overlap the query. Templates whose name overlaps the query come first.
func (r *Registry) SearchByKeyword(ctx context.Context, query string) []*Schema {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	terms := []string{q}
	for _, f := range strings.Fields(q) {
		if utf8.RuneCountInString(f) >= 2 {
			terms = append(terms, f)
		}
	}

	type hit struct {
		schema    *Schema
		nameMatch bool
	}
	var hits []hit
	for _, s := range r.List(ctx) {
		nameMatch := overlapsAny(strings.ToLower(s.Name), terms)
		matched := nameMatch
		if !matched {
			candidates := append(append([]string{s.Description}, s.Keywords...), s.Tags...)
			for _, c := range candidates {
				if overlapsAny(strings.ToLower(c), terms) {
					matched = true
					break
				}
			}
		}
		if matched {
			hits = append(hits, hit{schema: s, nameMatch: nameMatch})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].nameMatch && !hits[j].nameMatch
	})

	out := make([]*Schema, len(hits))
	for i, h := range hits {
		out[i] = h.schema
	}
	return out
}

func overlapsAny(candidate string, terms []string) bool {
	if candidate == "" {
		return false
	}
	for _, t := range terms {
		if t == "" {
			continue
		}
		if strings.Contains(t, candidate) || strings.Contains(candidate, t) {
			return true
		}
	}
	return false
}

func (r *Registry) lookup(ctx context.Context, t DocumentType) (entry, bool) {
	r.ensureFresh(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.local[t]; !ok {
		return entry{}, false
	}
	return r.entryLocked(t), true
}

func (r *Registry) entryLocked(t DocumentType) entry {
	if e, ok := r.remote[t]; ok {
		return e
	}
	return r.local[t]
}

// ensureFresh syncs remote definitions when the cache is empty or expired.
// Concurrent callers share one in-flight sync.
func (r *Registry) ensureFresh(ctx context.Context) {
	if r.source == nil {
		return
	}
	if r.fresh() {
		return
	}

	_, _, _ = r.group.Do("sync", func() (interface{}, error) {
		if r.fresh() {
			return nil, nil
		}
		syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		r.sync(syncCtx)
		return nil, nil
	})
}

func (r *Registry) fresh() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.syncedAt.IsZero() && r.now().Sub(r.syncedAt) < r.ttl
}

func (r *Registry) sync(ctx context.Context) {
	r.mu.RLock()
	types := append([]DocumentType(nil), r.order...)
	r.mu.RUnlock()

	fetched := make(map[DocumentType]entry)
	for _, t := range types {
		e, err := r.fetch(ctx, t)
		if err != nil {
			logrus.WithError(err).WithField("document_type", t).Debug("Remote template unavailable, using local definition")
			continue
		}
		fetched[t] = e
	}

	r.mu.Lock()
	r.remote = fetched
	r.syncedAt = r.now()
	r.mu.Unlock()
}

func (r *Registry) fetch(ctx context.Context, t DocumentType) (entry, error) {
	raw, err := r.source.ReadObject(ctx, path.Join(r.prefix, string(t)+".json"))
	if err != nil {
		return entry{}, err
	}
	var s Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return entry{}, fmt.Errorf("invalid remote schema: %w", err)
	}
	if s.Type != t {
		return entry{}, fmt.Errorf("remote schema type %q does not match %q", s.Type, t)
	}
	if err := s.Validate(); err != nil {
		return entry{}, err
	}

	html, err := r.source.ReadObject(ctx, path.Join(r.prefix, string(t)+".html"))
	if err != nil {
		r.mu.RLock()
		local := r.local[t].html
		r.mu.RUnlock()
		return entry{schema: &s, html: local}, nil
	}
	return entry{schema: &s, html: string(html)}, nil
}
