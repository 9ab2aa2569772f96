// Package cache provides read-through memoization of file lookups.
//
// A Lookup keeps two independent caches, one for existence probes and one for
// full fetches, each keyed by the file id. Existence checks are cheap
// pre-filters while fetches carry the payload, so the two are never mixed.
// The backing store stays the single source of truth: a miss consults it and
// only a successful response is written back, so a transient failure or a
// missing file is never remembered as a result.
package cache

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/prasetia/go-upload-cache/store"
)

var meter = otel.Meter("github.com/prasetia/go-upload-cache/cache")

type Options struct {
	SingleFlight bool
}

type Option func(*Options)

// WithSingleFlight collapses concurrent misses for the same id into a single
// store call. Without it, racing misses may each consult the store and the
// last write to the cache stands; the store returns the same value for the
// same id, so the overwrite is idempotent either way.
func WithSingleFlight() Option {
	return func(o *Options) {
		o.SingleFlight = true
	}
}

type Lookup struct {
	store store.Store

	existsMu sync.RWMutex
	exists   map[int64]bool

	filesMu sync.RWMutex
	files   map[int64]store.File

	sf *singleflight.Group

	hits   metric.Int64Counter
	misses metric.Int64Counter
}

func NewLookup(s store.Store, opts ...Option) *Lookup {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	l := &Lookup{
		store:  s,
		exists: make(map[int64]bool),
		files:  make(map[int64]store.File),
	}
	if o.SingleFlight {
		l.sf = &singleflight.Group{}
	}
	l.hits, _ = meter.Int64Counter("lookup.cache.hits")
	l.misses, _ = meter.Int64Counter("lookup.cache.misses")
	return l
}

// Exists reports whether a file with the given id is persisted. A previously
// observed answer, including false, is served from the cache without
// consulting the store.
func (l *Lookup) Exists(ctx context.Context, id int64) (bool, error) {
	l.existsMu.RLock()
	ok, cached := l.exists[id]
	l.existsMu.RUnlock()
	if cached {
		l.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "exists")))
		return ok, nil
	}
	l.misses.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "exists")))

	if l.sf != nil {
		v, err, _ := l.sf.Do("exists:"+strconv.FormatInt(id, 10), func() (any, error) {
			return l.fillExists(ctx, id)
		})
		if err != nil {
			return false, err
		}
		return v.(bool), nil
	}
	return l.fillExists(ctx, id)
}

// fillExists consults the store and writes the answer back. The cache lock is
// never held across the store call.
func (l *Lookup) fillExists(ctx context.Context, id int64) (bool, error) {
	ok, err := l.store.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	l.existsMu.Lock()
	l.exists[id] = ok
	l.existsMu.Unlock()
	return ok, nil
}

// Get returns the file with the given id, serving repeated fetches from the
// cache. store.ErrNotFound and transient store errors propagate unchanged and
// leave the cache untouched.
func (l *Lookup) Get(ctx context.Context, id int64) (store.File, error) {
	l.filesMu.RLock()
	f, cached := l.files[id]
	l.filesMu.RUnlock()
	if cached {
		l.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "get")))
		return f, nil
	}
	l.misses.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "get")))

	if l.sf != nil {
		v, err, _ := l.sf.Do("get:"+strconv.FormatInt(id, 10), func() (any, error) {
			return l.fillFile(ctx, id)
		})
		if err != nil {
			return store.File{}, err
		}
		return v.(store.File), nil
	}
	return l.fillFile(ctx, id)
}

func (l *Lookup) fillFile(ctx context.Context, id int64) (store.File, error) {
	f, err := l.store.Get(ctx, id)
	if err != nil {
		return store.File{}, err
	}
	l.filesMu.Lock()
	l.files[id] = f
	l.filesMu.Unlock()
	return f, nil
}

// Reset drops every cached result from both caches.
func (l *Lookup) Reset() {
	l.existsMu.Lock()
	l.exists = make(map[int64]bool)
	l.existsMu.Unlock()

	l.filesMu.Lock()
	l.files = make(map[int64]store.File)
	l.filesMu.Unlock()
}
