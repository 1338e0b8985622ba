// Package catalog keeps the backend catalogs (node definitions, conditions,
// products, employees) the editor offers, with a local fallback when the
// backend is unreachable.
package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/flowbuilder/internal/store"
	"github.com/rendis/flowbuilder/pkg/schema"
)

// Source fetches catalogs from the backend. Satisfied by *client.Client.
type Source interface {
	Conditions(ctx context.Context) ([]schema.Condition, error)
	NodeDetails(ctx context.Context) (schema.NodeCatalog, error)
	Products(ctx context.Context) ([]schema.Product, error)
	Employees(ctx context.Context) ([]schema.Employee, error)
}

// Cache persists the last good copy of each catalog. Satisfied by store.Store.
type Cache interface {
	PutCatalog(ctx context.Context, kind store.CatalogKind, payload []byte) error
	GetCatalog(ctx context.Context, kind store.CatalogKind) (*store.CatalogEntry, error)
}

// Origin tells where a catalog list came from.
type Origin string

const (
	OriginLive  Origin = "live"
	OriginCache Origin = "cache"
	OriginEmpty Origin = "empty"
)

// Snapshot is an immutable view of every catalog.
type Snapshot struct {
	Nodes       schema.NodeCatalog           `json:"nodes"`
	Conditions  []schema.Condition           `json:"conditions"`
	Products    []schema.Product             `json:"products"`
	Employees   []schema.Employee            `json:"employees"`
	Origins     map[store.CatalogKind]Origin `json:"origins"`
	RefreshedAt time.Time                    `json:"refreshed_at"`
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Nodes:      schema.NodeCatalog{Tasks: []schema.Definition{}, Gateways: []schema.Definition{}, Events: []schema.Definition{}},
		Conditions: []schema.Condition{},
		Products:   []schema.Product{},
		Employees:  []schema.Employee{},
		Origins:    map[store.CatalogKind]Origin{},
	}
}

// Service fetches catalogs and answers lookups from the latest snapshot.
// Safe for concurrent use.
type Service struct {
	source Source
	cache  Cache
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	snap      Snapshot
	products  map[string]schema.Product
	employees map[string]schema.Employee
	listeners []func(Snapshot)
}

// New creates a Service. cache may be nil.
func New(source Source, cache Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:    source,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
		snap:      emptySnapshot(),
		products:  map[string]schema.Product{},
		employees: map[string]schema.Employee{},
	}
}

// OnRefresh registers fn to run after every completed Refresh.
func (s *Service) OnRefresh(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Refresh fetches all four catalogs concurrently. A failed fetch falls back
// to the cached copy, then to empty lists; Refresh itself never fails.
func (s *Service) Refresh(ctx context.Context) Snapshot {
	next := emptySnapshot()
	var mu sync.Mutex
	var wg sync.WaitGroup

	run := func(kind store.CatalogKind, fetch func() (any, error), assign func(json.RawMessage) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			origin := s.load(ctx, kind, fetch, assign, &mu)
			mu.Lock()
			next.Origins[kind] = origin
			mu.Unlock()
		}()
	}

	run(store.CatalogNodes,
		func() (any, error) { return s.source.NodeDetails(ctx) },
		func(raw json.RawMessage) error { return json.Unmarshal(raw, &next.Nodes) })
	run(store.CatalogConditions,
		func() (any, error) { return s.source.Conditions(ctx) },
		func(raw json.RawMessage) error { return json.Unmarshal(raw, &next.Conditions) })
	run(store.CatalogProducts,
		func() (any, error) { return s.source.Products(ctx) },
		func(raw json.RawMessage) error { return json.Unmarshal(raw, &next.Products) })
	run(store.CatalogEmployees,
		func() (any, error) { return s.source.Employees(ctx) },
		func(raw json.RawMessage) error { return json.Unmarshal(raw, &next.Employees) })
	wg.Wait()

	normalize(&next)
	next.RefreshedAt = s.now()

	s.mu.Lock()
	s.snap = next
	s.products = make(map[string]schema.Product, len(next.Products))
	for _, p := range next.Products {
		s.products[p.ID] = p
	}
	s.employees = make(map[string]schema.Employee, len(next.Employees))
	for _, e := range next.Employees {
		s.employees[e.ID] = e
	}
	listeners := append([]func(Snapshot){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return next
}

// load fetches one catalog kind live, falling back to the cache. assign
// decodes a JSON payload into the snapshot under mu.
func (s *Service) load(ctx context.Context, kind store.CatalogKind, fetch func() (any, error), assign func(json.RawMessage) error, mu *sync.Mutex) Origin {
	value, err := fetch()
	if err == nil {
		var raw []byte
		if raw, err = json.Marshal(value); err == nil {
			mu.Lock()
			err = assign(raw)
			mu.Unlock()
			if err == nil {
				s.remember(ctx, kind, raw)
				return OriginLive
			}
		}
	}
	s.logger.WarnContext(ctx, "catalog fetch failed",
		slog.String("catalog", string(kind)),
		slog.String("error", err.Error()))

	if s.cache == nil {
		return OriginEmpty
	}
	entry, cErr := s.cache.GetCatalog(ctx, kind)
	if cErr != nil {
		if schema.ErrorCode(cErr) != schema.ErrCodeNotFound {
			s.logger.WarnContext(ctx, "catalog cache read failed",
				slog.String("catalog", string(kind)), slog.String("error", cErr.Error()))
		}
		return OriginEmpty
	}
	mu.Lock()
	aErr := assign(entry.Payload)
	mu.Unlock()
	if aErr != nil {
		s.logger.WarnContext(ctx, "catalog cache entry is corrupt",
			slog.String("catalog", string(kind)), slog.String("error", aErr.Error()))
		return OriginEmpty
	}
	s.logger.InfoContext(ctx, "using cached catalog",
		slog.String("catalog", string(kind)), slog.Time("fetched_at", entry.FetchedAt))
	return OriginCache
}

func (s *Service) remember(ctx context.Context, kind store.CatalogKind, raw []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.PutCatalog(ctx, kind, raw); err != nil {
		s.logger.WarnContext(ctx, "catalog cache write failed",
			slog.String("catalog", string(kind)), slog.String("error", err.Error()))
	}
}

// normalize replaces nil lists, e.g. from a cached "null", with empty ones.
func normalize(s *Snapshot) {
	if s.Nodes.Tasks == nil {
		s.Nodes.Tasks = []schema.Definition{}
	}
	if s.Nodes.Gateways == nil {
		s.Nodes.Gateways = []schema.Definition{}
	}
	if s.Nodes.Events == nil {
		s.Nodes.Events = []schema.Definition{}
	}
	if s.Conditions == nil {
		s.Conditions = []schema.Condition{}
	}
	if s.Products == nil {
		s.Products = []schema.Product{}
	}
	if s.Employees == nil {
		s.Employees = []schema.Employee{}
	}
}

// Snapshot returns the latest catalogs.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Product implements graph.Directory.
func (s *Service) Product(id string) (schema.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

// Employee implements graph.Directory.
func (s *Service) Employee(id string) (schema.Employee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[id]
	return e, ok
}

// Condition looks a condition up by key.
func (s *Service) Condition(key string) (schema.Condition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.snap.Conditions {
		if c.ConditionKey == key {
			return c, true
		}
	}
	return schema.Condition{}, false
}

// Task looks a task definition up by key.
func (s *Service) Task(key string) (schema.Definition, bool) {
	return s.definition(func(n schema.NodeCatalog) []schema.Definition { return n.Tasks }, key)
}

// Gateway looks a gateway definition up by key.
func (s *Service) Gateway(key string) (schema.Definition, bool) {
	return s.definition(func(n schema.NodeCatalog) []schema.Definition { return n.Gateways }, key)
}

// Event looks an event definition up by key.
func (s *Service) Event(key string) (schema.Definition, bool) {
	return s.definition(func(n schema.NodeCatalog) []schema.Definition { return n.Events }, key)
}

func (s *Service) definition(list func(schema.NodeCatalog) []schema.Definition, key string) (schema.Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range list(s.snap.Nodes) {
		if d.Key == key {
			return d, true
		}
	}
	return schema.Definition{}, false
}
