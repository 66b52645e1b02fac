package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"trip-planner/internal/models"
)

// StubPartitioner is a deterministic clustering primitive.
// With Assignments set it returns them verbatim; otherwise it splits the
// points into k contiguous runs by input order.
type StubPartitioner struct {
	Assignments []int
	Err         error

	Calls int
	LastK int
}

func (p *StubPartitioner) Partition(points []models.Coordinates, k int) ([]int, error) {
	p.Calls++
	p.LastK = k
	if p.Err != nil {
		return nil, p.Err
	}

	if p.Assignments != nil {
		out := make([]int, len(p.Assignments))
		copy(out, p.Assignments)
		return out, nil
	}

	n := len(points)
	if k > n {
		k = n
	}
	out := make([]int, n)
	if k <= 0 {
		return out, nil
	}
	for i := range out {
		out[i] = i * k / n
	}
	return out, nil
}

// ErrNoResult is returned by ScriptedGeocoder for queries it has no answer for
var ErrNoResult = errors.New("no scripted result")

// ScriptedGeocoder answers geocoding queries from a fixed table and records every query.
type ScriptedGeocoder struct {
	Results map[string]models.Coordinates
	Wait    time.Duration

	mu      sync.Mutex
	Queries []string
	Times   []time.Time
}

func NewScriptedGeocoder(results map[string]models.Coordinates) *ScriptedGeocoder {
	if results == nil {
		results = make(map[string]models.Coordinates)
	}
	return &ScriptedGeocoder{Results: results}
}

func (g *ScriptedGeocoder) Name() string { return "scripted" }

func (g *ScriptedGeocoder) Delay() time.Duration { return g.Wait }

func (g *ScriptedGeocoder) Lookup(ctx context.Context, query string) (*models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.Queries = append(g.Queries, query)
	g.Times = append(g.Times, time.Now())
	g.mu.Unlock()
	if c, ok := g.Results[query]; ok {
		return &c, nil
	}
	return nil, ErrNoResult
}

// QueryCount returns how many lookups were issued
func (g *ScriptedGeocoder) QueryCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Queries)
}
