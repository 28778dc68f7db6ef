package qdrant

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperrag/internal/vectorstore"
	"paperrag/internal/vectorstore/indextest"
)

type fakePoint struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type fakeCollection struct {
	size     int
	distance string
	points   []fakePoint
}

// fakeQdrant implements the handful of REST endpoints the adapter uses.
type fakeQdrant struct {
	mu          sync.Mutex
	apiKey      string
	collections map[string]*fakeCollection
}

func newFakeQdrant(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	f := &fakeQdrant{apiKey: apiKey, collections: map[string]*fakeCollection{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/{name}", f.getCollection)
	mux.HandleFunc("PUT /collections/{name}", f.createCollection)
	mux.HandleFunc("DELETE /collections/{name}", f.deleteCollection)
	mux.HandleFunc("PUT /collections/{name}/points", f.upsert)
	mux.HandleFunc("POST /collections/{name}/points/search", f.search)
	mux.HandleFunc("POST /collections/{name}/points/count", f.count)
	mux.HandleFunc("GET /collections/{name}/points/{id}", f.getPoint)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.apiKey != "" && r.Header.Get("api-key") != f.apiKey {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func (f *fakeQdrant) lookup(w http.ResponseWriter, r *http.Request) *fakeCollection {
	c, ok := f.collections[r.PathValue("name")]
	if !ok {
		http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
	}
	return c
}

func (f *fakeQdrant) getCollection(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.lookup(w, r)
	if c == nil {
		return
	}
	writeResult(w, map[string]any{
		"points_count": len(c.points),
		"config": map[string]any{"params": map[string]any{"vectors": map[string]any{
			"size": c.size, "distance": c.distance,
		}}},
	})
}

func (f *fakeQdrant) createCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vectors struct {
			Size     int    `json:"size"`
			Distance string `json:"distance"`
		} `json:"vectors"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	name := r.PathValue("name")
	if _, ok := f.collections[name]; ok {
		http.Error(w, "already exists", http.StatusConflict)
		return
	}
	f.collections[name] = &fakeCollection{size: req.Vectors.Size, distance: req.Vectors.Distance}
	writeResult(w, true)
}

func (f *fakeQdrant) deleteCollection(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookup(w, r) == nil {
		return
	}
	delete(f.collections, r.PathValue("name"))
	writeResult(w, true)
}

func (f *fakeQdrant) upsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points []fakePoint `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.lookup(w, r)
	if c == nil {
		return
	}
	c.points = append(c.points, req.Points...)
	writeResult(w, map[string]any{"status": "completed"})
}

func (f *fakeQdrant) search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vector []float64 `json:"vector"`
		Limit  int       `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.lookup(w, r)
	if c == nil {
		return
	}
	type scored struct {
		ID      string         `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	out := make([]scored, 0, len(c.points))
	for _, p := range c.points {
		out = append(out, scored{ID: p.ID, Score: cosine(req.Vector, p.Vector), Payload: p.Payload})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	writeResult(w, out)
}

func (f *fakeQdrant) count(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.lookup(w, r)
	if c == nil {
		return
	}
	writeResult(w, map[string]any{"count": len(c.points)})
}

func (f *fakeQdrant) getPoint(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.lookup(w, r)
	if c == nil {
		return
	}
	for _, p := range c.points {
		if p.ID == r.PathValue("id") {
			writeResult(w, p)
			return
		}
	}
	http.Error(w, "point not found", http.StatusNotFound)
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestStorage(t *testing.T) {
	indextest.Run(t, func(t *testing.T) vectorstore.Index {
		srv := newFakeQdrant(t, "")
		return NewStorage(Config{URL: srv.URL})
	})
}

func TestStorageSendsAPIKeyAndStableIDs(t *testing.T) {
	srv := newFakeQdrant(t, "secret")
	ctx := context.Background()

	s := NewStorage(Config{URL: srv.URL + "/", APIKey: "secret"})
	indextest.Seed(t, s, "research_papers", 2, 4)

	ok, err := s.Has(ctx, "research_papers", "c1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, pointID("c1"), pointID("c1"))
	assert.NotEqual(t, pointID("c1"), pointID("c2"))

	bad := NewStorage(Config{URL: srv.URL, APIKey: "wrong"})
	_, err = bad.Count(ctx, "research_papers")
	assert.Error(t, err)
}

func TestScoreToDistance(t *testing.T) {
	assert.InDelta(t, 0.25, scoreToDistance(vectorstore.MetricCosine, 0.75), 1e-9)
	assert.InDelta(t, 4, scoreToDistance(vectorstore.MetricL2, 2), 1e-9)
	assert.Equal(t, "Euclid", distanceName(vectorstore.MetricL2))
	assert.Equal(t, vectorstore.MetricIP, metricFromDistance("Dot"))
}
