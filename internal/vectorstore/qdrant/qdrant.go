// Package qdrant adapts a Qdrant server's REST API to vectorstore.Index.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"paperrag/internal/domain"
	"paperrag/internal/vectorstore"
)

var errNotFound = errors.New("qdrant: not found")

// pointNamespace derives stable point UUIDs from chunk IDs, which Qdrant
// does not accept as point identifiers.
var pointNamespace = uuid.MustParse("6f1d3c2a-8e4b-5a7d-9c0e-2b4f6a8d0c1e")

// Config contains connection details for a Qdrant server.
type Config struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Storage is a REST client to Qdrant. Qdrant needs the vector size up front,
// so a collection registered with EnsureCollection is created remotely on
// its first Add.
type Storage struct {
	url    string
	apiKey string
	client *http.Client

	mu      sync.Mutex
	pending map[string]vectorstore.Metric
}

var _ vectorstore.Index = (*Storage)(nil)

func NewStorage(cfg Config) *Storage {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Storage{
		url:     strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		pending: make(map[string]vectorstore.Metric),
	}
}

type collectionInfo struct {
	PointsCount int `json:"points_count"`
	Config      struct {
		Params struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

func (s *Storage) EnsureCollection(ctx context.Context, name string, metric vectorstore.Metric) (vectorstore.Collection, error) {
	if err := vectorstore.ValidateName(name); err != nil {
		return vectorstore.Collection{}, err
	}
	if metric == "" {
		metric = vectorstore.MetricCosine
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.info(ctx, name)
	switch {
	case err == nil:
		return describe(name, info), nil
	case !errors.Is(err, errNotFound):
		return vectorstore.Collection{}, err
	}
	if m, ok := s.pending[name]; ok {
		metric = m
	} else {
		s.pending[name] = metric
	}
	return vectorstore.Collection{Name: name, Metric: metric}, nil
}

func (s *Storage) Add(ctx context.Context, name string, ids []string, vectors [][]float32, texts []string, metadatas []vectorstore.Metadata) error {
	records, err := vectorstore.BuildRecords(ids, vectors, texts, metadatas)
	if err != nil || len(records) == 0 {
		return err
	}
	dim, err := s.prepare(ctx, name, len(records[0].Vector))
	if err != nil {
		return err
	}

	points := make([]map[string]any, len(records))
	for i, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: item %q has %d dimensions, collection has %d",
				domain.ErrDimensionMismatch, r.ID, len(r.Vector), dim)
		}
		points[i] = map[string]any{
			"id":     pointID(r.ID),
			"vector": r.Vector,
			"payload": map[string]any{
				"chunk_id": r.ID,
				"text":     r.Text,
				"metadata": r.Metadata,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, s.collectionURL(name, "points")+"?wait=true", body, nil)
}

// prepare returns the collection dimension, creating a pending collection
// with the given one.
func (s *Storage) prepare(ctx context.Context, name string, dim int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.info(ctx, name)
	if err == nil {
		return info.Config.Params.Vectors.Size, nil
	}
	if !errors.Is(err, errNotFound) {
		return 0, err
	}
	metric, ok := s.pending[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": distanceName(metric),
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(name, ""), body, nil); err != nil {
		return 0, err
	}
	delete(s.pending, name)
	return dim, nil
}

func (s *Storage) Search(ctx context.Context, name string, query []float32, k int) ([]vectorstore.Hit, error) {
	if k <= 0 || vectorstore.ValidateName(name) != nil {
		return nil, nil
	}
	info, err := s.info(ctx, name)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if info.PointsCount == 0 {
		return nil, nil
	}
	if dim := info.Config.Params.Vectors.Size; len(query) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			domain.ErrDimensionMismatch, len(query), dim)
	}
	metric := metricFromDistance(info.Config.Params.Vectors.Distance)

	req := map[string]any{
		"vector":       query,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				ChunkID  string         `json:"chunk_id"`
				Text     string         `json:"text"`
				Metadata map[string]any `json:"metadata"`
			} `json:"payload"`
		} `json:"result"`
	}
	err = s.do(ctx, http.MethodPost, s.collectionURL(name, "points/search"), req, &resp)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	hits := make([]vectorstore.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, vectorstore.Hit{
			ID:       r.Payload.ChunkID,
			Text:     r.Payload.Text,
			Metadata: r.Payload.Metadata,
			Distance: scoreToDistance(metric, r.Score),
		})
	}
	return hits, nil
}

func (s *Storage) Has(ctx context.Context, name, id string) (bool, error) {
	if vectorstore.ValidateName(name) != nil {
		return false, nil
	}
	err := s.do(ctx, http.MethodGet, s.collectionURL(name, "points/"+pointID(id)), nil, nil)
	if errors.Is(err, errNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Storage) Count(ctx context.Context, name string) (int, error) {
	if vectorstore.ValidateName(name) != nil {
		return 0, nil
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL(name, "points/count"), map[string]any{"exact": true}, &resp)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	return resp.Result.Count, err
}

func (s *Storage) ExistsWithData(ctx context.Context, name string) (bool, error) {
	n, err := s.Count(ctx, name)
	return n > 0, err
}

func (s *Storage) DeleteCollection(ctx context.Context, name string) error {
	if vectorstore.ValidateName(name) != nil {
		return nil
	}
	s.mu.Lock()
	delete(s.pending, name)
	s.mu.Unlock()
	err := s.do(ctx, http.MethodDelete, s.collectionURL(name, ""), nil, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

func (s *Storage) Close() error { return nil }

func (s *Storage) info(ctx context.Context, name string) (collectionInfo, error) {
	var resp struct {
		Result collectionInfo `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, s.collectionURL(name, ""), nil, &resp)
	return resp.Result, err
}

func (s *Storage) collectionURL(name, suffix string) string {
	u := fmt.Sprintf("%s/collections/%s", s.url, url.PathEscape(name))
	if suffix != "" {
		u += "/" + suffix
	}
	return u
}

func (s *Storage) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, endpoint, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func describe(name string, info collectionInfo) vectorstore.Collection {
	return vectorstore.Collection{
		Name:      name,
		Metric:    metricFromDistance(info.Config.Params.Vectors.Distance),
		Dimension: info.Config.Params.Vectors.Size,
		Count:     info.PointsCount,
	}
}

func pointID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

func distanceName(m vectorstore.Metric) string {
	switch m {
	case vectorstore.MetricL2:
		return "Euclid"
	case vectorstore.MetricIP:
		return "Dot"
	default:
		return "Cosine"
	}
}

func metricFromDistance(d string) vectorstore.Metric {
	switch d {
	case "Euclid":
		return vectorstore.MetricL2
	case "Dot":
		return vectorstore.MetricIP
	default:
		return vectorstore.MetricCosine
	}
}

// scoreToDistance maps Qdrant's score onto this package's distances. Qdrant
// reports similarity for Cosine and Dot and plain euclidean distance for Euclid.
func scoreToDistance(m vectorstore.Metric, score float64) float64 {
	if m == vectorstore.MetricL2 {
		return score * score
	}
	return 1 - score
}
