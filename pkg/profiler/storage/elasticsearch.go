package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"mercator-hq/stopwatch/pkg/profiler"
)

const esBackend = "elasticsearch"

// maxSearchSize is Elasticsearch's default index.max_result_window.
const maxSearchSize = 10000

// Refresh policies for write requests.
const (
	RefreshWaitFor   = "wait_for"
	RefreshImmediate = "true"
	RefreshAsync     = "false"
)

// ElasticsearchConfig contains configuration for the Elasticsearch backend.
type ElasticsearchConfig struct {
	// Addresses lists the cluster nodes.
	// Default: ["http://localhost:9200"]
	Addresses []string

	// Index is the index sessions are written to.
	// Default: "stopwatch-profilers"
	Index string

	// Username and Password enable basic authentication when set.
	Username string
	Password string

	// Refresh is the refresh policy for writes: "wait_for", "true" or "false".
	// Default: "wait_for"
	Refresh string

	// Transport overrides the HTTP transport of the client.
	Transport http.RoundTripper
}

// DefaultElasticsearchConfig returns the default Elasticsearch configuration.
func DefaultElasticsearchConfig() *ElasticsearchConfig {
	return &ElasticsearchConfig{
		Addresses: []string{"http://localhost:9200"},
		Index:     "stopwatch-profilers",
		Refresh:   RefreshWaitFor,
	}
}

// ElasticsearchStorage stores one document per session. The document carries the
// flattened record plus top-level fields for the range, sort and term queries.
type ElasticsearchStorage struct {
	es      *elasticsearch.Client
	index   string
	refresh string
	logger  *slog.Logger
}

// esDocument is the indexed shape of a session.
type esDocument struct {
	Started       int64           `json:"started"`
	User          string          `json:"user"`
	HasUserViewed bool            `json:"has_user_viewed"`
	Record        profiler.Record `json:"record"`
}

type esGetResponse struct {
	Found  bool       `json:"found"`
	Source esDocument `json:"_source"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

type esDeleteByQueryResponse struct {
	Deleted int64 `json:"deleted"`
}

type esCountResponse struct {
	Count int64 `json:"count"`
}

const esMapping = `{
  "mappings": {
    "properties": {
      "started": {"type": "long"},
      "user": {"type": "keyword"},
      "has_user_viewed": {"type": "boolean"},
      "record": {"type": "object", "enabled": false}
    }
  }
}`

const esSetViewedScript = `if (ctx._source.user == params.user) { ctx._source.has_user_viewed = params.viewed } else { ctx.op = 'noop' }`

// NewElasticsearchStorage creates a client from config.
func NewElasticsearchStorage(config *ElasticsearchConfig) (*ElasticsearchStorage, error) {
	if config == nil {
		config = DefaultElasticsearchConfig()
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
		Transport: config.Transport,
	})
	if err != nil {
		return nil, profiler.NewStorageError(esBackend, "connect", err)
	}
	return NewElasticsearchStorageWithClient(es, config.Index, config.Refresh), nil
}

// NewElasticsearchStorageWithClient wraps an existing client.
func NewElasticsearchStorageWithClient(es *elasticsearch.Client, index, refresh string) *ElasticsearchStorage {
	if index == "" {
		index = "stopwatch-profilers"
	}
	if refresh == "" {
		refresh = RefreshWaitFor
	}
	return &ElasticsearchStorage{
		es:      es,
		index:   index,
		refresh: refresh,
		logger:  slog.Default().With("component", "profiler.storage.elasticsearch", "index", index),
	}
}

// EnsureIndex creates the index with its mapping unless it already exists.
func (s *ElasticsearchStorage) EnsureIndex(ctx context.Context) error {
	res, err := s.es.Indices.Create(
		s.index,
		s.es.Indices.Create.WithBody(strings.NewReader(esMapping)),
		s.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return profiler.NewStorageError(esBackend, "create_index", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		if res.StatusCode == http.StatusBadRequest && bytes.Contains(body, []byte("resource_already_exists_exception")) {
			return nil
		}
		return profiler.NewStorageError(esBackend, "create_index", fmt.Errorf("create index error: %s", body))
	}
	s.logger.Info("created index")
	return nil
}

// Save indexes p with op_type=create so an existing document is never replaced.
func (s *ElasticsearchStorage) Save(ctx context.Context, p *profiler.Profiler) error {
	if p == nil {
		return profiler.NewStorageError(esBackend, "save", fmt.Errorf("nil profiler"))
	}
	rec := p.Flatten()
	doc := esDocument{
		Started:       rec.Session.Started.UnixNano(),
		User:          rec.Session.User,
		HasUserViewed: rec.Session.HasUserViewed,
		Record:        *rec,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return profiler.NewStorageError(esBackend, "save", fmt.Errorf("error marshaling session: %w", err))
	}

	res, err := s.es.Index(
		s.index,
		bytes.NewReader(body),
		s.es.Index.WithDocumentID(rec.Session.ID),
		s.es.Index.WithOpType("create"),
		s.es.Index.WithRefresh(s.refresh),
		s.es.Index.WithContext(ctx),
	)
	if err != nil {
		return profiler.NewStorageError(esBackend, "save", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusConflict {
		s.logger.Debug("session already indexed", "profiler_id", rec.Session.ID)
		return nil
	}
	if res.IsError() {
		return profiler.NewStorageError(esBackend, "save", fmt.Errorf("index error: %s", res.String()))
	}
	return nil
}

// Load fetches and rebuilds a session. It returns nil for an unknown id.
func (s *ElasticsearchStorage) Load(ctx context.Context, id string) (*profiler.Profiler, error) {
	res, err := s.es.Get(s.index, id, s.es.Get.WithContext(ctx))
	if err != nil {
		return nil, profiler.NewStorageError(esBackend, "load", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, profiler.NewStorageError(esBackend, "load", fmt.Errorf("get error: %s", res.String()))
	}

	var got esGetResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		return nil, profiler.NewStorageError(esBackend, "load", fmt.Errorf("failed to decode response body: %w", err))
	}
	if !got.Found {
		return nil, nil
	}

	rec := got.Source.Record
	rec.Session.HasUserViewed = got.Source.HasUserViewed
	p, err := profiler.Rebuild(&rec)
	if err != nil {
		return nil, profiler.NewStorageError(esBackend, "load", err)
	}
	return p, nil
}

// List returns session ids started within [start, finish].
func (s *ElasticsearchStorage) List(ctx context.Context, maxResults int, start, finish time.Time, order profiler.ListOrder) ([]string, error) {
	started := map[string]any{}
	if !start.IsZero() {
		started["gte"] = start.UnixNano()
	}
	if !finish.IsZero() {
		started["lte"] = finish.UnixNano()
	}
	query := map[string]any{"match_all": map[string]any{}}
	if len(started) > 0 {
		query = map[string]any{"range": map[string]any{"started": started}}
	}

	dir := "desc"
	if order == profiler.Ascending {
		dir = "asc"
	}
	size := maxResults
	if size <= 0 || size > maxSearchSize {
		size = maxSearchSize
	}

	ids, err := s.searchIDs(ctx, map[string]any{
		"query":   query,
		"sort":    []any{map[string]any{"started": map[string]any{"order": dir}}},
		"_source": false,
	}, size)
	if err != nil {
		return nil, profiler.NewStorageError(esBackend, "list", err)
	}
	return ids, nil
}

// SetUnviewed clears the viewed flag of a session owned by user.
func (s *ElasticsearchStorage) SetUnviewed(ctx context.Context, user, id string) error {
	return s.setViewed(ctx, "set_unviewed", user, id, false)
}

// SetViewed sets the viewed flag of a session owned by user.
func (s *ElasticsearchStorage) SetViewed(ctx context.Context, user, id string) error {
	return s.setViewed(ctx, "set_viewed", user, id, true)
}

func (s *ElasticsearchStorage) setViewed(ctx context.Context, op, user, id string, viewed bool) error {
	body, err := json.Marshal(map[string]any{
		"script": map[string]any{
			"lang":   "painless",
			"source": esSetViewedScript,
			"params": map[string]any{"user": user, "viewed": viewed},
		},
	})
	if err != nil {
		return profiler.NewStorageError(esBackend, op, fmt.Errorf("error marshaling update: %w", err))
	}

	res, err := s.es.Update(
		s.index, id,
		bytes.NewReader(body),
		s.es.Update.WithRefresh(s.refresh),
		s.es.Update.WithContext(ctx),
	)
	if err != nil {
		return profiler.NewStorageError(esBackend, op, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return profiler.NewStorageError(esBackend, op, fmt.Errorf("update error: %s", res.String()))
	}
	return nil
}

// GetUnviewedIDs returns the user's unviewed sessions, oldest first.
func (s *ElasticsearchStorage) GetUnviewedIDs(ctx context.Context, user string) ([]string, error) {
	ids, err := s.searchIDs(ctx, map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{"user": user}},
					map[string]any{"term": map[string]any{"has_user_viewed": false}},
				},
			},
		},
		"sort":    []any{map[string]any{"started": map[string]any{"order": "asc"}}},
		"_source": false,
	}, maxSearchSize)
	if err != nil {
		return nil, profiler.NewStorageError(esBackend, "get_unviewed_ids", err)
	}
	return ids, nil
}

// SetUnviewedAfterSave returns false: the viewed flag is indexed with the document.
func (s *ElasticsearchStorage) SetUnviewedAfterSave() bool {
	return false
}

// DeleteBefore removes sessions started before cutoff.
func (s *ElasticsearchStorage) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteByQuery(ctx, map[string]any{
		"range": map[string]any{"started": map[string]any{"lt": cutoff.UnixNano()}},
	})
}

// DeleteOldest removes the n oldest sessions.
func (s *ElasticsearchStorage) DeleteOldest(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	size := int(n)
	if size > maxSearchSize {
		size = maxSearchSize
	}
	ids, err := s.searchIDs(ctx, map[string]any{
		"query":   map[string]any{"match_all": map[string]any{}},
		"sort":    []any{map[string]any{"started": map[string]any{"order": "asc"}}},
		"_source": false,
	}, size)
	if err != nil {
		return 0, profiler.NewStorageError(esBackend, "delete", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return s.deleteByQuery(ctx, map[string]any{"ids": map[string]any{"values": ids}})
}

// Count returns the number of indexed sessions.
func (s *ElasticsearchStorage) Count(ctx context.Context) (int64, error) {
	res, err := s.es.Count(
		s.es.Count.WithIndex(s.index),
		s.es.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, profiler.NewStorageError(esBackend, "count", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, profiler.NewStorageError(esBackend, "count", fmt.Errorf("count error: %s", res.String()))
	}

	var out esCountResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, profiler.NewStorageError(esBackend, "count", fmt.Errorf("failed to decode response body: %w", err))
	}
	return out.Count, nil
}

func (s *ElasticsearchStorage) searchIDs(ctx context.Context, body map[string]any, size int) ([]string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling query: %w", err)
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(bytes.NewReader(data)),
		s.es.Search.WithSize(size),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("failed to execute query: %s", res.String())
	}

	var out esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	var ids []string
	for _, hit := range out.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (s *ElasticsearchStorage) deleteByQuery(ctx context.Context, query map[string]any) (int64, error) {
	data, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return 0, profiler.NewStorageError(esBackend, "delete", fmt.Errorf("error marshaling query: %w", err))
	}

	res, err := s.es.DeleteByQuery(
		[]string{s.index},
		bytes.NewReader(data),
		s.es.DeleteByQuery.WithRefresh(true),
		s.es.DeleteByQuery.WithConflicts("proceed"),
		s.es.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return 0, profiler.NewStorageError(esBackend, "delete", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, profiler.NewStorageError(esBackend, "delete", fmt.Errorf("delete by query error: %s", res.String()))
	}

	var out esDeleteByQueryResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, profiler.NewStorageError(esBackend, "delete", fmt.Errorf("failed to decode response body: %w", err))
	}
	if out.Deleted > 0 {
		s.logger.Debug("deleted sessions", "count", out.Deleted)
	}
	return out.Deleted, nil
}
