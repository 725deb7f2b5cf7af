package httpprof

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/stopwatch/pkg/profiler"
)

// DefaultListSize is the number of sessions listed when n is not given.
const DefaultListSize = 100

// Summary is one entry of /results-list.
type Summary struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Started              time.Time `json:"started"`
	DurationMilliseconds float64   `json:"duration_ms"`
	User                 string    `json:"user,omitempty"`
	HasUserViewed        bool      `json:"has_user_viewed"`
}

// NewSummary describes a stored session.
func NewSummary(p *profiler.Profiler) Summary {
	d, _ := p.Root.Duration()
	return Summary{
		ID:                   p.ID,
		Name:                 p.Name,
		Started:              p.Started,
		DurationMilliseconds: d,
		User:                 p.User,
		HasUserViewed:        p.HasUserViewed,
	}
}

// Handler serves stored sessions from cfg.Options.Storage.
func Handler(cfg *Config) http.Handler {
	c := cfg.withDefaults()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /results", c.handleResults)
	mux.HandleFunc("GET /results-index", c.handleIndex)
	mux.HandleFunc("GET /results-list", c.handleList)
	return mux
}

func (c *Config) storage(w http.ResponseWriter) profiler.Storage {
	if c.Options.Storage == nil {
		http.Error(w, "profiler storage not configured", http.StatusServiceUnavailable)
	}
	return c.Options.Storage
}

func (c *Config) handleResults(w http.ResponseWriter, r *http.Request) {
	store := c.storage(w)
	if store == nil {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	p, err := store.Load(r.Context(), id)
	if err != nil {
		c.Logger.Error("failed to load session", "profiler_id", id, "error", err)
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	if p == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	if user := c.UserFunc(r); user == p.User && !p.HasUserViewed {
		if err := store.SetViewed(r.Context(), user, id); err != nil {
			c.Logger.Warn("failed to mark session viewed", "profiler_id", id, "error", err)
		} else {
			p.HasUserViewed = true
		}
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := profiler.RenderPlainText(w, p); err != nil {
			c.Logger.Warn("failed to render session", "profiler_id", id, "error", err)
		}
		return
	}
	writeJSON(w, p)
}

func (c *Config) handleIndex(w http.ResponseWriter, r *http.Request) {
	ids, ok := c.list(w, r)
	if !ok {
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, ids)
}

func (c *Config) handleList(w http.ResponseWriter, r *http.Request) {
	ids, ok := c.list(w, r)
	if !ok {
		return
	}

	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		p, err := c.Options.Storage.Load(r.Context(), id)
		if err != nil || p == nil {
			continue
		}
		summaries = append(summaries, NewSummary(p))
	}
	writeJSON(w, summaries)
}

// list runs Storage.List with the n, order, start and finish query parameters.
func (c *Config) list(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	store := c.storage(w)
	if store == nil {
		return nil, false
	}
	q := r.URL.Query()

	n := DefaultListSize
	if s := q.Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			http.Error(w, "invalid n", http.StatusBadRequest)
			return nil, false
		}
		n = v
	}

	var start, finish time.Time
	for name, dst := range map[string]*time.Time{"start": &start, "finish": &finish} {
		if s := q.Get(name); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid "+name, http.StatusBadRequest)
				return nil, false
			}
			*dst = t
		}
	}

	ids, err := store.List(r.Context(), n, start, finish, profiler.ParseListOrder(q.Get("order")))
	if err != nil {
		c.Logger.Error("failed to list sessions", "error", err)
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return nil, false
	}
	return ids, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
