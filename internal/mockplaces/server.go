package mockplaces

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/shpitdev/leadfinder/pkg/places"
)

// Call records a request made to the mock service.
type Call struct {
	Path      string
	Query     string
	PageToken string
	PlaceID   string
}

// Fixtures is the data served by the mock. Queries are matched
// case-insensitively on the full "<term> in <city>, <state>" string.
type Fixtures struct {
	Queries map[string][]places.Place `json:"queries"`
	Details map[string]places.Details `json:"details"`
}

// Server implements the Text Search and Details endpoints of the Places API.
type Server struct {
	pageSize int

	mu       sync.Mutex
	calls    []Call
	queries  map[string][]places.Place
	details  map[string]places.Details
	tokens   map[string]pageState
	nextTok  int
	apiKey   string
	overflow map[string]int
}

type pageState struct {
	query  string
	offset int
}

// New constructs a server over fixtures. pageSize <= 0 means 20, the real page size.
func New(fx Fixtures, pageSize int) *Server {
	if pageSize <= 0 {
		pageSize = 20
	}
	s := &Server{
		pageSize: pageSize,
		queries:  make(map[string][]places.Place),
		details:  make(map[string]places.Details),
		tokens:   make(map[string]pageState),
		nextTok:  1,
		overflow: make(map[string]int),
	}
	for q, ps := range fx.Queries {
		s.queries[normalizeQuery(q)] = append([]places.Place(nil), ps...)
	}
	for id, d := range fx.Details {
		s.details[id] = d
	}
	return s
}

// LoadFixtures reads a Fixtures JSON file.
func LoadFixtures(path string) (Fixtures, error) {
	var fx Fixtures
	b, err := os.ReadFile(path)
	if err != nil {
		return fx, fmt.Errorf("read fixtures: %w", err)
	}
	if err := json.Unmarshal(b, &fx); err != nil {
		return fx, fmt.Errorf("parse fixtures: %w", err)
	}
	return fx, nil
}

// RequireKey enforces that requests carry key=<apiKey>. Empty disables the check.
func (s *Server) RequireKey(apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = strings.TrimSpace(apiKey)
}

// FailOverQueryLimit makes the next n text searches for query return OVER_QUERY_LIMIT.
func (s *Server) FailOverQueryLimit(query string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overflow[normalizeQuery(query)] = n
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/maps/api/place/textsearch/json", s.handleTextSearch)
	mux.HandleFunc("/maps/api/place/details/json", s.handleDetails)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Server) record(r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{
		Path:      r.URL.Path,
		Query:     q.Get("query"),
		PageToken: q.Get("pagetoken"),
		PlaceID:   q.Get("place_id"),
	})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	expected := s.apiKey
	s.mu.Unlock()
	if expected == "" || r.URL.Query().Get("key") == expected {
		return true
	}
	writeJSON(w, map[string]any{
		"status":        places.StatusRequestDenied,
		"error_message": "The provided API key is invalid.",
	})
	return false
}

func (s *Server) handleTextSearch(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}

	q := r.URL.Query()
	var st pageState
	if tok := q.Get("pagetoken"); tok != "" {
		s.mu.Lock()
		found, ok := s.tokens[tok]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, map[string]any{"status": places.StatusInvalidRequest, "results": []places.Place{}})
			return
		}
		st = found
	} else {
		query := normalizeQuery(q.Get("query"))
		if query == "" {
			writeJSON(w, map[string]any{"status": places.StatusInvalidRequest, "results": []places.Place{}})
			return
		}
		st = pageState{query: query}
	}

	s.mu.Lock()
	if n := s.overflow[st.query]; n > 0 {
		s.overflow[st.query] = n - 1
		s.mu.Unlock()
		writeJSON(w, map[string]any{"status": places.StatusOverQueryLimit, "results": []places.Place{}})
		return
	}
	all := s.queries[st.query]
	end := st.offset + s.pageSize
	if end > len(all) {
		end = len(all)
	}
	page := all[st.offset:end]
	next := ""
	if end < len(all) {
		next = fmt.Sprintf("tok-%d", s.nextTok)
		s.nextTok++
		s.tokens[next] = pageState{query: st.query, offset: end}
	}
	s.mu.Unlock()

	status := places.StatusOK
	if len(all) == 0 {
		status = places.StatusZeroResults
	}
	body := map[string]any{"status": status, "results": page}
	if next != "" {
		body["next_page_token"] = next
	}
	writeJSON(w, body)
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("place_id"))
	s.mu.Lock()
	d, ok := s.details[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, map[string]any{"status": places.StatusNotFound})
		return
	}
	writeJSON(w, map[string]any{"status": places.StatusOK, "result": d})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
