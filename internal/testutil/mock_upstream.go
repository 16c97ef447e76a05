// Package testutil provides a mock of the upstream game platform for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockGame is a game owned by a user.
type MockGame struct {
	ID          int64
	RootPlaceID int64
}

// MockPass is a game pass record. Nil pointers are omitted from the payload.
type MockPass struct {
	ID        int64
	Name      *string
	Price     *float64
	CreatorID *int64
	ForSale   *bool
}

// Pass returns a for-sale pass with a name, price and creator.
func Pass(id int64, price float64) MockPass {
	name := fmt.Sprintf("Pass %d", id)
	creator := int64(1)
	forSale := true
	return MockPass{ID: id, Name: &name, Price: &price, CreatorID: &creator, ForSale: &forSale}
}

// MockUpstream serves the user games listing, the game passes listing, the
// legacy HTML partial and the place to universe lookup from one server.
// Listings honor limit and cursor; cursors are stringified offsets.
type MockUpstream struct {
	server *httptest.Server

	mu          sync.RWMutex
	games       map[string][]MockGame
	passes      map[string][]MockPass
	placePasses map[string][]MockPass
	universes   map[string]*int64
	overrides   map[string]MockResponse
	requests    map[string]int
	userAgents  []string
}

// NewMockUpstream creates and starts a mock upstream server.
func NewMockUpstream() *MockUpstream {
	m := &MockUpstream{
		games:       make(map[string][]MockGame),
		passes:      make(map[string][]MockPass),
		placePasses: make(map[string][]MockPass),
		universes:   make(map[string]*int64),
		overrides:   make(map[string]MockResponse),
		requests:    make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/users/{id}/games", m.handleGames)
	mux.HandleFunc("GET /v1/games/{id}/game-passes", m.handlePasses)
	mux.HandleFunc("GET /games/getgamepassesinnerpartial", m.handlePartial)
	mux.HandleFunc("GET /universes/v1/places/{id}/universe", m.handleUniverse)

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests[r.URL.Path]++
		m.userAgents = append(m.userAgents, r.Header.Get("User-Agent"))
		override, ok := m.overrides[r.URL.Path]
		m.mu.Unlock()

		if ok {
			writeOverride(w, override)
			return
		}
		mux.ServeHTTP(w, r)
	}))

	return m
}

// URL returns the mock server URL. It serves every upstream host.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// SetGames sets the games owned by a user.
func (m *MockUpstream) SetGames(userID string, games ...MockGame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[userID] = games
}

// SetPasses sets the passes of a universe in the structured listing.
func (m *MockUpstream) SetPasses(universeID string, passes ...MockPass) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes[universeID] = passes
}

// SetPlacePasses sets the passes rendered by the HTML partial for a place.
func (m *MockUpstream) SetPlacePasses(placeID string, passes ...MockPass) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placePasses[placeID] = passes
}

// SetUniverse maps a place to its universe. A nil universe renders null.
func (m *MockUpstream) SetUniverse(placeID string, universeID *int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.universes[placeID] = universeID
}

// SetResponse overrides every request to path with a canned response.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[path] = resp
}

// ClearResponse removes an override.
func (m *MockUpstream) ClearResponse(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, path)
}

// RequestCount returns the number of requests served for path.
func (m *MockUpstream) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[path]
}

// TotalRequests returns the number of requests served.
func (m *MockUpstream) TotalRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.requests {
		total += n
	}
	return total
}

// UserAgents returns the User-Agent of every request, in order.
func (m *MockUpstream) UserAgents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.userAgents...)
}

// Reset clears request tracking.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = make(map[string]int)
	m.userAgents = nil
}

// Paths returns every path requested so far, sorted.
func (m *MockUpstream) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.requests))
	for p := range m.requests {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (m *MockUpstream) handleGames(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	games := m.games[r.PathValue("id")]
	m.mu.RUnlock()

	start, end, next := window(r, len(games), "limit", "cursor")
	data := make([]map[string]any, 0, end-start)
	for _, g := range games[start:end] {
		entry := map[string]any{"id": g.ID, "name": fmt.Sprintf("Game %d", g.ID)}
		if g.RootPlaceID != 0 {
			entry["rootPlace"] = map[string]any{"id": g.RootPlaceID, "type": "Place"}
		}
		data = append(data, entry)
	}
	writeListing(w, data, next)
}

func (m *MockUpstream) handlePasses(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	passes := m.passes[r.PathValue("id")]
	m.mu.RUnlock()

	start, end, next := window(r, len(passes), "limit", "cursor")
	data := make([]map[string]any, 0, end-start)
	for _, p := range passes[start:end] {
		entry := map[string]any{"id": p.ID}
		if p.Name != nil {
			entry["name"] = *p.Name
		}
		if p.Price != nil {
			entry["price"] = *p.Price
		}
		if p.ForSale != nil {
			entry["isForSale"] = *p.ForSale
		}
		if p.CreatorID != nil {
			entry["creator"] = map[string]any{"id": *p.CreatorID}
		}
		data = append(data, entry)
	}
	writeListing(w, data, next)
}

func (m *MockUpstream) handlePartial(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	passes := m.placePasses[r.URL.Query().Get("placeId")]
	m.mu.RUnlock()

	start, end, _ := window(r, len(passes), "maxRows", "startIndex")

	var b strings.Builder
	b.WriteString(`<ul class="store-cards gear-passes-container">`)
	for _, p := range passes[start:end] {
		name := ""
		if p.Name != nil {
			name = html.EscapeString(*p.Name)
		}
		fmt.Fprintf(&b, `<li class="list-item real-game-pass">`+
			`<a class="gear-passes-asset" href="https://www.roblox.com/game-pass/%d/x"></a>`+
			`<div class="store-card-name" title="%s">%s</div></li>`, p.ID, name, name)
	}
	b.WriteString(`</ul>`)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(b.String()))
}

func (m *MockUpstream) handleUniverse(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	universeID, ok := m.universes[r.PathValue("id")]
	m.mu.RUnlock()

	if !ok {
		http.Error(w, `{"errors":[{"code":1,"message":"Place not found"}]}`, http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"universeId": universeID})
}

// window resolves the [start, end) slice of a listing from the limit and
// position parameters, plus the next cursor ("" on the last page).
func window(r *http.Request, total int, limitParam, posParam string) (int, int, string) {
	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get(limitParam))
	if err != nil || limit <= 0 {
		limit = 10
	}
	start, _ := strconv.Atoi(q.Get(posParam))
	if start < 0 || start > total {
		start = total
	}
	end := min(start+limit, total)

	next := ""
	if end < total {
		next = strconv.Itoa(end)
	}
	return start, end, next
}

func writeListing(w http.ResponseWriter, data []map[string]any, next string) {
	var cursor any
	if next != "" {
		cursor = next
	}
	writeJSON(w, map[string]any{
		"previousPageCursor": nil,
		"nextPageCursor":     cursor,
		"data":               data,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func writeOverride(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":[{"code":0,"message":"InternalServerError"}]}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors":[{"code":0,"message":"Too many requests"}]}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
			"Retry-After":  strconv.Itoa(retryAfter),
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"errors":[{"code":1,"message":"The user id is invalid."}]}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
