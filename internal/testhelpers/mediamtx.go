package testhelpers

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"git.netflux.io/rob/mtxdash/internal/domain"
)

// Request is a request received by FakeMediaMTX.
type Request struct {
	Method string
	Path   string
}

// FakeMediaMTX is an in-memory implementation of the MediaMTX control API,
// for testing.
type FakeMediaMTX struct {
	*httptest.Server

	mu          sync.Mutex
	live        []domain.LivePath
	confs       []domain.PathConf
	global      domain.GlobalConfig
	sessions    map[string][]map[string]any
	failures    map[string]int
	unavailable bool
	requests    []Request
	metrics     string
}

// NewFakeMediaMTX starts a new fake MediaMTX control API. The server is
// closed when the test ends.
func NewFakeMediaMTX(t testing.TB) *FakeMediaMTX {
	t.Helper()

	f := &FakeMediaMTX{
		global:   make(domain.GlobalConfig),
		sessions: make(map[string][]map[string]any),
		failures: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v3/paths/list", f.handleListPaths)
	mux.HandleFunc("GET /v3/paths/get/{name...}", f.handleGetPath)
	mux.HandleFunc("GET /v3/config/paths/list", f.handleListConfs)
	mux.HandleFunc("GET /v3/config/paths/get/{name...}", f.handleGetConf)
	mux.HandleFunc("POST /v3/config/paths/add/{name...}", f.handleAddConf)
	mux.HandleFunc("PATCH /v3/config/paths/patch/{name...}", f.handlePatchConf)
	mux.HandleFunc("DELETE /v3/config/paths/delete/{name...}", f.handleDeleteConf)
	mux.HandleFunc("GET /v3/config/global/get", f.handleGetGlobal)
	mux.HandleFunc("PATCH /v3/config/global/patch", f.handlePatchGlobal)
	mux.HandleFunc("GET /v3/{endpoint}/list", f.handleListSessions)
	mux.HandleFunc("GET /metrics", f.handleMetrics)

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, Request{Method: r.Method, Path: r.URL.Path})
		unavailable := f.unavailable
		status := f.failureFor(r)
		f.mu.Unlock()

		if unavailable {
			writeError(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		if status != 0 {
			writeError(w, status, "injected failure")
			return
		}

		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Close)

	return f
}

// failureFor must be called with the mutex held.
func (f *FakeMediaMTX) failureFor(r *http.Request) int {
	for key, status := range f.failures {
		method, prefix, _ := strings.Cut(key, " ")
		if r.Method == method && strings.HasPrefix(r.URL.Path, prefix) {
			return status
		}
	}

	return 0
}

// FailRequests makes every request with the given method and a path
// beginning with prefix fail with the given status code. A status of zero
// clears the failure.
func (f *FakeMediaMTX) FailRequests(method, prefix string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := method + " " + prefix
	if status == 0 {
		delete(f.failures, key)
		return
	}
	f.failures[key] = status
}

// SetUnavailable makes every request fail with 503 Service Unavailable.
func (f *FakeMediaMTX) SetUnavailable(unavailable bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.unavailable = unavailable
}

// AddLivePath adds or replaces a live path.
func (f *FakeMediaMTX) AddLivePath(path domain.LivePath) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.live = upsert(f.live, path, func(p domain.LivePath) string { return p.Name })
}

// AddPathConf adds or replaces a path configuration, without recording a
// request.
func (f *FakeMediaMTX) AddPathConf(conf domain.PathConf) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.confs = upsert(f.confs, conf, func(c domain.PathConf) string { return c.Name })
}

// PathConf returns the path configuration with the given name.
func (f *FakeMediaMTX) PathConf(name string) (domain.PathConf, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := slices.IndexFunc(f.confs, func(c domain.PathConf) bool { return c.Name == name })
	if i == -1 {
		return domain.PathConf{}, false
	}

	return f.confs[i], true
}

// PathConfNames returns the names of every path configuration.
func (f *FakeMediaMTX) PathConfNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.confs))
	for _, c := range f.confs {
		names = append(names, c.Name)
	}

	return names
}

// SetGlobalConfig replaces the global configuration.
func (f *FakeMediaMTX) SetGlobalConfig(cfg domain.GlobalConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.global = cfg.Clone()
}

// GlobalConfig returns the global configuration.
func (f *FakeMediaMTX) GlobalConfig() domain.GlobalConfig {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.global.Clone()
}

// AddSession adds an item to a session list endpoint, e.g. "rtmpconns".
func (f *FakeMediaMTX) AddSession(endpoint string, item map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sessions[endpoint] = append(f.sessions[endpoint], item)
}

// Requests returns every request received so far.
func (f *FakeMediaMTX) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.requests)
}

// CountRequests returns the number of requests received with the given
// method and a path beginning with prefix. An empty method matches any
// method.
func (f *FakeMediaMTX) CountRequests(method, prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int
	for _, r := range f.requests {
		if (method == "" || r.Method == method) && strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}

	return n
}

// ResetRequests clears the request log.
func (f *FakeMediaMTX) ResetRequests() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = nil
}

func (f *FakeMediaMTX) handleListPaths(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	writePage(w, r, f.live)
}

func (f *FakeMediaMTX) handleGetPath(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := r.PathValue("name")
	i := slices.IndexFunc(f.live, func(p domain.LivePath) bool { return p.Name == name })
	if i == -1 {
		writeError(w, http.StatusNotFound, "path not found")
		return
	}

	writeJSON(w, f.live[i])
}

func (f *FakeMediaMTX) handleListConfs(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	writePage(w, r, f.confs)
}

func (f *FakeMediaMTX) handleGetConf(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := r.PathValue("name")
	i := slices.IndexFunc(f.confs, func(c domain.PathConf) bool { return c.Name == name })
	if i == -1 {
		writeError(w, http.StatusNotFound, "path configuration not found")
		return
	}

	writeJSON(w, f.confs[i])
}

func (f *FakeMediaMTX) handleAddConf(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := r.PathValue("name")
	if slices.ContainsFunc(f.confs, func(c domain.PathConf) bool { return c.Name == name }) {
		writeError(w, http.StatusBadRequest, "path already exists")
		return
	}

	var conf domain.PathConf
	if err := json.NewDecoder(r.Body).Decode(&conf); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conf.Name = name
	// MediaMTX fills in defaults for every field it resolves.
	if conf.Source == nil {
		source := domain.SourcePublisher
		conf.Source = &source
	}

	f.confs = append(f.confs, conf)
}

func (f *FakeMediaMTX) handlePatchConf(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := r.PathValue("name")
	i := slices.IndexFunc(f.confs, func(c domain.PathConf) bool { return c.Name == name })
	if i == -1 {
		writeError(w, http.StatusNotFound, "path configuration not found")
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, _ := json.Marshal(f.confs[i])
	var merged map[string]any
	_ = json.Unmarshal(existing, &merged)
	maps.Copy(merged, patch)
	merged["name"] = name

	b, _ := json.Marshal(merged)
	var conf domain.PathConf
	if err := json.Unmarshal(b, &conf); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f.confs[i] = conf
}

func (f *FakeMediaMTX) handleDeleteConf(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := r.PathValue("name")
	i := slices.IndexFunc(f.confs, func(c domain.PathConf) bool { return c.Name == name })
	if i == -1 {
		writeError(w, http.StatusNotFound, "path configuration not found")
		return
	}

	f.confs = slices.Delete(f.confs, i, i+1)
}

func (f *FakeMediaMTX) handleGetGlobal(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	writeJSON(w, f.global)
}

func (f *FakeMediaMTX) handlePatchGlobal(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var patch domain.GlobalConfig
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	maps.Copy(f.global, patch)
}

func (f *FakeMediaMTX) handleListSessions(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := f.sessions[r.PathValue("endpoint")]
	if items == nil {
		items = []map[string]any{}
	}

	writePage(w, r, items)
}

// SetMetrics sets the Prometheus text exposition served on /metrics.
func (f *FakeMediaMTX) SetMetrics(exposition string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.metrics = exposition
}

func (f *FakeMediaMTX) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(f.metrics))
}

func upsert[T any](items []T, item T, key func(T) string) []T {
	i := slices.IndexFunc(items, func(x T) bool { return key(x) == key(item) })
	if i == -1 {
		return append(items, item)
	}

	items[i] = item
	return items
}

func writePage[T any](w http.ResponseWriter, r *http.Request, items []T) {
	itemsPerPage, err := strconv.Atoi(r.URL.Query().Get("itemsPerPage"))
	if err != nil || itemsPerPage <= 0 {
		itemsPerPage = 100
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	pageCount := (len(items) + itemsPerPage - 1) / itemsPerPage
	start := min(page*itemsPerPage, len(items))
	end := min(start+itemsPerPage, len(items))

	writeJSON(w, map[string]any{
		"itemCount": len(items),
		"pageCount": pageCount,
		"items":     append([]T{}, items[start:end]...),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(fmt.Sprintf("encode: %v", err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
