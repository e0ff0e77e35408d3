// Package fakehub is an in-memory stand-in for the hosted Git REST API.
//
// Objects are stored with go-git, so blob, tree and commit shas are the
// real Git object ids. The server reproduces the behaviors gitdrop relies
// on: git data calls against a repository without commits fail with 409
// "Git Repository is empty.", unknown refs are 404, duplicate refs and
// non-fast-forward updates are 422.
package fakehub

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

type Server struct {
	mu    sync.Mutex
	repos map[string]*Repo
	mux   *http.ServeMux

	// Token, when set, is the only bearer credential accepted.
	Token string
	// HTMLBaseURL prefixes html_url values. Defaults to the request host.
	HTMLBaseURL string
	// BlobDelay is slept by every blob creation before it is stored.
	BlobDelay time.Duration

	failures []*failure
	requests []string

	blobsInFlight    atomic.Int64
	maxBlobsInFlight atomic.Int64

	now func() time.Time
}

func New() *Server {
	s := &Server{
		repos: make(map[string]*Repo),
		mux:   http.NewServeMux(),
		now:   time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /repos/{owner}/{repo}", s.withRepo(s.getRepository))

	s.mux.HandleFunc("GET /repos/{owner}/{repo}/git/ref/{ref...}", s.withRepo(s.getRef))
	s.mux.HandleFunc("POST /repos/{owner}/{repo}/git/refs", s.withRepo(s.createRef))
	s.mux.HandleFunc("PATCH /repos/{owner}/{repo}/git/refs/{ref...}", s.withRepo(s.updateRef))

	s.mux.HandleFunc("POST /repos/{owner}/{repo}/git/blobs", s.withRepo(s.createBlob))
	s.mux.HandleFunc("GET /repos/{owner}/{repo}/git/blobs/{sha}", s.withRepo(s.getBlob))
	s.mux.HandleFunc("POST /repos/{owner}/{repo}/git/trees", s.withRepo(s.createTree))
	s.mux.HandleFunc("GET /repos/{owner}/{repo}/git/trees/{sha}", s.withRepo(s.getTree))
	s.mux.HandleFunc("POST /repos/{owner}/{repo}/git/commits", s.withRepo(s.createCommit))
	s.mux.HandleFunc("GET /repos/{owner}/{repo}/git/commits/{sha}", s.withRepo(s.getCommit))

	s.mux.HandleFunc("PUT /repos/{owner}/{repo}/contents/{path...}", s.withRepo(s.putContents))
	s.mux.HandleFunc("DELETE /repos/{owner}/{repo}/contents/{path...}", s.withRepo(s.deleteContents))
}

// Failure makes matching requests fail with the given status and message.
type Failure struct {
	// Method matches any method when empty.
	Method string
	// PathContains matches any path when empty.
	PathContains string
	// Skip lets this many matching requests through before failing.
	Skip int
	// Times limits how often the failure fires. Zero means forever.
	Times int

	Status  int
	Message string
}

type failure struct {
	Failure
	seen  int
	fired int
}

func (s *Server) InjectFailure(f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{Failure: f})
}

func (s *Server) matchFailure(r *http.Request) *failure {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.failures {
		if f.Method != "" && f.Method != r.Method {
			continue
		}
		if f.PathContains != "" && !strings.Contains(r.URL.Path, f.PathContains) {
			continue
		}
		if f.seen < f.Skip {
			f.seen++
			continue
		}
		if f.Times > 0 && f.fired >= f.Times {
			continue
		}
		f.fired++
		return f
	}
	return nil
}

// Requests lists every request received as "METHOD /path".
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountRequests counts received requests with the given method whose path
// contains the given fragment.
func (s *Server) CountRequests(method, pathContains string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, req := range s.requests {
		m, p, _ := strings.Cut(req, " ")
		if m == method && strings.Contains(p, pathContains) {
			count++
		}
	}
	return count
}

// MaxConcurrentBlobs is the highest number of blob creations that were in
// flight at the same time.
func (s *Server) MaxConcurrentBlobs() int {
	return int(s.maxBlobsInFlight.Load())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	s.mu.Unlock()

	log.Debug("fakehub request", "method", r.Method, "path", r.URL.Path)

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeError(w, http.StatusUnauthorized, "Requires authentication")
		return
	}
	if s.Token != "" && token != s.Token {
		writeError(w, http.StatusUnauthorized, "Bad credentials")
		return
	}

	if f := s.matchFailure(r); f != nil {
		writeError(w, f.Status, f.Message)
		return
	}

	s.mux.ServeHTTP(w, r)
}

type handler func(w http.ResponseWriter, r *http.Request, repo *Repo)

func (s *Server) withRepo(h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repo := s.Repo(r.PathValue("owner"), r.PathValue("repo"))
		if repo == nil {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		h(w, r, repo)
	}
}

func (s *Server) htmlBase(r *http.Request) string {
	if s.HTMLBaseURL != "" {
		return strings.TrimSuffix(s.HTMLBaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("fakehub failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{
		Message:          message,
		DocumentationURL: "https://docs.github.com/rest",
	})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
