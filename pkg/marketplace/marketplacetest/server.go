// Package marketplacetest provides an in-process marketplace backend for tests.
package marketplacetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stayhub/checkout-gateway/pkg/marketplace"
)

// Call is a request received by the fake backend
type Call struct {
	Method string
	Path   string
	Auth   string
	Body   string
}

type response struct {
	status int
	body   string
}

// Server answers marketplace API paths with canned envelopes. Paths are
// relative to the API root, e.g. "wallet/getWalletAmount".
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]response
	calls     []Call
}

// NewServer starts a fake backend that is closed when the test ends
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{responses: make(map[string]response)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// OK answers method and path with a success envelope around data
func (s *Server) OK(method, path string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	s.Respond(method, path, http.StatusOK, `{"success":true,"data":`+string(raw)+`}`)
}

// Reject answers method and path with a business failure
func (s *Server) Reject(method, path, message string) {
	raw, _ := json.Marshal(message)
	s.Respond(method, path, http.StatusOK, `{"success":false,"message":`+string(raw)+`}`)
}

// Respond sets a raw response for method and path
func (s *Server) Respond(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[method+" "+path] = response{status: status, body: body}
}

// Calls returns the requests received for path
func (s *Server) Calls(path string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// Client returns a marketplace client that forwards the caller's context
// credentials to this server
func (s *Server) Client() *marketplace.Client {
	return marketplace.NewClient(marketplace.Config{BaseURL: s.URL + "/api"}, marketplace.ContextCredentials{}, nil)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	path := strings.TrimPrefix(r.URL.Path, "/api/")

	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Method: r.Method,
		Path:   path,
		Auth:   r.Header.Get("Authorization"),
		Body:   string(body),
	})
	resp, ok := s.responses[r.Method+" "+path]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"message":"Route not found"}`))
		return
	}
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}
