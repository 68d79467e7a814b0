// Package generatortest provides an in-process fake of the generation
// service for tests.
package generatortest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/vincent-petithory/dataurl"
)

// ModelBytes is the payload served for the generated model.
var ModelBytes = []byte("glTF\x02\x00\x00\x00fake-model")

// Upload records one accepted source image.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Server is a scriptable stand-in for the generation service.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	pendingPolls  int
	views         map[string]string
	submitStatus  int
	submitError   string
	statusCode    int
	modelStatus   int
	modelError    string
	modelURL      string
	modelBlock    chan struct{}
	uploads       []Upload
	statusChecks  int
	modelRequests int
	authHeaders   []string
}

// Option configures the fake.
type Option func(*Server)

// WithPendingPolls makes the first n status checks report pending.
func WithPendingPolls(n int) Option {
	return func(s *Server) { s.pendingPolls = n }
}

// WithViews replaces the served view references.
func WithViews(views map[string]string) Option {
	return func(s *Server) { s.views = views }
}

// WithSubmitFailure rejects uploads with the given status and error body.
func WithSubmitFailure(status int, message string) Option {
	return func(s *Server) {
		s.submitStatus = status
		s.submitError = message
	}
}

// WithStatusCode forces every status check to answer with code.
func WithStatusCode(code int) Option {
	return func(s *Server) { s.statusCode = code }
}

// WithModelFailure makes model requests answer with the given status.
func WithModelFailure(status int, message string) Option {
	return func(s *Server) {
		s.modelStatus = status
		s.modelError = message
	}
}

// WithModelURL overrides the returned model reference.
func WithModelURL(url string) Option {
	return func(s *Server) { s.modelURL = url }
}

// WithModelBlock holds model requests until release is closed or the
// request is cancelled.
func WithModelBlock(release chan struct{}) Option {
	return func(s *Server) { s.modelBlock = release }
}

// New starts a fake server and registers cleanup on t.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		views: map[string]string{
			"front": dataurl.New([]byte("front-png"), "image/png").String(),
			"back":  dataurl.New([]byte("back-png"), "image/png").String(),
			"left":  dataurl.New([]byte("left-png"), "image/png").String(),
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate-views", s.handleSubmit)
	mux.HandleFunc("GET /generated-views", s.handleStatus)
	mux.HandleFunc("GET /generate-model", s.handleModel)
	mux.HandleFunc("GET /assets/model.glb", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "model/gltf-binary")
		_, _ = w.Write(ModelBytes)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Uploads returns the accepted source images in order.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// StatusChecks reports how many status checks were served.
func (s *Server) StatusChecks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusChecks
}

// ModelRequests reports how many model requests were received.
func (s *Server) ModelRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelRequests
}

// AuthHeaders returns every Authorization header seen.
func (s *Server) AuthHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authHeaders...)
}

func (s *Server) record(r *http.Request) {
	s.authHeaders = append(s.authHeaders, r.Header.Get("Authorization"))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.record(r)
	status, message := s.submitStatus, s.submitError
	s.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]string{"error": message})
		return
	}
	file, header, err := r.FormFile("source_image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No image part in the request"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, "Successfully generated character views.")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.record(r)
	s.statusChecks++
	forced := s.statusCode
	pending := s.pendingPolls > 0
	if pending {
		s.pendingPolls--
	}
	views := make(map[string]string, len(s.views))
	for k, v := range s.views {
		views[k] = v
	}
	s.mu.Unlock()

	switch {
	case forced != 0:
		writeJSON(w, forced, map[string]string{"error": "status unavailable"})
	case pending:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending", "message": "Generation in progress..."})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": "complete", "views": views})
	}
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.record(r)
	s.modelRequests++
	status, message, modelURL, block := s.modelStatus, s.modelError, s.modelURL, s.modelBlock
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		writeJSON(w, status, map[string]string{"status": "pending", "error": message})
		return
	}
	if modelURL == "" {
		modelURL = s.URL + "/assets/model.glb"
	}
	writeJSON(w, http.StatusOK, map[string]string{"model_url": modelURL})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
