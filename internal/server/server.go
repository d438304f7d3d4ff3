package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tilecraft/dzgen/internal/imagetool"
	"github.com/tilecraft/dzgen/internal/pyramid"
)

// Server exposes pyramid generation and the generated trees over HTTP.
type Server struct {
	startTime time.Time
	version   string
	dir       string
	tool      imagetool.Tool
}

// New creates a server rooted at dir, generating through the given backend.
func New(version, dir string, tool imagetool.Tool) *Server {
	return &Server{
		startTime: time.Now(),
		version:   version,
		dir:       dir,
		tool:      tool,
	}
}

// HealthResponse reports server liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    int       `json:"uptime"`
	Version   string    `json:"version"`
}

// GenerateRequest is the body of POST /api/v1/pyramids. Optional fields
// fall back to the generator's defaults.
type GenerateRequest struct {
	Source   string   `json:"source"`
	Name     string   `json:"name"`
	TileSize *int     `json:"tile_size,omitempty"`
	Overlap  *int     `json:"overlap,omitempty"`
	Format   *string  `json:"format,omitempty"`
	Quality  *float64 `json:"quality,omitempty"`
	Strategy *string  `json:"strategy,omitempty"`
}

// RemoveResponse reports the outcome of a pyramid removal.
type RemoveResponse struct {
	Name    string `json:"name"`
	Existed bool   `json:"existed"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Routes builds the router: the JSON API under /api/v1 and the generated
// descriptors/tiles under /pyramids/.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.GetHealth)
		r.Post("/pyramids", s.CreatePyramid)
		r.Delete("/pyramids/{name}", s.DeletePyramid)
	})

	files := http.StripPrefix("/pyramids/", http.FileServer(http.Dir(s.dir)))
	r.Get("/pyramids/*", func(w http.ResponseWriter, r *http.Request) {
		// Only descriptors and tiles are exposed, never directory
		// listings of the output tree.
		rel := path.Clean("/" + chi.URLParam(r, "*"))
		info, err := os.Stat(filepath.Join(s.dir, filepath.FromSlash(rel)))
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, ".dzi") {
			w.Header().Set("Content-Type", "application/xml")
		}
		files.ServeHTTP(w, r)
	})

	return r
}

// GetHealth implements the health check endpoint.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    int(time.Since(s.startTime).Seconds()),
		Version:   s.version,
	}
	s.writeJSON(w, http.StatusOK, response)
}

// CreatePyramid runs one generation for the requested source image.
func (s *Server) CreatePyramid(w http.ResponseWriter, r *http.Request) {
	requestID := generateRequestID()

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_JSON",
			"Invalid JSON in request body", requestID)
		return
	}

	opts, err := s.convertToOptions(&req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), requestID)
		return
	}

	if _, err := os.Stat(req.Source); err != nil {
		s.writeError(w, http.StatusBadRequest, "SOURCE_NOT_FOUND",
			fmt.Sprintf("source image %s is not readable", req.Source), requestID)
		return
	}

	gen := pyramid.New(opts, s.tool)
	result, err := gen.Generate(r.Context(), req.Source)
	if err != nil {
		var cmdErr *imagetool.CommandError
		if errors.As(err, &cmdErr) {
			s.writeError(w, http.StatusBadGateway, "BACKEND_FAILED", cmdErr.Error(), requestID)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "GENERATION_FAILED", err.Error(), requestID)
		return
	}

	w.Header().Set("X-Request-ID", requestID)
	s.writeJSON(w, http.StatusCreated, result)
}

// DeletePyramid removes a pyramid's descriptor and tile tree.
func (s *Server) DeletePyramid(w http.ResponseWriter, r *http.Request) {
	requestID := generateRequestID()

	name := chi.URLParam(r, "name")
	if err := validateName(name); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_NAME", err.Error(), requestID)
		return
	}

	gen := pyramid.New(pyramid.Options{Name: name, Dir: s.dir}, nil)
	existed, err := gen.Remove()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "REMOVE_FAILED", err.Error(), requestID)
		return
	}

	s.writeJSON(w, http.StatusOK, RemoveResponse{Name: name, Existed: existed})
}

// convertToOptions validates the request and maps it onto generator options.
func (s *Server) convertToOptions(req *GenerateRequest) (pyramid.Options, error) {
	var opts pyramid.Options

	if req.Source == "" {
		return opts, fmt.Errorf("source is required")
	}
	if err := validateName(req.Name); err != nil {
		return opts, err
	}

	opts.Name = req.Name
	opts.Dir = s.dir

	if req.Strategy != nil {
		switch pyramid.Strategy(*req.Strategy) {
		case pyramid.StrategyGrid, pyramid.StrategyOverlap:
			opts.Strategy = pyramid.Strategy(*req.Strategy)
		default:
			return opts, fmt.Errorf("strategy must be %q or %q",
				pyramid.StrategyGrid, pyramid.StrategyOverlap)
		}
	}
	if req.TileSize != nil {
		if *req.TileSize <= 0 {
			return opts, fmt.Errorf("tile_size must be positive")
		}
		opts.TileSize = *req.TileSize
	}
	if req.Overlap != nil {
		if *req.Overlap < 0 {
			return opts, fmt.Errorf("overlap must not be negative")
		}
		opts.Overlap = *req.Overlap
	}
	if req.Format != nil {
		opts.Format = *req.Format
	}
	if req.Quality != nil {
		if *req.Quality <= 0 {
			return opts, fmt.Errorf("quality must be positive")
		}
		opts.Quality = *req.Quality
	}

	return opts, nil
}

// validateName rejects names that would escape the output directory.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("name must be a plain file name, got %q", name)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	w.Header().Set("X-Request-ID", requestID)
	s.writeJSON(w, status, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: requestID,
	})
}

func generateRequestID() string {
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}
