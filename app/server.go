package app

import (
	"context"
	"fmt"
	"net/http"

	"resume-editor/pkg/compile"
	"resume-editor/pkg/config"
	"resume-editor/pkg/db"
	"resume-editor/pkg/edit"
	"resume-editor/pkg/handlers"
	"resume-editor/pkg/session"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
)

// Server represents the application server
type Server struct {
	router   *mux.Router
	manager  *session.Manager
	handlers *handlers.Handlers
	journal  db.IJournal
	closers  []func() error
	config   *config.Config
}

// NewServer wires the configured services, journal and session manager
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	services, closers, err := NewServices(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var journal db.IJournal = db.NopJournal{}
	if cfg.JournalEnabled {
		pj, err := db.NewPostgresJournal(cfg.GetDatabaseConnectionString(), cfg.JournalQueue)
		if err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		journal = pj
		glog.Infof("[server]session journal enabled")
	}

	manager := session.NewManager(services, session.Options{
		Debounce:       cfg.Debounce(),
		CompileTimeout: cfg.CompileTimeout(),
		EditTimeout:    cfg.EditTimeout(),
		ExportDir:      cfg.ExportDir,
		Journal:        journal,
	})

	h := handlers.NewHandlers(manager, cfg.MaxMessageBytes)

	return &Server{
		router:   NewRouter(h),
		manager:  manager,
		handlers: h,
		journal:  journal,
		closers:  closers,
		config:   cfg,
	}, nil
}

// NewServices builds the compile and edit services selected by cfg. The
// returned closers release provider clients.
func NewServices(ctx context.Context, cfg *config.Config) (session.Services, []func() error, error) {
	var services session.Services
	var closers []func() error

	switch cfg.Compiler {
	case config.CompilerPdflatex:
		services.Compiler = compile.NewLatexService(cfg.PdflatexPath, "")
	default:
		services.Compiler = compile.NewHTTPService(cfg.CompileServiceURL, nil)
	}

	switch cfg.EditProvider {
	case config.EditGemini:
		gemini, err := edit.NewGeminiService(ctx, cfg.GoogleAPIKey, cfg.GeminiModel)
		if err != nil {
			return services, nil, fmt.Errorf("edit provider: %w", err)
		}
		services.Editor = gemini
		services.Generator = gemini
		closers = append(closers, gemini.Close)
	default:
		backend := edit.NewHTTPService(cfg.EditServiceURL, nil)
		services.Editor = backend
		services.Generator = backend
	}

	glog.Infof("[server]compiler=%s edit=%s", cfg.Compiler, cfg.EditProvider)
	return services, closers, nil
}

// NewRouter registers the REST and websocket routes
func NewRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// WebSocket endpoint for live view state
	r.HandleFunc("/ws/{sessionId}", h.HandleWebSocket)

	r.HandleFunc("/api/sessions", h.CreateSession).Methods("POST")
	r.HandleFunc("/api/sessions/{id}", h.GetSession).Methods("GET")
	r.HandleFunc("/api/sessions/{id}", h.DeleteSession).Methods("DELETE")
	r.HandleFunc("/api/sessions/{id}/source", h.UpdateSource).Methods("PUT")
	r.HandleFunc("/api/sessions/{id}/recompile", h.Recompile).Methods("POST")
	r.HandleFunc("/api/sessions/{id}/instructions", h.ApplyInstruction).Methods("POST")
	r.HandleFunc("/api/sessions/{id}/export", h.Export).Methods("GET", "HEAD")
	r.HandleFunc("/api/sessions/{id}/events", h.ListEvents).Methods("GET")

	return r
}

// Handler returns the router behind the CORS layer
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.router)
}

// Manager exposes the session manager
func (s *Server) Manager() *session.Manager {
	return s.manager
}

// Start starts the server
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = s.config.GetServerAddr()
	}
	glog.Infof("Starting resume editor server on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// exportHeaders are the export response headers the frontend reads
const exportHeaders = "Content-Disposition, X-Artifact-Revision, X-Page-Count"

// corsMiddleware lets any origin call the API. Preflights are answered here,
// ahead of mux, whose method-bound routes would turn OPTIONS into a 405.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowOrigin := r.Header.Get("Origin")
		if allowOrigin == "" {
			allowOrigin = "*"
		}
		allowHeaders := r.Header.Get("Access-Control-Request-Headers")
		if allowHeaders == "" {
			allowHeaders = "Content-Type"
		}

		header := w.Header()
		header.Set("Access-Control-Allow-Origin", allowOrigin)
		header.Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, DELETE, OPTIONS")
		header.Set("Access-Control-Allow-Headers", allowHeaders)
		header.Set("Access-Control-Expose-Headers", exportHeaders)
		header.Set("Access-Control-Max-Age", "600")
		header.Add("Vary", "Origin, Access-Control-Request-Headers")

		if r.Method != http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		glog.V(2).Infof("[cors]preflight %s from %s", r.URL.Path, allowOrigin)
		w.WriteHeader(http.StatusNoContent)
	})
}

// Close discards every session and closes the journal and provider clients
func (s *Server) Close() error {
	s.manager.CloseAll()
	closeAll(s.closers)
	return s.journal.Close()
}

func closeAll(closers []func() error) {
	for _, c := range closers {
		if err := c(); err != nil {
			glog.Warningf("[server]close = %s", err)
		}
	}
}
