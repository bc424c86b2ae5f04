package web

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hpungsan/storysync/internal/edge"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// AdminPrefix is where the edge's own pages and endpoints live. Every other path is
// proxied.
const AdminPrefix = "/_edge"

// NewRouter mounts the admin routes under AdminPrefix and the proxy everywhere else.
func NewRouter(e *edge.Edge, version string) http.Handler {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		log.Fatalf("failed to create template sub-FS: %v", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("failed to create static sub-FS: %v", err)
	}

	h := &Handlers{
		edge:     e,
		renderer: NewRenderer(templateSub, version),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route(AdminPrefix, func(r chi.Router) {
		// The socket is exempt from the page headers.
		r.Get("/ws", e.Hub.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(securityHeaders)
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, AdminPrefix+"/stories", http.StatusFound)
			})
			r.Get("/stories", h.HandleStories)
			r.Post("/stories/{id}/delete", h.HandleDelete)
			r.Delete("/stories/{id}", h.HandleDelete)
			r.Post("/sync", h.HandleSync)
			r.Post("/pull", h.HandlePull)
			r.Get("/cache", h.HandleCache)
			r.Get("/status", h.HandleStatus)
			r.Post("/push", h.HandlePush)
			r.Handle("/static/*", http.StripPrefix(AdminPrefix+"/static/", http.FileServerFS(staticSub)))
		})
	})

	r.Handle("/*", e.Proxy)
	return r
}

// NewServer creates the HTTP server for the edge.
func NewServer(e *edge.Edge, version string) *http.Server {
	return &http.Server{
		Addr:              e.Config.Listen,
		Handler:           NewRouter(e, version),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self' https:")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run installs and activates the current version, starts the background loops and
// serves until SIGINT/SIGTERM, then shuts down gracefully.
func Run(e *edge.Edge, srv *http.Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := e.Start(ctx); err != nil {
			e.Log.Error(ctx, "lifecycle start failed", "error", err)
		}
	}()

	loops := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(loops)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Printf("storysync edge running at http://%s (admin at %s)", srv.Addr, AdminPrefix)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Printf("WARNING: Server is binding to all interfaces and may be accessible from the network")
	}

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
		stop()
	case <-ctx.Done():
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		serveErr = srv.Shutdown(shutdownCtx)
	}
	<-loops
	return serveErr
}
