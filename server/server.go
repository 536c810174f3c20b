// Package server exposes abundance estimation, TMM normalization and sequence
// statistics over HTTP. It is run as `gofrost serve`.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/fatih/color"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/biofrost/gofrost"
)

// MaxBody bounds the size of a request body.
const MaxBody = 256 << 20

// NewRouter returns the API routes. timeout bounds each request, including
// the EM iterations of an abundance request.
func NewRouter(timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	// logger wraps the writer so the 504 that Timeout writes after a handler
	// has already answered is dropped.
	r.Use(logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(timeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": gofrost.Version})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/abundance", AbundanceHandler)
		r.Post("/tmm", TMMHandler)
		r.Post("/seqstats", SeqStatsHandler)
	})
	return r
}

// logger logs each request through logrus.
func logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		t0 := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"request_id": chimiddleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"elapsed":    time.Since(t0).String(),
		}).Info("request")
	})
}

type cliargs struct {
	Host    string        `arg:"help:host to bind to"`
	Port    int           `arg:"-p,help:port to listen on"`
	Timeout time.Duration `arg:"-t,help:maximum time for a single request"`
}

func (c cliargs) Version() string {
	return fmt.Sprintf("serve %s", gofrost.Version)
}

// Main is run from the dispatcher
func Main() {
	cli := cliargs{Host: "localhost", Port: 8080, Timeout: 5 * time.Minute}
	p := arg.MustParse(&cli)
	if cli.Timeout <= 0 {
		p.Fail("--timeout must be positive")
	}

	addr := fmt.Sprintf("%s:%d", cli.Host, cli.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewRouter(cli.Timeout),
		ReadTimeout:  cli.Timeout,
		WriteTimeout: cli.Timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("server is shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("could not shut down cleanly: %v", err)
		}
		close(done)
	}()

	log.Printf("gofrost API listening on http://%s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		c := color.New(color.BgRed).Add(color.Bold)
		fmt.Fprintf(os.Stderr, "%s\n", c.SprintFunc()(fmt.Sprintf("ERROR: could not listen on %s: %s", addr, err)))
		os.Exit(1)
	}
	<-done
	log.Println("server stopped")
}
