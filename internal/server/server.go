// Package server exposes reconciliation over HTTP for the browser client.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"invoicepay/internal/allocation"
	"invoicepay/internal/invoice"
	"invoicepay/internal/ledger"
	"invoicepay/internal/logger"
	"invoicepay/pkg/services"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

const maxUploadBytes = 10 << 20

// Options configures a Server.
type Options struct {
	Allocation allocation.Options
	Ledger     ledger.Options

	// AllowedOrigins defaults to every origin.
	AllowedOrigins []string
}

// Server answers the reconciliation API.
type Server struct {
	source   services.TransactionSource
	invoices services.InvoiceSource
	engine   *allocation.Engine
	ledger   ledger.Options
	origins  []string
	log      zerolog.Logger
}

// New creates a server reading receipts from source.
func New(source services.TransactionSource, opts Options) *Server {
	log := logger.WithComponent("server")

	engineLog := logger.WithComponent("allocation-engine")
	if opts.Allocation.Logger == nil {
		opts.Allocation.Logger = &engineLog
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Server{
		source:   source,
		invoices: invoice.NewImporter(),
		engine:   allocation.NewEngine(opts.Allocation),
		ledger:   opts.Ledger,
		origins:  origins,
		log:      log,
	}
}

// Router returns the HTTP handler with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
	}))

	r.Get("/", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/transactions", s.listTransactions)
		r.Post("/transactions/filter", s.filterTransactions)

		r.Post("/invoices/upload", s.uploadInvoices)
		r.Get("/invoices/template", s.invoiceTemplate)

		r.Post("/process-payments", s.processPayments)
		r.Post("/export-payments", s.exportPayments)
	})

	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.notFound)

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	const op = "ListenAndServe"

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("Invoice Payment API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	case <-ctx.Done():
	}

	s.log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: shutdown: %w", op, err)
	}
	return nil
}

// requestLogger puts a request-scoped logger in the context and logs each
// completed request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logger.WithRequestID(middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(l.WithContext(r.Context())))

		l.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
