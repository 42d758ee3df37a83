// Package handlers exposes the mirrored collections over a small read-only
// HTTP API for the front desk.
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prudhvinik1/lansync/internal/livesync"
	"github.com/prudhvinik1/lansync/internal/models"
	"github.com/prudhvinik1/lansync/internal/services"
	"go.uber.org/zap"
)

// Mirror is the read side of services.MirrorService.
type Mirror interface {
	Collections() []string
	View(collection string) (livesync.View, error)
	Record(collection, id string) (models.Record, bool, error)
	Snapshot(ctx context.Context, collection string) (*models.Snapshot, error)
	Journal(ctx context.Context, collection string, since int64, limit int) ([]*models.JournalEntry, error)
}

type Authenticator interface {
	Login(password string) (*services.LoginResponse, error)
	VerifyToken(token string) (*services.TokenClaims, error)
}

type Deps struct {
	Mirror  Mirror
	Auth    Authenticator
	Metrics http.Handler
	Logger  *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(log))
	router.Use(instrument)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if d.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	auth := &authHandler{auth: d.Auth}
	router.Post("/auth/token", auth.issueToken)

	coll := &collectionHandler{mirror: d.Mirror}
	router.Group(func(r chi.Router) {
		r.Use(requireOperator(d.Auth))
		r.Get("/collections", coll.list)
		r.Route("/collections/{name}", func(r chi.Router) {
			r.Get("/", coll.status)
			r.Get("/records", coll.records)
			r.Get("/records/{id}", coll.record)
			r.Get("/journal", coll.journal)
		})
	})

	return router
}
