package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/daybook-app/daybook/internal/logging"
	"github.com/daybook-app/daybook/internal/server/models"
	"github.com/daybook-app/daybook/internal/server/services"
)

// userAPI is the slice of UserService the handlers need.
type userAPI interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.User, *services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	VerifyAccessToken(tokenString string) (string, error)
}

// entryAPI is the slice of EntryService the handlers and the watch hub need.
type entryAPI interface {
	Upsert(ctx context.Context, entry *models.Entry) (int64, error)
	Get(ctx context.Context, ownerID, id string) (*models.Entry, error)
	Query(ctx context.Context, ownerID string, byServerTS bool) ([]models.Entry, error)
	Delete(ctx context.Context, ownerID, id string) error
	MarkUploaded(ctx context.Context, ownerID, id, key string) error
	PresignPut(ctx context.Context, ownerID, entryID, filename string) (string, string, error)
	PresignGet(ctx context.Context, key string) (string, error)
	DeleteBlob(ctx context.Context, key string) error
}

// Server glues the HTTP surface to the service layer.
type Server struct {
	users   userAPI
	entries entryAPI
	hub     *Hub
	log     logging.Logger
}

func NewServer(users userAPI, entries entryAPI, log logging.Logger) *Server {
	return &Server{
		users:   users,
		entries: entries,
		hub:     newHub(entries, log),
		log:     log.With("module", "httpapi"),
	}
}

// Hub exposes the watch hub so it can be wired as the entry service notifier.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", s.handlePing)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(withAuth(s.users))

			r.Get("/entries", s.handleQueryEntries)
			r.Get("/entries/watch", s.hub.serveWatch)
			r.Put("/entries/{id}", s.handleUpsertEntry)
			r.Get("/entries/{id}", s.handleGetEntry)
			r.Delete("/entries/{id}", s.handleDeleteEntry)

			r.Post("/attachments/presign-put", s.handlePresignPut)
			r.Post("/attachments/presign-get", s.handlePresignGet)
			r.Post("/attachments/{id}/uploaded", s.handleMarkUploaded)
			r.Delete("/attachments", s.handleDeleteBlob)
		})
	})

	return r
}
