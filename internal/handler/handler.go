package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/ieltsprep/internal/model"
	"github.com/pavelanni/ieltsprep/internal/repository"
	"github.com/pavelanni/ieltsprep/internal/session"
)

// AuthSessions stores login tokens.
type AuthSessions interface {
	CreateAuthSession(ctx context.Context, userID string) (string, error)
	GetAuthSession(ctx context.Context, token string) (*model.AuthSession, error)
	DeleteAuthSession(ctx context.Context, token string) error
}

// Importer turns an uploaded document into a question bank.
type Importer interface {
	Import(ctx context.Context, file []byte, fileName string, module model.TestModule) (model.QuestionBank, error)
}

// Config holds HTTP-layer settings.
type Config struct {
	SecureCookies  bool
	BasePath       string
	MaxUploadBytes int64
}

// Deps are the collaborators the API is served from. Importer, Grader and
// Examiner may be nil when the matching service is not configured.
type Deps struct {
	Sessions AuthSessions
	Backends *repository.Backends
	Content  *repository.ContentRepository
	Results  *repository.ResultRepository
	Users    *repository.UserRepository
	Importer Importer
	Grader   session.Grader
	Examiner session.Examiner
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	deps       Deps
	config     Config
	workspaces *workspaces
}

const defaultMaxUpload = 32 << 20

// New creates a new Handler.
func New(deps Deps, cfg Config) (*Handler, error) {
	if deps.Sessions == nil || deps.Backends == nil || deps.Content == nil || deps.Results == nil || deps.Users == nil {
		return nil, errors.New("handler: sessions, backends and repositories are required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	sessDeps := session.Deps{Tests: deps.Content, Results: deps.Results}
	return &Handler{
		deps:       deps,
		config:     cfg,
		workspaces: newWorkspaces(sessDeps, deps.Grader, deps.Examiner),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Post("/logout", h.handleLogout)
			r.Get("/me", h.handleMe)
			r.Get("/banks", h.handleListBanks)
			r.Get("/tests", h.handleListTests)
			r.Get("/results", h.handleMyResults)
			r.Get("/results/summary", h.handleMySummary)

			r.Route("/reading", func(r chi.Router) {
				r.Get("/", h.handleReadingView)
				r.Post("/select", h.handleReadingSelect)
				r.Post("/answer", h.handleReadingAnswer)
				r.Post("/passage", h.handleReadingPassage)
				r.Post("/submit", h.handleReadingSubmit)
			})
			r.Route("/writing", func(r chi.Router) {
				r.Get("/", h.handleWritingView)
				r.Post("/select", h.handleWritingSelect)
				r.Post("/start", h.handleWritingStart)
				r.Put("/essay", h.handleWritingEdit)
				r.Post("/submit", h.handleWritingSubmit)
			})
			r.Route("/speaking", func(r chi.Router) {
				r.Get("/", h.handleSpeakingView)
				r.Post("/select", h.handleSpeakingSelect)
				r.Post("/turn", h.handleSpeakingTurn)
				r.Post("/reset", h.handleSpeakingReset)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))

				r.Get("/storage", h.handleGetStorage)
				r.Put("/storage", h.handlePutStorage)
				r.Delete("/storage", h.handleDeleteStorage)
				r.Post("/banks", h.handleUploadBank)
				r.Delete("/banks/{bankID}/tests/{testID}", h.handleDeleteTest)
				r.Get("/admin/results", h.handleAllResults)
				r.Get("/admin/users", h.handleListUsers)
				r.Get("/admin/export", h.handleExport)
			})
		})
	})
}

func (h *Handler) handleListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.deps.Content.ListBanks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if model.UserFromContext(r.Context()).Role != model.UserRoleAdmin {
		for i := range banks {
			for j := range banks[i].Tests {
				banks[i].Tests[j] = redactTest(banks[i].Tests[j])
			}
		}
	}
	writeJSON(w, http.StatusOK, nonNil(banks))
}

func (h *Handler) handleListTests(w http.ResponseWriter, r *http.Request) {
	module, ok := model.ParseModule(r.URL.Query().Get("module"))
	if !ok {
		writeError(w, r, model.Invalid("unknown module %q", r.URL.Query().Get("module")))
		return
	}
	refs, err := h.deps.Content.ListTestsByModule(r.Context(), module)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for i := range refs {
		refs[i].Test = redactTest(refs[i].Test)
	}
	writeJSON(w, http.StatusOK, nonNil(refs))
}

func (h *Handler) handleMyResults(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	results, err := h.deps.Results.ListResultsForUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(results))
}

func (h *Handler) handleMySummary(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sum, err := h.deps.Results.Summary(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.Invalid("malformed request body: %v", err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}
