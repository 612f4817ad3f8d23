package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi"
	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator"

	"mathwise-quiz-service/internal/app"
	"mathwise-quiz-service/internal/domain"
	"mathwise-quiz-service/internal/platform/logger"
)

const maxBodyBytes = 1 << 20

// Handler exposes the quiz and AI operations over HTTP.
type Handler struct {
	service   *app.QuizService
	selection app.SelectionReader
	ai        *app.AIProxy
	validate  *validator.Validate
	log       *logger.Logger
}

func NewHandler(service *app.QuizService, selection app.SelectionReader, ai *app.AIProxy, log *logger.Logger) *Handler {
	return &Handler{
		service:   service,
		selection: selection,
		ai:        ai,
		validate:  validator.New(),
		log:       log,
	}
}

// Router wires middleware and routes. CORS wraps everything so even error
// responses carry the cross-origin headers.
func (h *Handler) Router(jwtSecret string, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(requestLogger(h.log))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/quiz", func(r chi.Router) {
		r.Use(Authenticator(jwtSecret))
		r.Post("/create", h.createQuiz)
		r.Get("/", h.listQuizzes)
		r.Get("/my", h.listMine)
		r.Get("/selection-data", h.selectionData)
		r.Get("/{id}", h.getQuiz)
		r.Put("/{id}", h.updateQuiz)
	})

	r.Route("/ai", func(r chi.Router) {
		r.Use(Authenticator(jwtSecret))
		r.Post("/generate", h.aiGenerate)
		r.Post("/evaluate", h.aiEvaluate)
	})

	return r
}

func (h *Handler) createQuiz(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req createQuizRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	quiz, err := h.service.Create(r.Context(), req.toInput(), identity.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

// listQuizzes branches on the verified role: students only ever get the
// visible set resolved for them, everyone else gets the unrestricted listing
// with an optional published filter.
func (h *Handler) listQuizzes(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var (
		quizzes []domain.Quiz
		err     error
	)
	if identity.Role == domain.RoleStudent {
		quizzes, err = h.service.FindAvailableForStudent(r.Context(), identity.UserID)
	} else {
		var published *bool
		switch r.URL.Query().Get("published") {
		case "true":
			v := true
			published = &v
		case "false":
			v := false
			published = &v
		}
		quizzes, err = h.service.ListForEditor(r.Context(), published)
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if quizzes == nil {
		quizzes = []domain.Quiz{}
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	quizzes, err := h.service.ListMine(r.Context(), identity.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if quizzes == nil {
		quizzes = []domain.Quiz{}
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *Handler) selectionData(w http.ResponseWriter, r *http.Request) {
	data, err := h.selection.SelectionData(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *Handler) getQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) updateQuiz(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req updateQuizRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	quiz, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.toInput(), identity.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) aiGenerate(w http.ResponseWriter, r *http.Request) {
	h.proxyAI(w, r, h.ai.Generate)
}

func (h *Handler) aiEvaluate(w http.ResponseWriter, r *http.Request) {
	h.proxyAI(w, r, h.ai.Evaluate)
}

func (h *Handler) proxyAI(w http.ResponseWriter, r *http.Request, forward func(ctx context.Context, body json.RawMessage) (json.RawMessage, error)) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	resp, err := forward(r.Context(), body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotQuizOwner):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrAIServiceUnavailable):
		// Upstream detail is already logged; callers get a generic message.
		writeError(w, http.StatusInternalServerError, domain.ErrAIServiceUnavailable.Error())
	default:
		h.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
