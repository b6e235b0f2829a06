package leaderboard

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/krishanu7/leaderboard-backend/internal/apperr"
	"github.com/krishanu7/leaderboard-backend/internal/auth"
	"github.com/krishanu7/leaderboard-backend/internal/score"
)

// MaxBodySize limits the size of request bodies to 1MB
const MaxBodySize = 1 << 20

type Handler struct {
	service *Service
	logger  *zap.SugaredLogger
}

func NewHandler(service *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Routes mounts the leaderboard API under the caller's prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/games/{gameId}/submit", h.SubmitScore)
	r.Get("/games/{gameId}", h.GameLeaderboard)
	r.Get("/games/{gameId}/rank", h.UserRank)
	r.Get("/global", h.GlobalLeaderboard)
	r.Get("/players/{playerId}", h.Player)
	return r
}

type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type SubmitScoreRequest struct {
	Score    json.Number `json:"score"`
	PlayerID string      `json:"playerId"`
}

func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	var req SubmitScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, apperr.New(apperr.CodeInvalidArgument, "invalid request body"))
		return
	}
	value, err := score.ParseScore(req.Score)
	if err != nil {
		h.fail(w, err)
		return
	}

	caller, _ := auth.FromContext(r.Context())
	res, err := h.service.SubmitScore(r.Context(), caller, chi.URLParam(r, "gameId"), req.PlayerID, value)
	if err != nil {
		h.fail(w, err)
		return
	}
	status := http.StatusOK
	if res.Accepted {
		status = http.StatusCreated
	}
	h.success(w, status, res)
}

func (h *Handler) GameLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		h.fail(w, err)
		return
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		h.fail(w, err)
		return
	}
	rows, err := h.service.GameLeaderboard(r.Context(), chi.URLParam(r, "gameId"), limit, offset)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.success(w, http.StatusOK, rows)
}

func (h *Handler) UserRank(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	standing, err := h.service.UserRank(r.Context(), caller, chi.URLParam(r, "gameId"), r.URL.Query().Get("playerId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.success(w, http.StatusOK, standing)
}

func (h *Handler) GlobalLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		h.fail(w, err)
		return
	}
	rows, err := h.service.GlobalLeaderboard(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.success(w, http.StatusOK, rows)
}

func (h *Handler) Player(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Player(r.Context(), chi.URLParam(r, "playerId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.success(w, http.StatusOK, summary)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Health(r.Context()); err != nil {
		h.logger.Warnw("health check failed", "error", err)
		h.fail(w, apperr.Wrap(apperr.CodeUnavailable, "score store unavailable", err))
		return
	}
	h.success(w, http.StatusOK, map[string]string{"store": "ok"})
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.New(apperr.CodeInvalidArgument, name+" must be an integer")
	}
	return v, nil
}

func (h *Handler) success(w http.ResponseWriter, status int, data any) {
	h.write(w, status, envelope{Status: "success", Data: data})
}

// fail writes err with the status of its code. Server-side failures use the
// "error" status and hide internal detail.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := code.HTTPStatus()
	body := envelope{Status: "fail", Message: apperr.Message(err)}
	if status >= http.StatusInternalServerError {
		body.Status = "error"
		h.logger.Errorw("request failed", "code", code, "error", err)
	}
	if code == apperr.CodeUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	h.write(w, status, body)
}

func (h *Handler) write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warnw("failed to encode response", "error", err)
	}
}
