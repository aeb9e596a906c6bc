package handler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/luckylove/server/internal/apperr"
	"github.com/luckylove/server/internal/auth"
	"github.com/luckylove/server/internal/model"
)

const questionHistoryLimit = 30

// dailyPrompts seed the day's question when nobody asked one yet.
var dailyPrompts = []string{
	"Que fue lo mejor de tu dia hoy?",
	"Cual fue el momento mas bonito que viviste con tu pareja esta semana?",
	"Que te gustaria hacer juntos este fin de semana?",
	"Que detalle pequeno te haria sentir mas querido hoy?",
	"Si pudieran viajar ahora, a donde irian y por que?",
}

type QuestionStore interface {
	Create(ctx context.Context, coupleID, dayDate, question, source string, askedBy *string, at time.Time) (*model.DailyQuestion, error)
	EnsureForDay(ctx context.Context, coupleID, dayDate, question string, at time.Time) (*model.DailyQuestion, error)
	ForDay(ctx context.Context, coupleID, dayDate string) (*model.DailyQuestion, error)
	GetByID(ctx context.Context, coupleID, id string) (*model.DailyQuestion, error)
	ListRecent(ctx context.Context, coupleID string, limit int) ([]model.DailyQuestion, error)
	CreateAnswer(ctx context.Context, questionID, userID, text string) (*model.DailyAnswer, error)
	ListAnswers(ctx context.Context, questionID string) ([]model.DailyAnswer, error)
}

type QuestionHandler struct {
	questions QuestionStore
	activity  ActivityRecorder
	logger    *slog.Logger
	now       func() time.Time
	pick      func(n int) int
}

func NewQuestionHandler(qs QuestionStore, activity ActivityRecorder, logger *slog.Logger) *QuestionHandler {
	return &QuestionHandler{
		questions: qs,
		activity:  activity,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		pick:      rand.IntN,
	}
}

func (h *QuestionHandler) today() (time.Time, string) {
	now := h.now().UTC()
	return now, now.Format(time.DateOnly)
}

// Daily handles GET /home/daily-question
func (h *QuestionHandler) Daily(w http.ResponseWriter, r *http.Request) {
	now, day := h.today()
	prompt := dailyPrompts[h.pick(len(dailyPrompts))]

	q, err := h.questions.EnsureForDay(r.Context(), auth.CoupleID(r.Context()), day, prompt, now)
	if err != nil {
		writeError(w, h.logger, apperr.Upstream("No se pudo cargar la pregunta diaria.", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"question": q})
}

// todaysQuestion loads the day's question without creating one.
func (h *QuestionHandler) todaysQuestion(ctx context.Context) (*model.DailyQuestion, error) {
	_, day := h.today()
	q, err := h.questions.ForDay(ctx, auth.CoupleID(ctx), day)
	if err != nil {
		return nil, apperr.Upstream("No se pudo cargar la pregunta diaria.", err)
	}
	if q == nil {
		return nil, apperr.NotFound("No hay pregunta diaria para hoy.")
	}
	return q, nil
}

// DailyAnswers handles GET /home/daily-question/answers
func (h *QuestionHandler) DailyAnswers(w http.ResponseWriter, r *http.Request) {
	q, err := h.todaysQuestion(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	answers, err := h.questions.ListAnswers(r.Context(), q.ID)
	if err != nil {
		writeError(w, h.logger, apperr.Upstream("No se pudieron cargar las respuestas.", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"question": q, "answers": answers})
}

type answerRequest struct {
	AnswerText string `json:"answerText"`
}

func (h *QuestionHandler) decodeAnswer(w http.ResponseWriter, r *http.Request) (string, error) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return "", err
	}
	text := strings.TrimSpace(req.AnswerText)
	if text == "" {
		return "", apperr.Validation("answerText requerida.")
	}
	return text, nil
}

func (h *QuestionHandler) answer(ctx context.Context, q *model.DailyQuestion, text string) (*model.DailyAnswer, error) {
	ac, _ := auth.FromContext(ctx)
	a, err := h.questions.CreateAnswer(ctx, q.ID, ac.UserID, text)
	if err != nil {
		return nil, apperr.Upstream("No se pudo guardar la respuesta.", err)
	}
	h.activity.Record(ctx, ac.CoupleID, ac.UserID, model.ActionAnswerDailyQuestion, "daily_answer", a.ID, "Respondio la pregunta diaria.")
	return a, nil
}

// AnswerDaily handles POST /home/daily-question/answer
func (h *QuestionHandler) AnswerDaily(w http.ResponseWriter, r *http.Request) {
	text, err := h.decodeAnswer(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	q, err := h.todaysQuestion(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	a, err := h.answer(r.Context(), q, text)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"answer": a, "question": q})
}

// Answer handles POST /home/questions/{id}/answers
func (h *QuestionHandler) Answer(w http.ResponseWriter, r *http.Request) {
	text, err := h.decodeAnswer(w, r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	q, err := h.questions.GetByID(r.Context(), auth.CoupleID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, apperr.Upstream("No se pudo cargar la pregunta.", err))
		return
	}
	if q == nil {
		writeError(w, h.logger, apperr.NotFound("Pregunta no encontrada."))
		return
	}
	a, err := h.answer(r.Context(), q, text)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"answer": a})
}

type questionRequest struct {
	Question string  `json:"question"`
	Source   *string `json:"source"`
}

// Create handles POST /home/questions
func (h *QuestionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req questionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	text := strings.TrimSpace(req.Question)
	if text == "" {
		writeError(w, h.logger, apperr.Validation("question requerida."))
		return
	}
	source := model.QuestionSourceUser
	if req.Source != nil && strings.TrimSpace(*req.Source) != "" {
		source = strings.TrimSpace(*req.Source)
	}

	now, day := h.today()
	q, err := h.questions.Create(r.Context(), ac.CoupleID, day, text, source, &ac.UserID, now)
	if err != nil {
		writeError(w, h.logger, apperr.Upstream("No se pudo crear la pregunta.", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"question": q})
}

// List handles GET /home/questions
func (h *QuestionHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.questions.ListRecent(r.Context(), auth.CoupleID(r.Context()), questionHistoryLimit)
	if err != nil {
		writeError(w, h.logger, apperr.Upstream("No se pudieron cargar las preguntas.", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
