package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/luckylove/server/internal/model"
)

type QuestionStore struct {
	db Queryer
}

func NewQuestionStore(db Queryer) *QuestionStore {
	return &QuestionStore{db: db}
}

const questionCols = `id, couple_id, day_date, question, source, asked_by, asked_at`

func scanQuestion(scanner interface{ Scan(...any) error }) (*model.DailyQuestion, error) {
	var q model.DailyQuestion
	var askedBy sql.NullString

	if err := scanner.Scan(&q.ID, &q.CoupleID, &q.DayDate, &q.Question, &q.Source, &askedBy, &q.AskedAt); err != nil {
		return nil, err
	}
	q.AskedBy = stringPtr(askedBy)
	q.AskedAt = q.AskedAt.UTC()
	return &q, nil
}

func (s *QuestionStore) Create(ctx context.Context, coupleID, dayDate, question, source string, askedBy *string, at time.Time) (*model.DailyQuestion, error) {
	q := model.DailyQuestion{
		ID:       uuid.NewString(),
		CoupleID: coupleID,
		DayDate:  dayDate,
		Question: question,
		Source:   source,
		AskedBy:  askedBy,
		AskedAt:  at.UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO home_daily_questions (`+questionCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.CoupleID, q.DayDate, q.Question, q.Source, nullString(q.AskedBy), q.AskedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}
	return &q, nil
}

// EnsureForDay returns the latest question asked on dayDate, inserting
// question first when the day has none. The existence check and the insert
// are one statement, so concurrent callers end up with a single question.
func (s *QuestionStore) EnsureForDay(ctx context.Context, coupleID, dayDate, question string, at time.Time) (*model.DailyQuestion, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO home_daily_questions (`+questionCols+`)
		 SELECT ?, ?, ?, ?, ?, NULL, ?
		 WHERE NOT EXISTS (SELECT 1 FROM home_daily_questions WHERE couple_id = ? AND day_date = ?)`,
		uuid.NewString(), coupleID, dayDate, question, model.QuestionSourceDaily, at.UTC(),
		coupleID, dayDate,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure daily question: %w", err)
	}
	return s.ForDay(ctx, coupleID, dayDate)
}

// ForDay returns the most recent question asked on dayDate, or nil.
func (s *QuestionStore) ForDay(ctx context.Context, coupleID, dayDate string) (*model.DailyQuestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+questionCols+` FROM home_daily_questions
		 WHERE couple_id = ? AND day_date = ? ORDER BY asked_at DESC LIMIT 1`,
		coupleID, dayDate,
	)
	q, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get question for day: %w", err)
	}
	return q, nil
}

func (s *QuestionStore) GetByID(ctx context.Context, coupleID, id string) (*model.DailyQuestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+questionCols+` FROM home_daily_questions WHERE couple_id = ? AND id = ?`, coupleID, id)
	q, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

// ListRecent returns the couple's questions newest first.
func (s *QuestionStore) ListRecent(ctx context.Context, coupleID string, limit int) ([]model.DailyQuestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionCols+` FROM home_daily_questions WHERE couple_id = ? ORDER BY asked_at DESC LIMIT ?`,
		coupleID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	questions := []model.DailyQuestion{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

func (s *QuestionStore) CreateAnswer(ctx context.Context, questionID, userID, text string) (*model.DailyAnswer, error) {
	a := model.DailyAnswer{
		ID:         uuid.NewString(),
		QuestionID: questionID,
		UserID:     userID,
		AnswerText: text,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO home_daily_answers (id, question_id, user_id, answer_text, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.QuestionID, a.UserID, a.AnswerText, a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert answer: %w", err)
	}
	return &a, nil
}

// ListAnswers returns a question's answers oldest first.
func (s *QuestionStore) ListAnswers(ctx context.Context, questionID string) ([]model.DailyAnswer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question_id, user_id, answer_text, created_at FROM home_daily_answers
		 WHERE question_id = ? ORDER BY created_at ASC`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	answers := []model.DailyAnswer{}
	for rows.Next() {
		var a model.DailyAnswer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.UserID, &a.AnswerText, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
