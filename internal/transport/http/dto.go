package http

import (
	"encoding/json"
	"time"

	"mathwise-quiz-service/internal/app"
	"mathwise-quiz-service/internal/domain"
)

type questionPayload struct {
	ID             string          `json:"id"`
	Type           string          `json:"type" validate:"required,oneof=multiple_choice numeric short_answer open"`
	Content        string          `json:"content" validate:"required"`
	ExpectedAnswer string          `json:"expected_answer"`
	Explanation    string          `json:"explanation"`
	Tolerance      float64         `json:"tolerance"`
	Weight         float64         `json:"weight"`
	Keywords       json.RawMessage `json:"keywords"`
	Options        []string        `json:"options"`
	OrderIndex     int             `json:"order_index"`
}

type createQuizRequest struct {
	Title           string            `json:"title" validate:"required"`
	Description     string            `json:"description"`
	Difficulty      string            `json:"difficulty" validate:"required,oneof=easy medium hard"`
	IsPublished     bool              `json:"is_published"`
	StartAt         *time.Time        `json:"start_at"`
	EndAt           *time.Time        `json:"end_at"`
	FeedbackMode    string            `json:"feedback_mode" validate:"omitempty,oneof=immediate deferred none"`
	TimeLimit       *int              `json:"time_limit" validate:"omitempty,gt=0"`
	AssignToAll     bool              `json:"assign_to_all"`
	AllowedStudents []string          `json:"allowed_students"`
	AllowedGroups   []string          `json:"allowed_groups"`
	Questions       []questionPayload `json:"questions" validate:"dive"`
}

type updateQuizRequest struct {
	Title           *string           `json:"title" validate:"omitempty,min=1"`
	Description     *string           `json:"description"`
	Difficulty      *string           `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	IsPublished     *bool             `json:"is_published"`
	StartAt         *time.Time        `json:"start_at"`
	EndAt           *time.Time        `json:"end_at"`
	FeedbackMode    *string           `json:"feedback_mode" validate:"omitempty,oneof=immediate deferred none"`
	TimeLimit       *int              `json:"time_limit" validate:"omitempty,gt=0"`
	AssignToAll     *bool             `json:"assign_to_all"`
	AllowedStudents *[]string         `json:"allowed_students"`
	AllowedGroups   *[]string         `json:"allowed_groups"`
	Questions       []questionPayload `json:"questions" validate:"dive"`
}

func (r createQuizRequest) toInput() app.CreateQuizInput {
	feedback := domain.FeedbackMode(r.FeedbackMode)
	if feedback == "" {
		feedback = domain.FeedbackImmediate
	}
	return app.CreateQuizInput{
		Title:           r.Title,
		Description:     r.Description,
		Difficulty:      domain.Difficulty(r.Difficulty),
		IsPublished:     r.IsPublished,
		StartAt:         r.StartAt,
		EndAt:           r.EndAt,
		FeedbackMode:    feedback,
		TimeLimit:       r.TimeLimit,
		AssignToAll:     r.AssignToAll,
		AllowedStudents: r.AllowedStudents,
		AllowedGroups:   r.AllowedGroups,
		Questions:       toQuestionInputs(r.Questions),
	}
}

func (r updateQuizRequest) toInput() app.UpdateQuizInput {
	in := app.UpdateQuizInput{
		Title:           r.Title,
		Description:     r.Description,
		IsPublished:     r.IsPublished,
		StartAt:         r.StartAt,
		EndAt:           r.EndAt,
		TimeLimit:       r.TimeLimit,
		AssignToAll:     r.AssignToAll,
		AllowedStudents: r.AllowedStudents,
		AllowedGroups:   r.AllowedGroups,
		Questions:       toQuestionInputs(r.Questions),
	}
	if r.Difficulty != nil {
		difficulty := domain.Difficulty(*r.Difficulty)
		in.Difficulty = &difficulty
	}
	if r.FeedbackMode != nil {
		feedback := domain.FeedbackMode(*r.FeedbackMode)
		in.FeedbackMode = &feedback
	}
	return in
}

func toQuestionInputs(payloads []questionPayload) []app.QuestionInput {
	if len(payloads) == 0 {
		return nil
	}
	out := make([]app.QuestionInput, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, app.QuestionInput{
			ID:             p.ID,
			Type:           domain.QuestionType(p.Type),
			Content:        p.Content,
			ExpectedAnswer: p.ExpectedAnswer,
			Explanation:    p.Explanation,
			Tolerance:      p.Tolerance,
			Weight:         p.Weight,
			Keywords:       p.Keywords,
			Options:        p.Options,
			OrderIndex:     p.OrderIndex,
		})
	}
	return out
}
