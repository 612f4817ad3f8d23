package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"mathwise-quiz-service/internal/domain"
)

// ListFilter narrows the unrestricted quiz listing.
type ListFilter struct {
	CreatedBy string
	Published *bool
}

// QuestionChange is one entry of an update's question reconciliation:
// IsNew appends the question, otherwise the id'd question is overwritten
// in place. Questions are never deleted by an update.
type QuestionChange struct {
	Question domain.Question
	IsNew    bool
}

// QuizChanges is the unit of work for the update transaction. Columns names
// the quiz metadata columns to write; a nil relation slice leaves that
// relation untouched while a non-nil one replaces the set wholesale.
type QuizChanges struct {
	Meta            domain.Quiz
	Columns         []string
	AllowedStudents *[]string
	AllowedGroups   *[]string
	Questions       []QuestionChange
}

// QuizStore abstracts the relational persistence layer. UpdateQuiz must
// apply all changes inside a single transaction.
type QuizStore interface {
	CreateQuiz(ctx context.Context, quiz *domain.Quiz, allowedStudents, allowedGroups []string) error
	GetQuiz(ctx context.Context, id string) (*domain.Quiz, error)
	ListQuizzes(ctx context.Context, filter ListFilter) ([]domain.Quiz, error)
	ListAvailable(ctx context.Context, studentID string, now time.Time) ([]domain.Quiz, error)
	UpdateQuiz(ctx context.Context, quizID string, changes *QuizChanges) error
}

// QuestionInput carries one question of a create or update payload. An empty
// ID means a new question. Options, when present, are folded into the stored
// keywords JSON under an "options" key.
type QuestionInput struct {
	ID             string
	Type           domain.QuestionType
	Content        string
	ExpectedAnswer string
	Explanation    string
	Tolerance      float64
	Weight         float64
	Keywords       json.RawMessage
	Options        []string
	OrderIndex     int
}

// CreateQuizInput is the typed create payload.
type CreateQuizInput struct {
	Title           string
	Description     string
	Difficulty      domain.Difficulty
	IsPublished     bool
	StartAt         *time.Time
	EndAt           *time.Time
	FeedbackMode    domain.FeedbackMode
	TimeLimit       *int
	AssignToAll     bool
	AllowedStudents []string
	AllowedGroups   []string
	Questions       []QuestionInput
}

// UpdateQuizInput is the typed partial-update payload. Nil pointers leave the
// field untouched, except StartAt/EndAt which are always written (absent
// values clear the bound) and the two relation slices which, when non-nil,
// replace the stored set wholesale.
type UpdateQuizInput struct {
	Title           *string
	Description     *string
	Difficulty      *domain.Difficulty
	IsPublished     *bool
	StartAt         *time.Time
	EndAt           *time.Time
	FeedbackMode    *domain.FeedbackMode
	TimeLimit       *int
	AssignToAll     *bool
	AllowedStudents *[]string
	AllowedGroups   *[]string
	Questions       []QuestionInput
}

// QuizService contains the quiz use cases: authoring, the update
// transaction and assignment resolution for students.
type QuizService struct {
	store QuizStore
	now   func() time.Time
}

func NewQuizService(store QuizStore) *QuizService {
	return NewQuizServiceWithClock(store, time.Now)
}

// NewQuizServiceWithClock allows deterministic timestamps in tests.
func NewQuizServiceWithClock(store QuizStore, now func() time.Time) *QuizService {
	return &QuizService{store: store, now: now}
}

// Create inserts a quiz with its questions and assignment links in one
// nested write and returns the created quiz with its questions.
func (s *QuizService) Create(ctx context.Context, in CreateQuizInput, creatorID string) (*domain.Quiz, error) {
	now := s.now()
	quiz := &domain.Quiz{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Description:  in.Description,
		Difficulty:   in.Difficulty,
		IsPublished:  in.IsPublished,
		StartAt:      in.StartAt,
		EndAt:        in.EndAt,
		FeedbackMode: in.FeedbackMode,
		TimeLimit:    in.TimeLimit,
		AssignToAll:  in.AssignToAll,
		CreatedBy:    creatorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, q := range in.Questions {
		quiz.Questions = append(quiz.Questions, &domain.Question{
			ID:             uuid.NewString(),
			QuizID:         quiz.ID,
			Type:           q.Type,
			Content:        q.Content,
			ExpectedAnswer: q.ExpectedAnswer,
			Explanation:    q.Explanation,
			Tolerance:      q.Tolerance,
			Weight:         q.Weight,
			Keywords:       questionKeywords(q),
			OrderIndex:     q.OrderIndex,
		})
	}
	if err := s.store.CreateQuiz(ctx, quiz, in.AllowedStudents, in.AllowedGroups); err != nil {
		return nil, err
	}
	return quiz, nil
}

// Get returns the quiz with its questions in display order and the
// creator's public identity.
func (s *QuizService) Get(ctx context.Context, id string) (*domain.Quiz, error) {
	return s.store.GetQuiz(ctx, id)
}

// ListForEditor is the unrestricted listing, optionally filtered by the
// published flag. The transport layer must never route students here.
func (s *QuizService) ListForEditor(ctx context.Context, published *bool) ([]domain.Quiz, error) {
	return s.store.ListQuizzes(ctx, ListFilter{Published: published})
}

// ListMine returns the quizzes created by the requester.
func (s *QuizService) ListMine(ctx context.Context, creatorID string) ([]domain.Quiz, error) {
	return s.store.ListQuizzes(ctx, ListFilter{CreatedBy: creatorID})
}

// FindAvailableForStudent resolves the quizzes the student may see right
// now: published, window open, and assigned to the student directly, via a
// group, or via assign-to-all.
func (s *QuizService) FindAvailableForStudent(ctx context.Context, studentID string) ([]domain.Quiz, error) {
	return s.store.ListAvailable(ctx, studentID, s.now())
}

// Update reconciles quiz metadata, assignment relations and the nested
// question list in one transaction. Only the creator may update; questions
// absent from the payload are left in place.
func (s *QuizService) Update(ctx context.Context, quizID string, in UpdateQuizInput, requesterID string) (*domain.Quiz, error) {
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.CreatedBy != requesterID {
		return nil, domain.ErrNotQuizOwner
	}

	changes := s.buildChanges(quiz, in)
	if err := s.store.UpdateQuiz(ctx, quizID, changes); err != nil {
		return nil, err
	}

	// Return metadata only; callers re-fetch the nested graph via Get.
	meta := changes.Meta
	meta.Questions = nil
	meta.AllowedStudents = nil
	meta.AllowedGroups = nil
	meta.Creator = nil
	return &meta, nil
}

func (s *QuizService) buildChanges(current *domain.Quiz, in UpdateQuizInput) *QuizChanges {
	meta := *current
	meta.Questions = nil
	meta.AllowedStudents = nil
	meta.AllowedGroups = nil
	meta.Creator = nil

	// start_at and end_at are always written: an absent value clears the
	// bound instead of leaving it untouched.
	cols := []string{"start_at", "end_at", "updated_at"}
	meta.StartAt = in.StartAt
	meta.EndAt = in.EndAt
	meta.UpdatedAt = s.now()

	if in.Title != nil {
		meta.Title = *in.Title
		cols = append(cols, "title")
	}
	if in.Description != nil {
		meta.Description = *in.Description
		cols = append(cols, "description")
	}
	if in.Difficulty != nil {
		meta.Difficulty = *in.Difficulty
		cols = append(cols, "difficulty")
	}
	if in.IsPublished != nil {
		meta.IsPublished = *in.IsPublished
		cols = append(cols, "is_published")
	}
	if in.FeedbackMode != nil {
		meta.FeedbackMode = *in.FeedbackMode
		cols = append(cols, "feedback_mode")
	}
	if in.TimeLimit != nil {
		meta.TimeLimit = in.TimeLimit
		cols = append(cols, "time_limit")
	}
	if in.AssignToAll != nil {
		meta.AssignToAll = *in.AssignToAll
		cols = append(cols, "assign_to_all")
	}

	changes := &QuizChanges{
		Meta:            meta,
		Columns:         cols,
		AllowedStudents: in.AllowedStudents,
		AllowedGroups:   in.AllowedGroups,
	}
	for _, q := range in.Questions {
		question := domain.Question{
			ID:             q.ID,
			QuizID:         current.ID,
			Type:           q.Type,
			Content:        q.Content,
			ExpectedAnswer: q.ExpectedAnswer,
			Explanation:    q.Explanation,
			Tolerance:      q.Tolerance,
			Weight:         q.Weight,
			Keywords:       questionKeywords(q),
			OrderIndex:     q.OrderIndex,
		}
		isNew := question.ID == ""
		if isNew {
			question.ID = uuid.NewString()
		}
		changes.Questions = append(changes.Questions, QuestionChange{Question: question, IsNew: isNew})
	}
	return changes
}

// questionKeywords folds selectable options into the stored keywords JSON.
// Option-bearing questions store {"options": [...], "keywords": <given>};
// everything else keeps the keywords verbatim.
func questionKeywords(in QuestionInput) json.RawMessage {
	if len(in.Options) == 0 {
		return in.Keywords
	}
	merged := map[string]json.RawMessage{}
	opts, _ := json.Marshal(in.Options)
	merged["options"] = opts
	if len(in.Keywords) > 0 {
		merged["keywords"] = in.Keywords
	}
	out, _ := json.Marshal(merged)
	return out
}
