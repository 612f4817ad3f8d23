package cli

import (
	"context"
	"time"

	"mathwise-quiz-service/internal/domain"
	"mathwise-quiz-service/internal/infra/memory"
)

// seedSampleData gives the in-memory store enough content to exercise the
// API without a database; swap in Postgres for anything real.
func seedSampleData(store *memory.QuizStore) {
	store.AddUser(domain.User{ID: "editor-1", Name: "Edna Editor", Email: "edna@example.com", Role: domain.RoleEditor})
	store.AddUser(domain.User{ID: "student-1", Name: "Sam Student", Email: "sam@example.com", Role: domain.RoleStudent})
	store.AddUser(domain.User{ID: "student-2", Name: "Stella Student", Email: "stella@example.com", Role: domain.RoleStudent})
	store.AddGroup("group-1", "Algebra 101", "student-1")

	now := time.Now()
	quiz := &domain.Quiz{
		ID:           "quiz-1",
		Title:        "Fractions warm-up",
		Description:  "Five quick questions on fractions",
		Difficulty:   domain.DifficultyEasy,
		IsPublished:  true,
		FeedbackMode: domain.FeedbackImmediate,
		AssignToAll:  false,
		CreatedBy:    "editor-1",
		CreatedAt:    now,
		UpdatedAt:    now,
		Questions: []*domain.Question{
			{
				ID:             "question-1",
				QuizID:         "quiz-1",
				Type:           domain.QuestionNumeric,
				Content:        "What is 1/2 + 1/4?",
				ExpectedAnswer: "0.75",
				Tolerance:      0.01,
				Weight:         1,
				OrderIndex:     0,
			},
		},
	}
	_ = store.CreateQuiz(context.Background(), quiz, nil, []string{"group-1"})
}
