package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"mathwise-quiz-service/internal/app"
	"mathwise-quiz-service/internal/domain"
	"mathwise-quiz-service/internal/infra/memory"
)

func newTestCache(t *testing.T) (*StoreCache, *countingStore) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := memory.NewQuizStore()
	store.AddUser(domain.User{ID: "editor-1", Name: "Edna", Email: "edna@example.com", Role: domain.RoleEditor})
	store.AddUser(domain.User{ID: "s1", Name: "Sam", Email: "sam@example.com", Role: domain.RoleStudent})

	counting := &countingStore{QuizStore: store}
	return NewStoreCache(counting, client, time.Minute), counting
}

func seedQuiz(t *testing.T, store app.QuizStore, id, title string) {
	t.Helper()
	now := time.Now()
	err := store.CreateQuiz(context.Background(), &domain.Quiz{
		ID:          id,
		Title:       title,
		Difficulty:  domain.DifficultyEasy,
		IsPublished: true,
		AssignToAll: true,
		CreatedBy:   "editor-1",
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil, nil)
	if err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
}

func TestListAvailableIsCached(t *testing.T) {
	cache, counting := newTestCache(t)
	seedQuiz(t, cache, "quiz-1", "cached")

	now := time.Now()
	if _, err := cache.ListAvailable(context.Background(), "s1", now); err != nil {
		t.Fatalf("list available: %v", err)
	}
	if counting.listCalls != 1 {
		t.Fatalf("expected one store call, got %d", counting.listCalls)
	}

	quizzes, err := cache.ListAvailable(context.Background(), "s1", now)
	if err != nil {
		t.Fatalf("list available: %v", err)
	}
	if counting.listCalls != 1 {
		t.Fatalf("expected cache hit, store calls=%d", counting.listCalls)
	}
	if len(quizzes) != 1 || quizzes[0].ID != "quiz-1" {
		t.Fatalf("cached payload wrong: %+v", quizzes)
	}
}

func TestMutationInvalidatesCachedListing(t *testing.T) {
	cache, counting := newTestCache(t)
	seedQuiz(t, cache, "quiz-1", "first")

	now := time.Now()
	if _, err := cache.ListAvailable(context.Background(), "s1", now); err != nil {
		t.Fatalf("list available: %v", err)
	}

	// Creating a second quiz bumps the version, so the next read misses.
	seedQuiz(t, cache, "quiz-2", "second")

	quizzes, err := cache.ListAvailable(context.Background(), "s1", now)
	if err != nil {
		t.Fatalf("list available: %v", err)
	}
	if counting.listCalls != 2 {
		t.Fatalf("expected fresh read after mutation, store calls=%d", counting.listCalls)
	}
	if len(quizzes) != 2 {
		t.Fatalf("expected both quizzes after invalidation, got %d", len(quizzes))
	}
}

type countingStore struct {
	app.QuizStore
	listCalls int
}

func (s *countingStore) ListAvailable(ctx context.Context, studentID string, now time.Time) ([]domain.Quiz, error) {
	s.listCalls++
	return s.QuizStore.ListAvailable(ctx, studentID, now)
}
