package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"mathwise-quiz-service/internal/app"
	"mathwise-quiz-service/internal/domain"
)

const versionKey = "quiz:available:version"

// StoreCache decorates an app.QuizStore with a per-student cache of the
// available-quiz listing. Entries are JSON blobs with a jittered TTL; every
// quiz mutation bumps a version counter that is part of each cache key, so
// stale entries become unreachable and age out by TTL. Results may lag the
// wall clock by up to the TTL, which bounds how late a window edge is seen.
type StoreCache struct {
	app.QuizStore

	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewStoreCache(store app.QuizStore, client *redis.Client, ttl time.Duration) *StoreCache {
	return &StoreCache{
		QuizStore: store,
		client:    client,
		ttl:       ttl,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *StoreCache) ListAvailable(ctx context.Context, studentID string, now time.Time) ([]domain.Quiz, error) {
	key := c.key(ctx, studentID)

	if quizzes, ok := c.lookup(ctx, key); ok {
		return quizzes, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the entry.
		if quizzes, ok := c.lookup(ctx, key); ok {
			return quizzes, nil
		}
		quizzes, err := c.QuizStore.ListAvailable(ctx, studentID, now)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(quizzes); err == nil {
			_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		}
		return quizzes, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Quiz), nil
}

func (c *StoreCache) CreateQuiz(ctx context.Context, quiz *domain.Quiz, allowedStudents, allowedGroups []string) error {
	if err := c.QuizStore.CreateQuiz(ctx, quiz, allowedStudents, allowedGroups); err != nil {
		return err
	}
	c.bump(ctx)
	return nil
}

func (c *StoreCache) UpdateQuiz(ctx context.Context, quizID string, changes *app.QuizChanges) error {
	if err := c.QuizStore.UpdateQuiz(ctx, quizID, changes); err != nil {
		return err
	}
	c.bump(ctx)
	return nil
}

func (c *StoreCache) lookup(ctx context.Context, key string) ([]domain.Quiz, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var quizzes []domain.Quiz
	if err := json.Unmarshal(data, &quizzes); err != nil {
		return nil, false
	}
	return quizzes, true
}

func (c *StoreCache) key(ctx context.Context, studentID string) string {
	version, err := c.client.Get(ctx, versionKey).Result()
	if err != nil {
		version = "0"
	}
	return "quiz:available:v" + version + ":" + studentID
}

func (c *StoreCache) bump(ctx context.Context) {
	// Best effort: a failed bump only means entries live until their TTL.
	_ = c.client.Incr(ctx, versionKey).Err()
}

func (c *StoreCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
