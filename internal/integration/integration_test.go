package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"mathwise-quiz-service/internal/app"
	"mathwise-quiz-service/internal/domain"
	"mathwise-quiz-service/internal/infra/postgres"
	pgmigrations "mathwise-quiz-service/internal/infra/postgres/migrations"
)

func TestQuizLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()

	pgURL, cleanup := startPostgres(t, ctx)
	defer cleanup()

	db := postgres.NewDB(pgURL)
	defer db.Close()
	applyMigrations(t, ctx, db)
	seedAccounts(t, ctx, db)

	store := postgres.NewQuizStore(db)
	service := app.NewQuizService(store)

	// Nested create: metadata, questions and assignment links in one write.
	quiz, err := service.Create(ctx, app.CreateQuizInput{
		Title:           "integration quiz",
		Difficulty:      domain.DifficultyMedium,
		IsPublished:     true,
		AllowedStudents: []string{"s2"},
		AllowedGroups:   []string{"g1"},
		Questions: []app.QuestionInput{
			{Type: domain.QuestionNumeric, Content: "2+2?", ExpectedAnswer: "4", Weight: 1, OrderIndex: 0},
			{Type: domain.QuestionMultipleChoice, Content: "Pick", Options: []string{"a", "b"}, Weight: 1, OrderIndex: 1},
		},
	}, "editor-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Visibility: s1 via group, s2 directly, s3 not at all.
	assertAvailable(t, ctx, service, "s1", quiz.ID, true)
	assertAvailable(t, ctx, service, "s2", quiz.ID, true)
	assertAvailable(t, ctx, service, "s3", quiz.ID, false)

	// Update: replace the student set, edit one question, append another.
	loaded, err := service.Get(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	title := "integration quiz v2"
	allowed := []string{"s3"}
	groups := []string{}
	if _, err := service.Update(ctx, quiz.ID, app.UpdateQuizInput{
		Title:           &title,
		AllowedStudents: &allowed,
		AllowedGroups:   &groups,
		Questions: []app.QuestionInput{
			{ID: loaded.Questions[0].ID, Type: domain.QuestionNumeric, Content: "3+3?", ExpectedAnswer: "6", Weight: 1, OrderIndex: 0},
			{Type: domain.QuestionOpen, Content: "Explain", Weight: 2, OrderIndex: 2},
		},
	}, "editor-1"); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := service.Get(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Title != "integration quiz v2" {
		t.Fatalf("title not updated: %q", got.Title)
	}
	if len(got.Questions) != 3 {
		t.Fatalf("expected 3 questions after upsert, got %d", len(got.Questions))
	}
	if got.Questions[0].Content != "3+3?" {
		t.Fatalf("existing question not updated in place: %q", got.Questions[0].Content)
	}
	if len(got.AllowedStudents) != 1 || got.AllowedStudents[0].ID != "s3" {
		t.Fatalf("allowed students not replaced wholesale: %+v", got.AllowedStudents)
	}
	if len(got.AllowedGroups) != 0 {
		t.Fatalf("allowed groups not cleared: %+v", got.AllowedGroups)
	}
	assertAvailable(t, ctx, service, "s1", quiz.ID, false)
	assertAvailable(t, ctx, service, "s3", quiz.ID, true)

	// A failing question write must roll the whole update back.
	bad := "rolled back"
	_, err = service.Update(ctx, quiz.ID, app.UpdateQuizInput{
		Title: &bad,
		Questions: []app.QuestionInput{
			{ID: "does-not-exist", Type: domain.QuestionOpen, Content: "x"},
		},
	}, "editor-1")
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
	got, err = service.Get(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("get after rollback: %v", err)
	}
	if got.Title != "integration quiz v2" {
		t.Fatalf("metadata survived a failed transaction: %q", got.Title)
	}

	// Selection data over the pgx read path.
	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pgx: %v", err)
	}
	defer pool.Close()
	data, err := postgres.NewSelectionReader(pool).SelectionData(ctx)
	if err != nil {
		t.Fatalf("selection data: %v", err)
	}
	if len(data.Students) != 3 {
		t.Fatalf("expected 3 students, got %d", len(data.Students))
	}
	if len(data.Groups) != 1 || data.Groups[0].MemberCount != 1 {
		t.Fatalf("expected one group with one member, got %+v", data.Groups)
	}
}

func assertAvailable(t *testing.T, ctx context.Context, service *app.QuizService, studentID, quizID string, want bool) {
	t.Helper()
	quizzes, err := service.FindAvailableForStudent(ctx, studentID)
	if err != nil {
		t.Fatalf("find available for %s: %v", studentID, err)
	}
	found := false
	for _, q := range quizzes {
		if q.ID == quizID {
			found = true
		}
	}
	if found != want {
		t.Fatalf("availability for %s = %v, want %v", studentID, found, want)
	}
}

func applyMigrations(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("init migrator: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func seedAccounts(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	users := []domain.User{
		{ID: "editor-1", Name: "Edna", Email: "edna@example.com", Role: domain.RoleEditor},
		{ID: "s1", Name: "Sam", Email: "sam@example.com", Role: domain.RoleStudent},
		{ID: "s2", Name: "Stella", Email: "stella@example.com", Role: domain.RoleStudent},
		{ID: "s3", Name: "Sven", Email: "sven@example.com", Role: domain.RoleStudent},
	}
	if _, err := db.NewInsert().Model(&users).Exec(ctx); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	groups := []domain.Group{{ID: "g1", Name: "Algebra 101"}}
	if _, err := db.NewInsert().Model(&groups).Exec(ctx); err != nil {
		t.Fatalf("seed groups: %v", err)
	}
	members := []domain.GroupMember{{GroupID: "g1", UserID: "s1"}}
	if _, err := db.NewInsert().Model(&members).Exec(ctx); err != nil {
		t.Fatalf("seed group members: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	url := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	cleanup := func() {
		_ = container.Terminate(ctx)
	}
	return url, cleanup
}
