package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"mathwise-quiz-service/internal/app"
	"mathwise-quiz-service/internal/domain"
)

// NewDB opens a bun handle over the Postgres URL. The connection is lazy:
// a bad URL only surfaces on the first query, so startup never fails on an
// unreachable database.
func NewDB(url string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(url)))
	db := bun.NewDB(sqldb, pgdialect.New())
	registerModels(db)
	return db
}

func registerModels(db *bun.DB) {
	db.RegisterModel(
		(*domain.GroupMember)(nil),
		(*domain.QuizAllowedStudent)(nil),
		(*domain.QuizAllowedGroup)(nil),
	)
}

// QuizStore is the bun-backed implementation of app.QuizStore.
type QuizStore struct {
	db *bun.DB
}

func NewQuizStore(db *bun.DB) *QuizStore {
	return &QuizStore{db: db}
}

func (s *QuizStore) CreateQuiz(ctx context.Context, quiz *domain.Quiz, allowedStudents, allowedGroups []string) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(quiz).Exec(ctx); err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}
		if len(quiz.Questions) > 0 {
			if _, err := tx.NewInsert().Model(&quiz.Questions).Exec(ctx); err != nil {
				return fmt.Errorf("insert questions: %w", err)
			}
		}
		if err := insertAllowedStudents(ctx, tx, quiz.ID, allowedStudents); err != nil {
			return err
		}
		return insertAllowedGroups(ctx, tx, quiz.ID, allowedGroups)
	})
}

func (s *QuizStore) GetQuiz(ctx context.Context, id string) (*domain.Quiz, error) {
	quiz := new(domain.Quiz)
	err := s.db.NewSelect().
		Model(quiz).
		Where("q.id = ?", id).
		Relation("Questions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("order_index ASC")
		}).
		Relation("Creator", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Column("name", "email")
		}).
		Relation("AllowedStudents").
		Relation("AllowedGroups").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load quiz: %w", err)
	}
	quiz.QuestionCount = len(quiz.Questions)
	return quiz, nil
}

func (s *QuizStore) ListQuizzes(ctx context.Context, filter app.ListFilter) ([]domain.Quiz, error) {
	var quizzes []domain.Quiz
	query := s.listQuery(&quizzes)
	if filter.CreatedBy != "" {
		query = query.Where("q.created_by = ?", filter.CreatedBy)
	}
	if filter.Published != nil {
		query = query.Where("q.is_published = ?", *filter.Published)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return quizzes, nil
}

// ListAvailable evaluates the visibility predicate in SQL: published, window
// containing now (inclusive, null bounds unbounded), and assignment via
// assign-to-all, a direct allowance, or an allowed group the student is in.
func (s *QuizStore) ListAvailable(ctx context.Context, studentID string, now time.Time) ([]domain.Quiz, error) {
	var quizzes []domain.Quiz
	err := s.listQuery(&quizzes).
		Where("q.is_published = TRUE").
		Where("q.start_at IS NULL OR q.start_at <= ?", now).
		Where("q.end_at IS NULL OR q.end_at >= ?", now).
		WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				WhereOr("q.assign_to_all = TRUE").
				WhereOr("EXISTS (SELECT 1 FROM quiz_allowed_students qas WHERE qas.quiz_id = q.id AND qas.user_id = ?)", studentID).
				WhereOr("EXISTS (SELECT 1 FROM quiz_allowed_groups qag JOIN group_members gm ON gm.group_id = qag.group_id WHERE qag.quiz_id = q.id AND gm.user_id = ?)", studentID)
		}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available quizzes: %w", err)
	}
	return quizzes, nil
}

func (s *QuizStore) listQuery(quizzes *[]domain.Quiz) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(quizzes).
		ColumnExpr("q.*").
		ColumnExpr("(SELECT count(*) FROM questions qs WHERE qs.quiz_id = q.id) AS question_count").
		Relation("Creator", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Column("name", "email")
		}).
		OrderExpr("q.created_at ASC")
}

// UpdateQuiz applies the metadata write, the wholesale relation replacements
// and the question upserts in one transaction; any failure rolls the whole
// update back.
func (s *QuizStore) UpdateQuiz(ctx context.Context, quizID string, changes *app.QuizChanges) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		meta := changes.Meta
		res, err := tx.NewUpdate().
			Model(&meta).
			Column(changes.Columns...).
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update quiz: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrQuizNotFound
		}

		if changes.AllowedStudents != nil {
			if _, err := tx.NewDelete().
				Model((*domain.QuizAllowedStudent)(nil)).
				Where("quiz_id = ?", quizID).
				Exec(ctx); err != nil {
				return fmt.Errorf("clear allowed students: %w", err)
			}
			if err := insertAllowedStudents(ctx, tx, quizID, *changes.AllowedStudents); err != nil {
				return err
			}
		}
		if changes.AllowedGroups != nil {
			if _, err := tx.NewDelete().
				Model((*domain.QuizAllowedGroup)(nil)).
				Where("quiz_id = ?", quizID).
				Exec(ctx); err != nil {
				return fmt.Errorf("clear allowed groups: %w", err)
			}
			if err := insertAllowedGroups(ctx, tx, quizID, *changes.AllowedGroups); err != nil {
				return err
			}
		}

		for _, change := range changes.Questions {
			question := change.Question
			if change.IsNew {
				if _, err := tx.NewInsert().Model(&question).Exec(ctx); err != nil {
					return fmt.Errorf("insert question: %w", err)
				}
				continue
			}
			res, err := tx.NewUpdate().
				Model(&question).
				Column("type", "content", "expected_answer", "explanation", "tolerance", "weight", "keywords", "order_index").
				Where("id = ?", question.ID).
				Where("quiz_id = ?", quizID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("update question %s: %w", question.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return domain.ErrQuestionNotFound
			}
		}
		return nil
	})
}

func insertAllowedStudents(ctx context.Context, tx bun.Tx, quizID string, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	links := make([]domain.QuizAllowedStudent, 0, len(studentIDs))
	for _, id := range studentIDs {
		links = append(links, domain.QuizAllowedStudent{QuizID: quizID, UserID: id})
	}
	if _, err := tx.NewInsert().Model(&links).Exec(ctx); err != nil {
		return fmt.Errorf("insert allowed students: %w", err)
	}
	return nil
}

func insertAllowedGroups(ctx context.Context, tx bun.Tx, quizID string, groupIDs []string) error {
	if len(groupIDs) == 0 {
		return nil
	}
	links := make([]domain.QuizAllowedGroup, 0, len(groupIDs))
	for _, id := range groupIDs {
		links = append(links, domain.QuizAllowedGroup{QuizID: quizID, GroupID: id})
	}
	if _, err := tx.NewInsert().Model(&links).Exec(ctx); err != nil {
		return fmt.Errorf("insert allowed groups: %w", err)
	}
	return nil
}
