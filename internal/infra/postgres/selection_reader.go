package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"mathwise-quiz-service/internal/app"
	"mathwise-quiz-service/internal/domain"
)

// SelectionReader serves the assignment-picker listing with raw SQL over a
// pgx pool, keeping the hot read path off the ORM.
type SelectionReader struct {
	pool *pgxpool.Pool
}

func NewSelectionReader(pool *pgxpool.Pool) *SelectionReader {
	return &SelectionReader{pool: pool}
}

func (r *SelectionReader) SelectionData(ctx context.Context) (*app.SelectionData, error) {
	data := &app.SelectionData{}

	rows, err := r.pool.Query(ctx,
		`SELECT id, name, email FROM users WHERE role = $1 ORDER BY name`, string(domain.RoleStudent))
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		data.Students = append(data.Students, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}

	groupRows, err := r.pool.Query(ctx,
		`SELECT g.id, g.name, count(gm.user_id)
		 FROM groups g
		 LEFT JOIN group_members gm ON gm.group_id = g.id
		 GROUP BY g.id, g.name
		 ORDER BY g.name`)
	if err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	defer groupRows.Close()
	for groupRows.Next() {
		var g domain.Group
		if err := groupRows.Scan(&g.ID, &g.Name, &g.MemberCount); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		data.Groups = append(data.Groups, g)
	}
	if err := groupRows.Err(); err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	return data, nil
}
