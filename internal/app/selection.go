package app

import (
	"context"

	"mathwise-quiz-service/internal/domain"
)

// SelectionData feeds the assignment picker: every student and every group
// with its member count.
type SelectionData struct {
	Students []domain.User  `json:"students"`
	Groups   []domain.Group `json:"groups"`
}

// SelectionReader serves the assignment-picker read path.
type SelectionReader interface {
	SelectionData(ctx context.Context) (*SelectionData, error)
}
