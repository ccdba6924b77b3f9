package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workpact/backend/internal/models"
)

// Roles answers "what role does this user hold on this project". It is the
// engine's view of the identity/role collaborator; actor ids are always
// explicit parameters, never ambient state.
type Roles interface {
	RoleOf(ctx context.Context, userID, projectID uuid.UUID) (string, error)
}

// PGRoles resolves roles from project_members.
type PGRoles struct {
	pool *pgxpool.Pool
}

func NewPGRoles(pool *pgxpool.Pool) *PGRoles {
	return &PGRoles{pool: pool}
}

func (r *PGRoles) RoleOf(ctx context.Context, userID, projectID uuid.UUID) (string, error) {
	var role string
	err := r.pool.QueryRow(ctx, `
		SELECT role FROM project_members WHERE project_id = $1 AND user_id = $2
	`, projectID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RoleNone, nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}
