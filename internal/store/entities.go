package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/compass/internal/models"
)

const entityColumns = `id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(slack_id, ''), created_at, updated_at`

func scanEntity(row pgx.Row) (*models.Entity, error) {
	var e models.Entity
	err := row.Scan(&e.ID, &e.Name, &e.Email, &e.Phone, &e.SlackID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindEntityByEmail returns the entity with an exact email match, or nil when
// none exists.
func (s *Store) FindEntityByEmail(ctx context.Context, email string) (*models.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE email = $1`, email)

	entity, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find entity by email: %w", err)
	}
	return entity, nil
}

// FindEntityBySlackID returns the entity with an exact chat-handle match, or
// nil when none exists.
func (s *Store) FindEntityBySlackID(ctx context.Context, slackID string) (*models.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE slack_id = $1`, slackID)

	entity, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find entity by slack id: %w", err)
	}
	return entity, nil
}

// SearchEntitiesByName returns every entity whose display name contains the
// given fragment, case-insensitively. Ambiguity is the caller's problem.
func (s *Store) SearchEntitiesByName(ctx context.Context, name string) ([]models.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE name ILIKE '%' || $1 || '%'`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to search entities by name: %w", err)
	}
	defer rows.Close()

	var entities []models.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, *entity)
	}

	return entities, rows.Err()
}

// CreateEntity inserts a new entity. The pipeline itself never calls this;
// it exists for the approval flow that materializes accepted create_profile
// actions.
func (s *Store) CreateEntity(ctx context.Context, entity *models.Entity) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO entities (name, email, phone, slack_id)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
		RETURNING id, created_at, updated_at
	`, entity.Name, entity.Email, entity.Phone, entity.SlackID).
		Scan(&entity.ID, &entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create entity: %w", err)
	}
	return nil
}
