// Package identity resolves the human counterpart behind an inbound message.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/compass/internal/models"
)

// Directory is the read-only entity lookup the resolver runs against.
// Implemented by the store; the resolver itself never mutates entity state —
// entity creation only ever happens through an approved create_profile action.
type Directory interface {
	FindEntityByEmail(ctx context.Context, email string) (*models.Entity, error)
	FindEntityBySlackID(ctx context.Context, slackID string) (*models.Entity, error)
	SearchEntitiesByName(ctx context.Context, name string) ([]models.Entity, error)
}

// SenderInfo is the sender metadata extracted by a source adapter. Any field
// may be empty.
type SenderInfo struct {
	Email      string `json:"email,omitempty"`
	ChatHandle string `json:"chat_handle,omitempty"`
	Name       string `json:"name,omitempty"`
}

// Resolution is the outcome of a resolve call. Matches may hold several
// entities when only an ambiguous name match was found; callers must not
// collapse that to "pick first". ProposeCreate is set only when nothing
// matched and the sender supplied an email.
type Resolution struct {
	Matches       []models.EntityRef `json:"matches"`
	ProposeCreate bool               `json:"propose_create"`
}

// Resolver finds or proposes entities for sender metadata.
type Resolver struct {
	directory Directory
}

// NewResolver creates a resolver over the given directory.
func NewResolver(directory Directory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve applies the lookup precedence: exact email, then exact chat handle,
// then case-insensitive substring on the display name. The first non-empty
// tier wins; a name search returns every match.
func (r *Resolver) Resolve(ctx context.Context, sender SenderInfo) (Resolution, error) {
	if sender.Email != "" {
		entity, err := r.directory.FindEntityByEmail(ctx, strings.ToLower(strings.TrimSpace(sender.Email)))
		if err != nil {
			return Resolution{}, fmt.Errorf("email lookup failed: %w", err)
		}
		if entity != nil {
			return Resolution{Matches: []models.EntityRef{{ID: entity.ID, Name: entity.Name}}}, nil
		}
	}

	if sender.ChatHandle != "" {
		entity, err := r.directory.FindEntityBySlackID(ctx, sender.ChatHandle)
		if err != nil {
			return Resolution{}, fmt.Errorf("chat handle lookup failed: %w", err)
		}
		if entity != nil {
			return Resolution{Matches: []models.EntityRef{{ID: entity.ID, Name: entity.Name}}}, nil
		}
	}

	if name := strings.TrimSpace(sender.Name); name != "" {
		entities, err := r.directory.SearchEntitiesByName(ctx, name)
		if err != nil {
			return Resolution{}, fmt.Errorf("name search failed: %w", err)
		}
		if len(entities) > 0 {
			refs := make([]models.EntityRef, 0, len(entities))
			for _, e := range entities {
				refs = append(refs, models.EntityRef{ID: e.ID, Name: e.Name})
			}
			if len(refs) > 1 {
				log.Debug().
					Str("name", name).
					Int("matches", len(refs)).
					Msg("ambiguous name match, deferring disambiguation downstream")
			}
			return Resolution{Matches: refs}, nil
		}
	}

	// Nothing matched. Only an email is a strong enough identifier to
	// propose creating a new contact.
	return Resolution{ProposeCreate: sender.Email != ""}, nil
}
