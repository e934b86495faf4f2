// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/daladal/discord-bot/internal/model"
)

// LinkRepository persists Discord-to-Riot account links.
type LinkRepository interface {
	// GetLink loads the link owned by ownerID; errs.ErrNotFound when absent.
	GetLink(ctx context.Context, ownerID string) (*model.LinkRecord, error)
	// UpsertLink inserts or replaces the link keyed by rec.OwnerID.
	UpsertLink(ctx context.Context, rec model.LinkRecord) error
	// DeleteLink removes the link and reports whether a row existed.
	DeleteLink(ctx context.Context, ownerID string) (bool, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
