package store

import (
	"context"

	"github.com/mverhagen/memberhub/internal/model"
)

// Store defines the local persistence interface: durable flags that must
// survive restarts (permanent dismissals) and an offline snapshot of the
// most recently synced activities so the feed renders before the network
// answers.
type Store interface {
	// === Durable flags ===

	SetFlag(ctx context.Context, key string, value bool) error
	GetFlag(ctx context.Context, key string) (value bool, present bool, err error)

	// === Offline activity snapshot ===

	SaveActivities(ctx context.Context, activities []model.Activity) error
	GetActivities(ctx context.Context, limit int) ([]model.Activity, error)

	Close() error
}
