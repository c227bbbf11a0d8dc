package handlers

import (
	"context"

	"github.com/chrisx599/ChatEmail/internal/batch"
	"github.com/chrisx599/ChatEmail/internal/cache"
	"github.com/chrisx599/ChatEmail/internal/storage/models"
	"github.com/chrisx599/ChatEmail/internal/storage/sqlite"
)

type EmailFetcher interface {
	FetchEmails(ctx context.Context) ([]models.Email, error)
}

type EmailStore interface {
	SaveEmails(ctx context.Context, emails []models.Email) error
	GetEmails(ctx context.Context) []models.Email
}

type BatchRunner interface {
	Run(ctx context.Context, emails []models.Email, opts ...batch.RunOption) (*models.Snapshot, error)
	Latest() *models.Snapshot
	LoadCached(ctx context.Context) (*models.Snapshot, bool)
}

type CacheAdmin interface {
	Status(ctx context.Context) cache.Status
	Clear(ctx context.Context, coll sqlite.Collection) error
	ClearAll(ctx context.Context) error
}

// currentSnapshot returns the latest batch result, reloading it from the
// local store after a restart.
func currentSnapshot(ctx context.Context, runner BatchRunner) (*models.Snapshot, bool) {
	if snap := runner.Latest(); snap != nil {
		return snap, true
	}
	return runner.LoadCached(ctx)
}
