package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/chrisx599/ChatEmail/internal/storage/sqlite"
)

var ErrStoreUnavailable = errors.New("local store unavailable")

// unavailableStore stands in for a local store that could not be opened.
// Every read is a miss and every write fails with the open error.
type unavailableStore struct {
	cause error
}

// Unavailable returns a Store for running without local persistence.
func Unavailable(cause error) Store {
	return unavailableStore{cause: cause}
}

func (u unavailableStore) err() error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, u.cause)
}

func (u unavailableStore) Upsert(ctx context.Context, coll sqlite.Collection, row sqlite.Row) error {
	return u.err()
}

func (u unavailableStore) UpsertMany(ctx context.Context, coll sqlite.Collection, rows []sqlite.Row) error {
	return u.err()
}

func (u unavailableStore) GetAll(ctx context.Context, coll sqlite.Collection) ([]sqlite.Row, error) {
	return nil, nil
}

func (u unavailableStore) GetOne(ctx context.Context, coll sqlite.Collection, key string) (sqlite.Row, bool, error) {
	return sqlite.Row{}, false, nil
}

func (u unavailableStore) Clear(ctx context.Context, coll sqlite.Collection) error {
	return u.err()
}
