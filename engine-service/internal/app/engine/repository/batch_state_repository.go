package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const lastRunKey = "batch:last_run"

type batchStateRepository struct {
	store KeyValueStore
}

func NewBatchStateRepository(store KeyValueStore) BatchStateRepository {
	return &batchStateRepository{store: store}
}

func (r *batchStateRepository) LastRun(ctx context.Context) (*time.Time, error) {
	data, err := r.store.Get(ctx, lastRunKey)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	at, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse last batch run %q: %w", string(data), err)
	}

	return &at, nil
}

func (r *batchStateRepository) SaveLastRun(ctx context.Context, at time.Time) error {
	return r.store.Set(ctx, lastRunKey, []byte(at.Format(time.RFC3339Nano)), 0)
}
