package storage

import "poolScope/internal/model"

// Storage defines a sink for snapshot records.
type Storage interface {
	PutSnapshotBatch(records []model.SnapshotRecord) error
}
