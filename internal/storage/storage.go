package storage

import "ledgerfund/internal/model"

// SnapshotSink receives assembled proposal snapshots.
type SnapshotSink interface {
	PutSnapshot(proposals []model.ProposalRecord) error
}
