// Package archive keeps a durable copy of the merge ledger so history survives restarts
package archive

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Store archives ledger entries and replays them in append order
type Store interface {
	Archive(ctx context.Context, entry models.MergeHistory) error
	Replay(ctx context.Context) ([]models.MergeHistory, error)
	Close() error
}
