package ops

import (
	"context"

	"github.com/hpungsan/storysync/internal/reconcile"
)

// Reconciler runs one reconciliation pass.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconcile.Result, error)
}

// SyncOutput contains the result of the Sync operation.
type SyncOutput struct {
	Synced int `json:"synced"`
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// Sync runs a reconciliation pass now and reports its outcome. Credential and store
// failures are returned to the caller.
func Sync(ctx context.Context, r Reconciler) (*SyncOutput, error) {
	res, err := r.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	return &SyncOutput{Synced: res.Synced, Total: res.Total, Failed: res.Total - res.Synced}, nil
}
