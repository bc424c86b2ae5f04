package ops

import (
	"context"

	"github.com/hpungsan/storysync/internal/lifecycle"
)

// Installer drives the partition lifecycle.
type Installer interface {
	Install(ctx context.Context) (*lifecycle.InstallResult, error)
	Activate(ctx context.Context) (*lifecycle.ActivateResult, error)
}

// Install precaches the static manifest into this version's partition.
func Install(ctx context.Context, l Installer) (*lifecycle.InstallResult, error) {
	return l.Install(ctx)
}

// Activate evicts stale partitions and announces the version to connected contexts.
func Activate(ctx context.Context, l Installer) (*lifecycle.ActivateResult, error) {
	return l.Activate(ctx)
}
