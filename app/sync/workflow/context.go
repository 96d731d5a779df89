package workflow

import (
	"github.com/tessera-fund/vaultx/app/sync/activity"
	"github.com/tessera-fund/vaultx/pkg/temporal"
)

// Context holds dependencies for the cross-chain sync workflows.
type Context struct {
	TemporalClient  *temporal.Client
	ActivityContext *activity.Context
}
