// Package providers defines the instance inventory collaborator the
// decision engine depends on. Every call is a fallible remote call; the
// engine treats any error here as a transport failure, never as a
// policy violation.
package providers

import (
	"context"

	"github.com/yairfalse/reaper/types"
)

// InstanceAPI is the narrow inventory surface the reaper needs: fetch
// one instance with live tags, write a tag, enumerate the running
// fleet, terminate. Tag writes are single atomic calls so abrupt
// cancellation can't leave an instance half-tagged.
type InstanceAPI interface {
	GetInstance(ctx context.Context, id string) (*types.Instance, error)
	CreateTags(ctx context.Context, id string, tags map[string]string) error
	ListRunning(ctx context.Context) ([]types.Instance, error)
	TerminateInstances(ctx context.Context, ids []string) error
}
