// Package system defines the lifecycle contract every long-running
// orchestrator component (reconciler, notifier drain, bot prober,
// rate-limiter housekeeper) implements.
//
// Adapted from internal/app/system/service.go.
package system

import "context"

// Service represents a lifecycle-managed background component.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Layer describes which architectural slice a service belongs to.
type Layer string

const (
	LayerIngress Layer = "ingress"
	LayerEngine  Layer = "engine"
	LayerData    Layer = "data"
)

// Descriptor advertises a service's placement for operational tooling; it
// has no effect on runtime behavior.
type Descriptor struct {
	Name         string
	Layer        Layer
	Capabilities []string
}

// DescriptorProvider is implemented by services that want to advertise a
// Descriptor for diagnostics endpoints.
type DescriptorProvider interface {
	Descriptor() Descriptor
}
