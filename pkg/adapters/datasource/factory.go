package datasource

import (
	"context"
	"fmt"

	"github.com/polyquery/polyquery-engine/pkg/engineerrors"
	"github.com/polyquery/polyquery-engine/pkg/models"
)

// ConnectorFactory creates connectors from the registry. Injected into
// the engine so tests can substitute fake connectors.
type ConnectorFactory interface {
	// Connect opens a live handle for the descriptor's backend type.
	Connect(ctx context.Context, descriptor *models.ConnectionDescriptor) (Connector, error)

	// Probe tests connectivity without leaving a handle open. It is the
	// lightweight test capability: connect, ping, close.
	Probe(ctx context.Context, descriptor *models.ConnectionDescriptor) error

	// Resolve fills in the descriptor's family and dialect from the
	// registry, failing for unknown backend types.
	Resolve(dbType string) (Info, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []Info
}

type registryFactory struct{}

// NewConnectorFactory returns a factory backed by the global registry.
func NewConnectorFactory() ConnectorFactory {
	return &registryFactory{}
}

func (f *registryFactory) Connect(ctx context.Context, descriptor *models.ConnectionDescriptor) (Connector, error) {
	reg, ok := Lookup(descriptor.Type)
	if !ok {
		return nil, engineerrors.Connection(
			fmt.Sprintf("unsupported database type: %s (not compiled in)", descriptor.Type), nil)
	}

	conn, err := reg.Connect(ctx, descriptor)
	if err != nil {
		return nil, engineerrors.Connection(fmt.Sprintf("connect to %s failed", descriptor.Type), err)
	}
	return conn, nil
}

func (f *registryFactory) Probe(ctx context.Context, descriptor *models.ConnectionDescriptor) error {
	conn, err := f.Connect(ctx, descriptor)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Test(ctx); err != nil {
		return engineerrors.Connection(fmt.Sprintf("connection test for %s failed", descriptor.Type), err)
	}
	return nil
}

func (f *registryFactory) Resolve(dbType string) (Info, error) {
	reg, ok := Lookup(dbType)
	if !ok {
		return Info{}, engineerrors.Connection(fmt.Sprintf("unsupported database type: %s", dbType), nil)
	}
	return reg.Info, nil
}

func (f *registryFactory) ListTypes() []Info {
	return RegisteredTypes()
}

// Ensure registryFactory implements ConnectorFactory at compile time.
var _ ConnectorFactory = (*registryFactory)(nil)
