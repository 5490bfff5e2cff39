package transfer

import (
	"context"
	"net/url"

	"github.com/italolelis/cedric/internal/telemetry"
)

// InstrumentedTransport wraps a Transport with telemetry.
type InstrumentedTransport struct {
	transport     Transport
	telemetry     *telemetry.Telemetry
	transportType string
}

// NewInstrumentedTransport creates a new instrumented transport.
func NewInstrumentedTransport(t Transport, tel *telemetry.Telemetry, transportType string) *InstrumentedTransport {
	return &InstrumentedTransport{
		transport:     t,
		telemetry:     tel,
		transportType: transportType,
	}
}

// Create creates a task with telemetry.
func (t *InstrumentedTransport) Create(ctx context.Context, source *url.URL) (Task, error) {
	var result Task

	var err error

	instrumentedErr := t.telemetry.InstrumentTransportOperation(ctx, t.transportType, "create_task", func(ctx context.Context) error {
		result, err = t.transport.Create(ctx, source)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// Events returns the events of the wrapped transport.
func (t *InstrumentedTransport) Events() <-chan Event {
	return t.transport.Events()
}
