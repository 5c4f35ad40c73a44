package realtime

import (
	"context"
	"fmt"
	"sync"

	"sos-service/internal/models"
)

// Loader fetches the newest alerts, all of them when limit <= 0.
type Loader interface {
	ListAlerts(ctx context.Context, limit int) ([]models.Alert, error)
}

// Viewer is one live view of alerts: an initial bulk load plus everything inserted after.
type Viewer struct {
	mu   sync.Mutex
	sub  *Subscription
	list *AlertList
}

// OpenViewer subscribes before loading so no insert between the two is missed.
func OpenViewer(ctx context.Context, broker *Broker, loader Loader, limit int) (*Viewer, error) {
	sub := broker.Subscribe()
	alerts, err := loader.ListAlerts(ctx, limit)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}
	list := NewAlertList(limit)
	list.Load(alerts)
	return &Viewer{sub: sub, list: list}, nil
}

// Events yields inserted alerts. Pass each one to Apply.
func (v *Viewer) Events() <-chan models.Alert {
	return v.sub.Events()
}

// Apply prepends a streamed alert and reports whether the list changed.
func (v *Viewer) Apply(a models.Alert) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.list.Prepend(a)
}

func (v *Viewer) Items() []models.Alert {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.list.Items()
}

// Close releases the subscription. Nothing is delivered afterwards.
func (v *Viewer) Close() {
	v.sub.Close()
}

// LoaderFunc adapts a plain function to Loader.
type LoaderFunc func(ctx context.Context, limit int) ([]models.Alert, error)

func (f LoaderFunc) ListAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	return f(ctx, limit)
}
