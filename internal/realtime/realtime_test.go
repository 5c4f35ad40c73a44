package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sos-service/internal/logging"
	"sos-service/internal/models"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func alertAt(minutes int) models.Alert {
	return models.Alert{ID: uuid.New(), UserID: "u1", CreatedAt: base.Add(time.Duration(minutes) * time.Minute)}
}

func recv(t *testing.T, ch <-chan models.Alert) models.Alert {
	t.Helper()
	select {
	case a, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return a
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return models.Alert{}
	}
}

type fakeLoader struct {
	alerts []models.Alert
	err    error
	limits []int
}

func (f *fakeLoader) ListAlerts(_ context.Context, limit int) ([]models.Alert, error) {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	out := f.alerts
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestBrokerDeliversInOrderToAll(t *testing.T) {
	b := NewBroker(8, logging.Discard())
	s1, s2 := b.Subscribe(), b.Subscribe()
	defer s1.Close()
	defer s2.Close()

	first, second := alertAt(1), alertAt(2)
	b.Publish(first)
	b.Publish(second)

	for _, s := range []*Subscription{s1, s2} {
		assert.Equal(t, first.ID, recv(t, s.Events()).ID)
		assert.Equal(t, second.ID, recv(t, s.Events()).ID)
	}
}

func TestBrokerCloseStopsDelivery(t *testing.T) {
	b := NewBroker(4, logging.Discard())
	s := b.Subscribe()
	assert.Equal(t, 1, b.Len())

	s.Close()
	s.Close()
	assert.Equal(t, 0, b.Len())

	b.Publish(alertAt(1))
	_, ok := <-s.Events()
	assert.False(t, ok)
}

func TestBrokerDropsSlowSubscriber(t *testing.T) {
	b := NewBroker(1, logging.Discard())
	slow := b.Subscribe()
	fast := b.Subscribe()
	defer fast.Close()

	b.Publish(alertAt(1))
	recv(t, fast.Events())
	b.Publish(alertAt(2))

	assert.Equal(t, 1, b.Len())
	<-slow.Events()
	_, ok := <-slow.Events()
	assert.False(t, ok)
	assert.Len(t, fast.Events(), 1)
}

func TestAlertListPrependDedupAndBound(t *testing.T) {
	l := NewAlertList(2)
	a, b, c := alertAt(1), alertAt(2), alertAt(3)

	assert.True(t, l.Prepend(a))
	assert.True(t, l.Prepend(b))
	assert.False(t, l.Prepend(a))
	assert.True(t, l.Prepend(c))

	items := l.Items()
	require.Len(t, items, 2)
	assert.Equal(t, c.ID, items[0].ID)
	assert.Equal(t, b.ID, items[1].ID)
	assert.False(t, l.Prepend(a))
}

func TestAlertListForgetsOldDroppedIDs(t *testing.T) {
	l := NewAlertList(2)
	first := alertAt(0)
	l.Prepend(first)
	for i := 1; i <= droppedMemory+2; i++ {
		l.Prepend(alertAt(i))
	}

	assert.Len(t, l.seen, 2+droppedMemory)
	assert.Len(t, l.dropped, droppedMemory)
	_, remembered := l.seen[first.ID]
	assert.False(t, remembered)
	assert.Equal(t, 2, l.Len())
}

func TestAlertListLoadMerges(t *testing.T) {
	l := NewAlertList(0)
	streamed := alertAt(10)
	l.Prepend(streamed)

	older := []models.Alert{alertAt(5), streamed, alertAt(1)}
	l.Load(older)

	items := l.Items()
	require.Len(t, items, 3)
	assert.Equal(t, streamed.ID, items[0].ID)
	assert.Equal(t, older[0].ID, items[1].ID)
	assert.Equal(t, older[2].ID, items[2].ID)
}

func TestViewersSeeNewAlertAtTop(t *testing.T) {
	b := NewBroker(8, logging.Discard())
	existing := []models.Alert{alertAt(3), alertAt(2), alertAt(1)}
	loader := &fakeLoader{alerts: existing}

	dash, err := OpenViewer(context.Background(), b, loader, 10)
	require.NoError(t, err)
	defer dash.Close()
	reports, err := OpenViewer(context.Background(), b, loader, 0)
	require.NoError(t, err)
	defer reports.Close()
	assert.Equal(t, []int{10, 0}, loader.limits)

	inserted := alertAt(4)
	b.Publish(inserted)

	for _, v := range []*Viewer{dash, reports} {
		assert.True(t, v.Apply(recv(t, v.Events())))
		items := v.Items()
		require.Len(t, items, 4)
		assert.Equal(t, inserted.ID, items[0].ID)
	}
}

func TestViewerDashboardBound(t *testing.T) {
	b := NewBroker(8, logging.Discard())
	var existing []models.Alert
	for i := 10; i > 0; i-- {
		existing = append(existing, alertAt(i))
	}
	v, err := OpenViewer(context.Background(), b, &fakeLoader{alerts: existing}, 10)
	require.NoError(t, err)
	defer v.Close()

	b.Publish(alertAt(11))
	v.Apply(recv(t, v.Events()))

	items := v.Items()
	assert.Len(t, items, 10)
	assert.Equal(t, existing[8].ID, items[9].ID)
}

func TestOpenViewerLoadFailureReleasesSubscription(t *testing.T) {
	b := NewBroker(8, logging.Discard())
	_, err := OpenViewer(context.Background(), b, &fakeLoader{err: errors.New("db down")}, 10)
	assert.Error(t, err)
	assert.Equal(t, 0, b.Len())
}

func TestDecodeNotification(t *testing.T) {
	payload := `{"id":"6f1c2a5e-8e7a-4a4b-9a57-3c0f7f0d2a11","user_id":"u1","location_lat":37,"location_lng":-122,` +
		`"created_at":"2024-05-01T12:00:00.123456+00:00","resolved":false,"resolved_at":null}`

	a, err := decodeNotification(payload)
	require.NoError(t, err)
	assert.Equal(t, "6f1c2a5e-8e7a-4a4b-9a57-3c0f7f0d2a11", a.ID.String())
	require.NotNil(t, a.LocationLat)
	assert.Equal(t, 37.0, *a.LocationLat)
	assert.Equal(t, 2024, a.CreatedAt.Year())
	assert.Nil(t, a.ResolvedAt)

	_, err = decodeNotification(`{"user_id":"u1"}`)
	assert.Error(t, err)
	_, err = decodeNotification(`not json`)
	assert.Error(t, err)
}
