package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sos-service/internal/logging"
	"sos-service/internal/models"
	"sos-service/internal/notify"
	"sos-service/internal/recipient"
	"sos-service/internal/session"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateAlert(ctx context.Context, na models.NewAlert) (models.Alert, error) {
	args := m.Called(ctx, na)
	if fn, ok := args.Get(0).(func(models.NewAlert) models.Alert); ok {
		return fn(na), args.Error(1)
	}
	return args.Get(0).(models.Alert), args.Error(1)
}

func (m *mockStore) ListAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.Alert), args.Error(1)
}

func (m *mockStore) ResolveAlert(ctx context.Context, id uuid.UUID) (models.Alert, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Alert), args.Error(1)
}

func (m *mockStore) ListDispatches(ctx context.Context, alertID uuid.UUID) ([]models.Dispatch, error) {
	args := m.Called(ctx, alertID)
	return args.Get(0).([]models.Dispatch), args.Error(1)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, p notify.Payload) error {
	return m.Called(ctx, p).Error(0)
}

type memoryLog struct {
	statuses map[uuid.UUID]string
	fail     bool
}

func (l *memoryLog) CreateDispatch(_ context.Context, _ uuid.UUID, _ string) (uuid.UUID, error) {
	if l.fail {
		return uuid.Nil, errors.New("log table missing")
	}
	id := uuid.New()
	l.statuses[id] = models.DispatchPending
	return id, nil
}

func (l *memoryLog) UpdateDispatchStatus(_ context.Context, id uuid.UUID, status, _ string) error {
	l.statuses[id] = status
	return nil
}

type stubProfiles struct {
	profile models.Profile
	err     error
}

func (p stubProfiles) GetProfile(context.Context, string) (models.Profile, error) {
	return p.profile, p.err
}

type recordingPublisher struct {
	published []models.Alert
}

func (p *recordingPublisher) PublishAlert(_ context.Context, a models.Alert) error {
	p.published = append(p.published, a)
	return errors.New("broker down")
}

func str(s string) *string { return &s }

func aliceSession() *session.Context {
	return &session.Context{
		User:    models.User{ID: "u1", Email: "alice@campus.edu"},
		Profile: &models.Profile{ID: "u1", FullName: str("Alice Smith")},
		Role:    models.RoleStudent,
	}
}

func persisted(na models.NewAlert) models.Alert {
	return models.Alert{
		ID:          uuid.New(),
		UserID:      na.UserID,
		LocationLat: na.LocationLat,
		LocationLng: na.LocationLng,
		CreatedAt:   time.Now().UTC(),
	}
}

type fixture struct {
	store      *mockStore
	dispatcher *mockDispatcher
	log        *memoryLog
	svc        *Service
}

func newFixture(profiles ProfileReader, pub Publisher) *fixture {
	f := &fixture{
		store:      &mockStore{},
		dispatcher: &mockDispatcher{},
		log:        &memoryLog{statuses: map[uuid.UUID]string{}},
	}
	f.svc = New(Deps{
		Store:       f.store,
		Profiles:    profiles,
		DispatchLog: f.log,
		Publisher:   pub,
		Dispatcher:  f.dispatcher,
		Policy:      recipient.NewDomainAllowList("gmail.com"),
		Fallback:    "security@campus.edu",
		Logger:      logging.Discard(),
	})
	return f
}

func (f *fixture) expectInsert() {
	f.store.On("CreateAlert", mock.Anything, mock.Anything).Return(persisted, nil).Once()
}

func TestSubmitAlice(t *testing.T) {
	f := newFixture(nil, nil)

	var inserted models.NewAlert
	f.store.On("CreateAlert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		inserted = args.Get(1).(models.NewAlert)
	}).Return(models.Alert{ID: uuid.New(), UserID: "u1", LocationLat: floatPtr(37), LocationLng: floatPtr(-122)}, nil).Once()

	var payload notify.Payload
	f.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		payload = args.Get(1).(notify.Payload)
	}).Return(nil).Once()

	id, err := f.svc.Submit(context.Background(), aliceSession(), SubmitRequest{
		RecipientEmail: "help@gmail.com",
		Coordinates:    &models.Coordinates{Latitude: 37.0, Longitude: -122.0},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	assert.Equal(t, "u1", inserted.UserID)
	require.NotNil(t, inserted.LocationLat)
	assert.Equal(t, 37.0, *inserted.LocationLat)
	assert.Equal(t, -122.0, *inserted.LocationLng)

	assert.Equal(t, "Alice Smith", payload.UserName)
	assert.Equal(t, "alice@campus.edu", payload.UserEmail)
	assert.Equal(t, "help@gmail.com", payload.RecipientEmail)
	assert.Equal(t, "https://www.google.com/maps?q=37,-122", notify.MapURL(payload.LocationLat, payload.LocationLng))

	f.store.AssertNumberOfCalls(t, "CreateAlert", 1)
	f.dispatcher.AssertNumberOfCalls(t, "Dispatch", 1)
	for _, status := range f.log.statuses {
		assert.Equal(t, models.DispatchSent, status)
	}
}

func TestSubmitRejectsDisallowedDomain(t *testing.T) {
	f := newFixture(nil, nil)

	id, err := f.svc.Submit(context.Background(), aliceSession(), SubmitRequest{RecipientEmail: "help@yahoo.com"})

	assert.Equal(t, uuid.Nil, id)
	assert.ErrorIs(t, err, ErrInvalidRecipient)
	assert.ErrorIs(t, err, recipient.ErrDomainBlocked)
	f.store.AssertNotCalled(t, "CreateAlert", mock.Anything, mock.Anything)
	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestSubmitRequiresSession(t *testing.T) {
	f := newFixture(nil, nil)

	for _, sess := range []*session.Context{nil, {}} {
		_, err := f.svc.Submit(context.Background(), sess, SubmitRequest{RecipientEmail: "help@gmail.com"})
		assert.ErrorIs(t, err, ErrUnauthenticated)
	}
	f.store.AssertNotCalled(t, "CreateAlert", mock.Anything, mock.Anything)
	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestSubmitDispatchFailureKeepsAlert(t *testing.T) {
	f := newFixture(nil, nil)
	f.expectInsert()
	f.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()

	id, err := f.svc.Submit(context.Background(), aliceSession(), SubmitRequest{RecipientEmail: "help@gmail.com"})

	require.Error(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, id, de.AlertID)
	assert.False(t, IsRetryable(err))

	f.store.AssertNotCalled(t, "ResolveAlert", mock.Anything, mock.Anything)
	f.dispatcher.AssertNumberOfCalls(t, "Dispatch", 1)
	for _, status := range f.log.statuses {
		assert.Equal(t, models.DispatchFailed, status)
	}
}

func TestSubmitPersistenceFailureSkipsDispatch(t *testing.T) {
	f := newFixture(nil, nil)
	f.store.On("CreateAlert", mock.Anything, mock.Anything).Return(models.Alert{}, errors.New("connection refused")).Once()

	id, err := f.svc.Submit(context.Background(), aliceSession(), SubmitRequest{})

	assert.Equal(t, uuid.Nil, id)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.True(t, IsRetryable(err))
	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestSubmitWithoutCoordinatesOrRecipient(t *testing.T) {
	f := newFixture(nil, nil)

	var inserted models.NewAlert
	f.store.On("CreateAlert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		inserted = args.Get(1).(models.NewAlert)
	}).Return(models.Alert{ID: uuid.New(), UserID: "u1"}, nil).Once()
	f.dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(p notify.Payload) bool {
		return p.RecipientEmail == "security@campus.edu" && p.LocationLat == nil && p.LocationLng == nil
	})).Return(nil).Once()

	_, err := f.svc.Submit(context.Background(), aliceSession(), SubmitRequest{})
	require.NoError(t, err)

	assert.Nil(t, inserted.LocationLat)
	assert.Nil(t, inserted.LocationLng)
	f.dispatcher.AssertExpectations(t)
}

func TestSubmitUsesSessionCoordinates(t *testing.T) {
	f := newFixture(nil, nil)

	var inserted models.NewAlert
	f.store.On("CreateAlert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		inserted = args.Get(1).(models.NewAlert)
	}).Return(models.Alert{ID: uuid.New(), UserID: "u1"}, nil).Once()
	f.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil).Once()

	sess := aliceSession()
	sess.Coordinates = &models.Coordinates{Latitude: 1.5, Longitude: 2.5}
	_, err := f.svc.Submit(context.Background(), sess, SubmitRequest{})
	require.NoError(t, err)

	require.NotNil(t, inserted.LocationLat)
	assert.Equal(t, 1.5, *inserted.LocationLat)
}

func TestSubmitReporterNamePlaceholder(t *testing.T) {
	f := newFixture(stubProfiles{err: errors.New("not found")}, nil)
	f.expectInsert()
	f.dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(p notify.Payload) bool {
		return p.UserName == models.UnknownUser
	})).Return(nil).Once()

	sess := aliceSession()
	sess.Profile = nil
	_, err := f.svc.Submit(context.Background(), sess, SubmitRequest{})

	require.NoError(t, err)
	f.dispatcher.AssertExpectations(t)
}

func TestSubmitReporterNameFromDirectory(t *testing.T) {
	f := newFixture(stubProfiles{profile: models.Profile{ID: "u1", FullName: str("Alice Smith")}}, nil)
	f.expectInsert()
	f.dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(p notify.Payload) bool {
		return p.UserName == "Alice Smith"
	})).Return(nil).Once()

	sess := aliceSession()
	sess.Profile = nil
	_, err := f.svc.Submit(context.Background(), sess, SubmitRequest{})

	require.NoError(t, err)
	f.dispatcher.AssertExpectations(t)
}

func TestSubmitPublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(nil, pub)
	f.expectInsert()
	f.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := f.svc.Submit(context.Background(), aliceSession(), SubmitRequest{})

	require.NoError(t, err)
	assert.Len(t, pub.published, 1)
}

func TestSubmitIgnoresCancellation(t *testing.T) {
	f := newFixture(nil, nil)
	f.store.On("CreateAlert", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(models.Alert{ID: uuid.New(), UserID: "u1"}, nil).Once()
	f.dispatcher.On("Dispatch", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Submit(ctx, aliceSession(), SubmitRequest{})

	require.NoError(t, err)
	f.store.AssertExpectations(t)
	f.dispatcher.AssertExpectations(t)
}

func TestSubmitDispatchLogFailureIsNotFatal(t *testing.T) {
	f := newFixture(nil, nil)
	f.log.fail = true
	f.expectInsert()
	f.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := f.svc.Submit(context.Background(), aliceSession(), SubmitRequest{})
	assert.NoError(t, err)
}

func TestRecentAndResolve(t *testing.T) {
	f := newFixture(nil, nil)
	id := uuid.New()
	f.store.On("ListAlerts", mock.Anything, 10).Return([]models.Alert{{ID: id}}, nil).Once()
	f.store.On("ResolveAlert", mock.Anything, id).Return(models.Alert{ID: id, Resolved: true}, nil).Once()

	list, err := f.svc.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	a, err := f.svc.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, a.Resolved)
	f.store.AssertExpectations(t)
}

func floatPtr(f float64) *float64 { return &f }
