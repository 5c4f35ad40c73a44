package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sos-service/internal/geo"
	"sos-service/internal/logging"
	"sos-service/internal/models"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(models.Profile), args.Error(1)
}

func (m *mockDirectory) GetRole(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func name(s string) *string { return &s }

func TestInitLoadsProfileAndRole(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("GetProfile", mock.Anything, "u1").Return(models.Profile{ID: "u1", FullName: name("Alice Smith")}, nil)
	dir.On("GetRole", mock.Anything, "u1").Return(models.RoleAdmin, nil)

	s := NewStore(dir, time.Hour, logging.Discard())
	sc, err := s.Init(context.Background(), models.User{ID: "u1", Email: "alice@campus.edu"})
	require.NoError(t, err)

	assert.Equal(t, "Alice Smith", sc.ReporterName())
	assert.True(t, sc.IsAdmin())

	got, ok := s.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "alice@campus.edu", got.User.Email)
	dir.AssertExpectations(t)
}

func TestInitToleratesLookupFailures(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("GetProfile", mock.Anything, "u2").Return(models.Profile{}, errors.New("not found"))
	dir.On("GetRole", mock.Anything, "u2").Return("", errors.New("db down"))

	s := NewStore(dir, time.Hour, logging.Discard())
	sc, err := s.Init(context.Background(), models.User{ID: "u2"})
	require.NoError(t, err)

	assert.Equal(t, models.UnknownUser, sc.ReporterName())
	assert.Equal(t, models.RoleStudent, sc.Role)
	assert.False(t, sc.IsAdmin())
}

func TestInitRequiresUser(t *testing.T) {
	s := NewStore(&mockDirectory{}, time.Hour, logging.Discard())
	_, err := s.Init(context.Background(), models.User{})
	assert.Error(t, err)
}

func TestSetLocation(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("GetProfile", mock.Anything, "u1").Return(models.Profile{ID: "u1"}, nil)
	dir.On("GetRole", mock.Anything, "u1").Return(models.RoleStudent, nil)
	s := NewStore(dir, time.Hour, logging.Discard())
	_, err := s.Init(context.Background(), models.User{ID: "u1"})
	require.NoError(t, err)

	sc, err := s.SetLocation("u1", geo.Snapshot{Coordinates: &models.Coordinates{Latitude: 37, Longitude: -122}})
	require.NoError(t, err)
	require.NotNil(t, sc.Coordinates)
	assert.Empty(t, sc.Warnings)

	sc, err = s.SetLocation("u1", geo.Snapshot{Warning: geo.UnavailableWarning})
	require.NoError(t, err)
	assert.Nil(t, sc.Coordinates)
	assert.Equal(t, []string{geo.UnavailableWarning}, sc.Warnings)

	_, err = s.SetLocation("nobody", geo.Snapshot{})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestGetReturnsCopy(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("GetProfile", mock.Anything, "u1").Return(models.Profile{ID: "u1"}, nil)
	dir.On("GetRole", mock.Anything, "u1").Return(models.RoleStudent, nil)
	s := NewStore(dir, time.Hour, logging.Discard())
	_, err := s.Init(context.Background(), models.User{ID: "u1"})
	require.NoError(t, err)

	sc, _ := s.Get("u1")
	sc.Role = models.RoleAdmin

	again, _ := s.Get("u1")
	assert.Equal(t, models.RoleStudent, again.Role)
}

func TestClear(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("GetProfile", mock.Anything, "u1").Return(models.Profile{ID: "u1"}, nil)
	dir.On("GetRole", mock.Anything, "u1").Return(models.RoleStudent, nil)
	s := NewStore(dir, time.Hour, logging.Discard())
	_, err := s.Init(context.Background(), models.User{ID: "u1"})
	require.NoError(t, err)

	s.Clear("u1")
	_, ok := s.Get("u1")
	assert.False(t, ok)
}
