// Package session keeps the per-user context built at sign-in: profile, role and
// the last captured position.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"sos-service/internal/geo"
	"sos-service/internal/logging"
	"sos-service/internal/models"
)

// ErrNoSession is returned when the user has not initialised a session.
var ErrNoSession = errors.New("no active session")

// Context is one signed-in user's session. Values handed out are copies.
type Context struct {
	User        models.User         `json:"user"`
	Profile     *models.Profile     `json:"profile"`
	Role        string              `json:"role"`
	Coordinates *models.Coordinates `json:"coordinates"`
	Warnings    []string            `json:"warnings,omitempty"`
}

func (c *Context) IsAdmin() bool {
	return c != nil && c.Role == models.RoleAdmin
}

// ReporterName is the profile name, or the placeholder when there is none.
func (c *Context) ReporterName() string {
	if c == nil {
		return models.UnknownUser
	}
	return c.Profile.DisplayName()
}

func (c *Context) clone() *Context {
	out := *c
	if c.Coordinates != nil {
		coords := *c.Coordinates
		out.Coordinates = &coords
	}
	out.Warnings = append([]string(nil), c.Warnings...)
	return &out
}

// Directory reads the profile and role records owned by account management.
type Directory interface {
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	GetRole(ctx context.Context, userID string) (string, error)
}

// Store holds sessions in memory until they expire or are cleared.
type Store struct {
	cache *gocache.Cache
	dir   Directory
	ttl   time.Duration
	log   *logging.Logger
}

func NewStore(dir Directory, ttl time.Duration, logger *logging.Logger) *Store {
	return &Store{
		cache: gocache.New(ttl, ttl/2),
		dir:   dir,
		ttl:   ttl,
		log:   logger,
	}
}

// Init builds a fresh session for user. A missing profile leaves the placeholder
// name in place; a role lookup failure falls back to student.
func (s *Store) Init(ctx context.Context, user models.User) (*Context, error) {
	if user.ID == "" {
		return nil, fmt.Errorf("cannot start session without a user id")
	}
	sc := &Context{User: user, Role: models.RoleStudent}

	if p, err := s.dir.GetProfile(ctx, user.ID); err != nil {
		s.log.Warnf("Profile lookup for %s failed: %v", user.ID, err)
	} else {
		sc.Profile = &p
	}

	if role, err := s.dir.GetRole(ctx, user.ID); err != nil {
		s.log.Warnf("Role lookup for %s failed: %v", user.ID, err)
	} else if role != "" {
		sc.Role = role
	}

	s.cache.Set(user.ID, sc, s.ttl)
	s.log.Infof("Session started for %s (role %s)", user.ID, sc.Role)
	return sc.clone(), nil
}

func (s *Store) Get(userID string) (*Context, bool) {
	v, ok := s.cache.Get(userID)
	if !ok {
		return nil, false
	}
	return v.(*Context).clone(), true
}

// SetLocation records a geolocation snapshot. A failed capture clears any earlier
// position and adds the warning.
func (s *Store) SetLocation(userID string, snap geo.Snapshot) (*Context, error) {
	v, ok := s.cache.Get(userID)
	if !ok {
		return nil, ErrNoSession
	}
	sc := v.(*Context).clone()
	sc.Coordinates = snap.Coordinates
	sc.Warnings = nil
	if snap.Warning != "" {
		sc.Warnings = []string{snap.Warning}
	}
	s.cache.Set(userID, sc, s.ttl)
	return sc.clone(), nil
}

// Clear drops the session, as on sign-out.
func (s *Store) Clear(userID string) {
	s.cache.Delete(userID)
	s.log.Infof("Session cleared for %s", userID)
}
