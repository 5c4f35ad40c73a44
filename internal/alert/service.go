// Package alert runs SOS submission: validate, persist, then notify once.
package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"sos-service/internal/logging"
	"sos-service/internal/metrics"
	"sos-service/internal/models"
	"sos-service/internal/notify"
	"sos-service/internal/recipient"
	"sos-service/internal/session"
)

// Store persists alerts.
type Store interface {
	CreateAlert(ctx context.Context, na models.NewAlert) (models.Alert, error)
	ListAlerts(ctx context.Context, limit int) ([]models.Alert, error)
	ResolveAlert(ctx context.Context, id uuid.UUID) (models.Alert, error)
	ListDispatches(ctx context.Context, alertID uuid.UUID) ([]models.Dispatch, error)
}

type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
}

// DispatchLog tracks notification attempts. Writes are best effort.
type DispatchLog interface {
	CreateDispatch(ctx context.Context, alertID uuid.UUID, recipient string) (uuid.UUID, error)
	UpdateDispatchStatus(ctx context.Context, id uuid.UUID, status, lastError string) error
}

// Publisher pushes a persisted alert to an external real-time feed.
type Publisher interface {
	PublishAlert(ctx context.Context, a models.Alert) error
}

// Deps wires a Service. Profiles, DispatchLog and Publisher are optional.
type Deps struct {
	Store       Store
	Profiles    ProfileReader
	DispatchLog DispatchLog
	Publisher   Publisher
	Dispatcher  notify.Dispatcher
	Policy      recipient.Policy
	// Fallback receives the notification when the reporter names no recipient.
	Fallback string
	// Mode labels dispatch metrics.
	Mode   string
	Logger *logging.Logger
}

type Service struct {
	store      Store
	profiles   ProfileReader
	log        DispatchLog
	publisher  Publisher
	dispatcher notify.Dispatcher
	policy     recipient.Policy
	fallback   string
	mode       string
	logger     *logging.Logger
}

func New(d Deps) *Service {
	mode := d.Mode
	if mode == "" {
		mode = "direct"
	}
	return &Service{
		store:      d.Store,
		profiles:   d.Profiles,
		log:        d.DispatchLog,
		publisher:  d.Publisher,
		dispatcher: d.Dispatcher,
		policy:     d.Policy,
		fallback:   d.Fallback,
		mode:       mode,
		logger:     d.Logger,
	}
}

// SubmitRequest carries what the reporter chose. Both fields are optional.
type SubmitRequest struct {
	RecipientEmail string              `json:"recipient_email"`
	Coordinates    *models.Coordinates `json:"coordinates"`
}

// Submit records one alert and makes one notification attempt.
//
// On a dispatch failure the alert id is returned together with a *DispatchError:
// the row is kept. Submission ignores cancellation of ctx once it has started.
func (s *Service) Submit(ctx context.Context, sess *session.Context, req SubmitRequest) (uuid.UUID, error) {
	ctx = context.WithoutCancel(ctx)

	if sess == nil || sess.User.ID == "" {
		metrics.Submission(metrics.OutcomeUnauthenticated)
		return uuid.Nil, ErrUnauthenticated
	}

	to := strings.TrimSpace(req.RecipientEmail)
	if to != "" {
		if err := s.policy.Check(to); err != nil {
			metrics.Submission(metrics.OutcomeInvalid)
			s.logger.Warnf("Rejected SOS recipient %q from %s: %v", to, sess.User.ID, err)
			return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
		}
	} else {
		to = s.fallback
	}

	coords := req.Coordinates
	if coords == nil {
		coords = sess.Coordinates
	}

	a, err := s.store.CreateAlert(ctx, models.NewAlertAt(sess.User.ID, coords))
	if err != nil {
		metrics.Submission(metrics.OutcomePersistFailed)
		s.logger.Errorf("SOS alert from %s not recorded: %v", sess.User.ID, err)
		return uuid.Nil, &PersistenceError{Err: err}
	}
	s.logger.Infof("SOS alert %s recorded for %s", a.ID, sess.User.ID)

	if s.publisher != nil {
		if err := s.publisher.PublishAlert(ctx, a); err != nil {
			s.logger.Errorf("Publishing alert %s failed: %v", a.ID, err)
		}
	}

	payload := notify.Payload{
		LocationLat:    a.LocationLat,
		LocationLng:    a.LocationLng,
		UserEmail:      sess.User.Email,
		UserName:       s.reporterName(ctx, sess),
		RecipientEmail: to,
	}
	if err := s.dispatch(ctx, a.ID, payload); err != nil {
		metrics.Submission(metrics.OutcomeDispatchFailed)
		return a.ID, &DispatchError{AlertID: a.ID, Err: err}
	}

	metrics.Submission(metrics.OutcomeRecorded)
	return a.ID, nil
}

func (s *Service) dispatch(ctx context.Context, alertID uuid.UUID, p notify.Payload) error {
	logID := uuid.Nil
	if s.log != nil {
		id, err := s.log.CreateDispatch(ctx, alertID, p.RecipientEmail)
		if err != nil {
			s.logger.Errorf("CreateDispatch failed: %v", err)
		} else {
			logID = id
		}
	}

	err := s.dispatcher.Dispatch(ctx, p)
	metrics.Dispatch(s.mode, err)

	status, lastError := models.DispatchSent, ""
	if err != nil {
		status, lastError = models.DispatchFailed, err.Error()
		s.logger.Errorf("Dispatch for alert %s via %s failed: %v", alertID, s.mode, err)
	} else {
		s.logger.Infof("Dispatch for alert %s sent to %s", alertID, p.RecipientEmail)
	}
	if logID != uuid.Nil {
		if uerr := s.log.UpdateDispatchStatus(ctx, logID, status, lastError); uerr != nil {
			s.logger.Errorf("UpdateDispatchStatus failed: %v", uerr)
		}
	}
	return err
}

func (s *Service) reporterName(ctx context.Context, sess *session.Context) string {
	if sess.Profile != nil {
		return sess.ReporterName()
	}
	if s.profiles == nil {
		return models.UnknownUser
	}
	p, err := s.profiles.GetProfile(ctx, sess.User.ID)
	if err != nil {
		s.logger.Warnf("Profile for %s unavailable: %v", sess.User.ID, err)
		return models.UnknownUser
	}
	return p.DisplayName()
}

// Recent lists the newest alerts with reporter details. limit <= 0 lists all.
func (s *Service) Recent(ctx context.Context, limit int) ([]models.Alert, error) {
	return s.store.ListAlerts(ctx, limit)
}

// Resolve marks an alert resolved. It fails for unknown or already resolved alerts.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID) (models.Alert, error) {
	a, err := s.store.ResolveAlert(ctx, id)
	if err != nil {
		return models.Alert{}, err
	}
	s.logger.Infof("SOS alert %s resolved", id)
	return a, nil
}

func (s *Service) Dispatches(ctx context.Context, alertID uuid.UUID) ([]models.Dispatch, error) {
	return s.store.ListDispatches(ctx, alertID)
}

// IsRetryable reports whether a submission error leaves nothing recorded, so the
// reporter may simply try again.
func IsRetryable(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
