package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sos-service/internal/geo"
	"sos-service/internal/logging"
	"sos-service/internal/models"
)

// Dispatcher makes a single notification attempt. It never retries.
type Dispatcher interface {
	Dispatch(ctx context.Context, p Payload) error
}

// Mailer delivers one rendered message through an email provider.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailDispatcher renders the payload and hands it straight to a Mailer.
type MailDispatcher struct {
	mailer   Mailer
	fallback string
	geocoder geo.Geocoder
	logger   *logging.Logger
}

// NewMailDispatcher sends to the payload recipient, or fallback when none was given.
// geocoder may be nil.
func NewMailDispatcher(mailer Mailer, fallback string, geocoder geo.Geocoder, logger *logging.Logger) *MailDispatcher {
	return &MailDispatcher{mailer: mailer, fallback: fallback, geocoder: geocoder, logger: logger}
}

func (d *MailDispatcher) Dispatch(ctx context.Context, p Payload) error {
	if strings.TrimSpace(p.RecipientEmail) == "" {
		p.RecipientEmail = d.fallback
	}
	if p.RecipientEmail == "" {
		return errors.New("no recipient for sos notification")
	}

	msg, err := BuildMessage(p, d.address(ctx, p))
	if err != nil {
		return err
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send sos email to %s: %w", msg.To, err)
	}
	d.logger.Infof("SOS email sent to %s for %s", msg.To, p.UserEmail)
	return nil
}

func (d *MailDispatcher) address(ctx context.Context, p Payload) string {
	if d.geocoder == nil || p.LocationLat == nil || p.LocationLng == nil {
		return ""
	}
	addr, err := d.geocoder.ReverseGeocode(ctx, models.Coordinates{Latitude: *p.LocationLat, Longitude: *p.LocationLng})
	if err != nil {
		d.logger.Warnf("Reverse geocode skipped: %v", err)
		return ""
	}
	return addr
}

// RemoteDispatcher invokes the send-sos function over HTTP.
type RemoteDispatcher struct {
	url    string
	token  string
	client *http.Client
}

// NewRemoteDispatcher posts to url. A non-empty token is sent as a bearer credential,
// which the send-sos endpoint requires.
func NewRemoteDispatcher(url, token string, client *http.Client) *RemoteDispatcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RemoteDispatcher{url: url, token: token, client: client}
}

func (d *RemoteDispatcher) Dispatch(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode sos payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create send-sos request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send-sos call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send-sos returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
