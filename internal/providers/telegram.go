package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"sos-service/internal/logging"
	"sos-service/internal/models"
	"sos-service/internal/notify"
	"sos-service/internal/utils"
)

// TelegramSender is the slice of *bot.Bot the relay needs.
type TelegramSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramRelay forwards newly inserted alerts to a security chat.
type TelegramRelay struct {
	sender  TelegramSender
	chatID  int64
	limiter *rate.Limiter
	logger  *logging.Logger
	alerts  chan models.Alert
	workers int

	retries    int
	retryDelay time.Duration
}

// NewTelegramRelay allows ratePerSecond messages per second with an equal burst.
func NewTelegramRelay(sender TelegramSender, chatID int64, ratePerSecond int, logger *logging.Logger) *TelegramRelay {
	if ratePerSecond < 1 {
		ratePerSecond = 1
	}
	return &TelegramRelay{
		sender:     sender,
		chatID:     chatID,
		limiter:    rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:     logger,
		alerts:     make(chan models.Alert, 32),
		workers:    1,
		retries:    3,
		retryDelay: time.Second,
	}
}

// Start launches the send workers. They exit when ctx is cancelled.
func (r *TelegramRelay) Start(ctx context.Context, wg *sync.WaitGroup) {
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go r.worker(ctx, wg, i)
	}
}

// Forward queues every alert from events until the channel closes or ctx is done.
func (r *TelegramRelay) Forward(ctx context.Context, events <-chan models.Alert) {
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-events:
			if !ok {
				return
			}
			r.QueueAlert(a)
		}
	}
}

// QueueAlert enqueues an alert, dropping it when the queue is full.
func (r *TelegramRelay) QueueAlert(a models.Alert) {
	select {
	case r.alerts <- a:
		r.logger.Debugf("Queued telegram relay for alert %s", a.ID)
	default:
		r.logger.Errorf("Telegram queue full, dropping alert %s", a.ID)
	}
}

func (r *TelegramRelay) worker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			r.logger.Infof("Telegram worker %d stopped", id)
			return
		case a := <-r.alerts:
			if err := r.Send(ctx, a); err != nil {
				r.logger.Errorf("Telegram relay for alert %s failed: %v", a.ID, err)
			}
		}
	}
}

// Send posts one alert, waiting for the rate limiter and retrying transient failures.
func (r *TelegramRelay) Send(ctx context.Context, a models.Alert) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	params := &bot.SendMessageParams{
		ChatID:    r.chatID,
		Text:      formatAlert(a),
		ParseMode: tgmodels.ParseModeMarkdown,
	}
	return utils.Retry(ctx, r.logger, r.retries, r.retryDelay, func() error {
		if _, err := r.sender.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", r.chatID, err)
		}
		return nil
	})
}

func formatAlert(a models.Alert) string {
	name := models.UnknownUser
	phone := "n/a"
	if a.Reporter != nil {
		if a.Reporter.FullName != nil && strings.TrimSpace(*a.Reporter.FullName) != "" {
			name = *a.Reporter.FullName
		}
		if a.Reporter.PhoneNumber != nil && *a.Reporter.PhoneNumber != "" {
			phone = *a.Reporter.PhoneNumber
		}
	}
	location := "not shared"
	if u := notify.MapURL(a.LocationLat, a.LocationLng); u != "" {
		location = u
	}

	var b strings.Builder
	b.WriteString("*🆘 SOS Alert*\n")
	fmt.Fprintf(&b, "*Reporter:* %s\n", bot.EscapeMarkdown(name))
	fmt.Fprintf(&b, "*Phone:* %s\n", bot.EscapeMarkdown(phone))
	fmt.Fprintf(&b, "*Time:* %s\n", bot.EscapeMarkdown(a.CreatedAt.UTC().Format(time.RFC3339)))
	fmt.Fprintf(&b, "*Location:* %s", bot.EscapeMarkdown(location))
	return b.String()
}
