package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		DSN     string
		Migrate bool
	}
	Auth struct {
		JWTSecret  string
		SessionTTL time.Duration
	}
	API struct {
		Port       string
		BasePath   string
		SubmitRate string
	}
	Logging struct {
		Dir   string
		Level string
	}
	Realtime struct {
		Source        string // postgres | kafka
		BufferSize    int
		DashboardSize int
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	Dispatch struct {
		Mode          string // direct | remote
		FunctionURL   string
		FunctionToken string
		SecurityEmail string
		Domains       []string
	}
	Email struct {
		Provider   string // smtp | sendgrid
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		FromName   string
		FromEmail  string
		SendGrid   string
	}
	Telegram struct {
		BotToken  string
		ChatID    int64
		RateLimit int
	}
	Maps struct {
		APIKey string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Database
	cfg.DB.DSN = os.Getenv("DB_DSN")
	cfg.DB.Migrate = os.Getenv("DB_MIGRATE") != "false"

	// Identity boundary
	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	if d, err := time.ParseDuration(os.Getenv("SESSION_TTL")); err == nil {
		cfg.Auth.SessionTTL = d
	}

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")
	cfg.API.SubmitRate = os.Getenv("SUBMIT_RATE")

	// Logging
	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Real-time fan-out
	cfg.Realtime.Source = strings.ToLower(os.Getenv("REALTIME_SOURCE"))
	if n, err := strconv.Atoi(os.Getenv("REALTIME_BUFFER")); err == nil {
		cfg.Realtime.BufferSize = n
	}
	if n, err := strconv.Atoi(os.Getenv("DASHBOARD_SIZE")); err == nil {
		cfg.Realtime.DashboardSize = n
	}

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Dispatch
	cfg.Dispatch.Mode = strings.ToLower(os.Getenv("DISPATCH_MODE"))
	cfg.Dispatch.FunctionURL = os.Getenv("DISPATCH_FUNCTION_URL")
	cfg.Dispatch.FunctionToken = os.Getenv("DISPATCH_FUNCTION_TOKEN")
	cfg.Dispatch.SecurityEmail = os.Getenv("SECURITY_EMAIL")
	cfg.Dispatch.Domains = splitList(os.Getenv("RECIPIENT_DOMAINS"))

	// Email settings
	cfg.Email.Provider = strings.ToLower(os.Getenv("EMAIL_PROVIDER"))
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	if p, err := strconv.Atoi(os.Getenv("EMAIL_SMTP_PORT")); err == nil {
		cfg.Email.SMTPPort = p
	}
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = os.Getenv("EMAIL_FROM_NAME")
	cfg.Email.FromEmail = os.Getenv("EMAIL_FROM")
	cfg.Email.SendGrid = os.Getenv("SENDGRID_API_KEY")

	// Telegram relay
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if id, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64); err == nil {
		cfg.Telegram.ChatID = id
	}
	if r, err := strconv.Atoi(os.Getenv("TELEGRAM_RATE_LIMIT")); err == nil {
		cfg.Telegram.RateLimit = r
	}

	cfg.Maps.APIKey = os.Getenv("GOOGLE_MAPS_API_KEY")

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if cfg.Realtime.Source == "kafka" && cfg.Kafka.Broker == "" {
		missing = append(missing, "KAFKA_BROKER")
	}
	if cfg.Dispatch.Mode == "remote" && cfg.Dispatch.FunctionURL == "" {
		missing = append(missing, "DISPATCH_FUNCTION_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.API.SubmitRate == "" {
		cfg.API.SubmitRate = "5-M"
	}
	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 12 * time.Hour
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Realtime.Source == "" {
		cfg.Realtime.Source = "postgres"
	}
	if cfg.Realtime.BufferSize == 0 {
		cfg.Realtime.BufferSize = 64
	}
	if cfg.Realtime.DashboardSize == 0 {
		cfg.Realtime.DashboardSize = 10
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "sos_alerts"
	}
	if cfg.Kafka.GroupID == "" {
		host, _ := os.Hostname()
		cfg.Kafka.GroupID = "sos-viewers-" + host
	}
	if cfg.Dispatch.Mode == "" {
		cfg.Dispatch.Mode = "direct"
	}
	if cfg.Dispatch.SecurityEmail == "" {
		cfg.Dispatch.SecurityEmail = "security@campus.edu"
	}
	if len(cfg.Dispatch.Domains) == 0 {
		cfg.Dispatch.Domains = []string{"gmail.com"}
	}
	if cfg.Email.Provider == "" {
		cfg.Email.Provider = "smtp"
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = "Campus Safety"
	}
	if cfg.Email.FromEmail == "" {
		cfg.Email.FromEmail = cfg.Email.Username
	}
	if cfg.Telegram.RateLimit == 0 {
		cfg.Telegram.RateLimit = 1
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
