package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	JWT      JWTConfig
	App      AppConfig
	Presence PresenceConfig
	Agent    AgentConfig
	Cron     CronConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port     int
	Env      string
	LogLevel string
	Name     string
	Version  string
	Timezone string

	// AllowedOrigins is used for CORS and the websocket origin check
	AllowedOrigins       []string
	RealtimePingInterval time.Duration
}

// PresenceConfig tunes the geofence engine run by the agent.
type PresenceConfig struct {
	DefaultRadius        float64
	AccuracyThreshold    float64
	ThrottleInterval     time.Duration
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	ConfirmSamples       int
	TickInterval         time.Duration
}

// AgentConfig holds settings for cmd/agent
type AgentConfig struct {
	ServerURL      string
	RealtimeURL    string
	CredentialFile string
	UserID         string
}

type CronConfig struct {
	AutoCloseInterval time.Duration
	StaleSessionAfter time.Duration
}

// Load reads .env from the working directory when present, then the environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile reads the given env file when present, then the environment.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	config := &Config{}

	// Database configuration
	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "cmlabs-hris-presence"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	// Application configuration
	appPort, err := getEnvInt("APP_PORT", 8080)
	if err != nil {
		return nil, err
	}
	pingInterval, err := getEnvDuration("REALTIME_PING_INTERVAL", 54*time.Second)
	if err != nil {
		return nil, err
	}

	config.App = AppConfig{
		Port:                 appPort,
		Env:                  getEnv("APP_ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		Name:                 getEnv("APP_NAME", "hris-presence"),
		Version:              getEnv("APP_VERSION", "v1.0.0"),
		Timezone:             getEnv("APP_TIMEZONE", "UTC"),
		AllowedOrigins:       getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RealtimePingInterval: pingInterval,
	}

	// JWT configuration
	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_EXPIRATION_TIME", "1h"),
	}

	// Presence engine configuration
	if config.Presence, err = loadPresence(); err != nil {
		return nil, err
	}

	// Agent configuration
	config.Agent = AgentConfig{
		ServerURL:      strings.TrimRight(getEnv("AGENT_SERVER_URL", "http://localhost:8080"), "/"),
		RealtimeURL:    getEnv("AGENT_REALTIME_URL", ""),
		CredentialFile: getEnv("AGENT_CREDENTIAL_FILE", ".presence-session.json"),
		UserID:         getEnv("AGENT_USER_ID", ""),
	}

	// Cron configuration
	autoCloseInterval, err := getEnvDuration("CRON_AUTO_CLOSE_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	staleAfter, err := getEnvDuration("CRON_STALE_SESSION_AFTER", 16*time.Hour)
	if err != nil {
		return nil, err
	}
	config.Cron = CronConfig{
		AutoCloseInterval: autoCloseInterval,
		StaleSessionAfter: staleAfter,
	}

	return config, nil
}

func loadPresence() (PresenceConfig, error) {
	radius, err := getEnvFloat("PRESENCE_DEFAULT_RADIUS", 10)
	if err != nil {
		return PresenceConfig{}, err
	}
	accuracy, err := getEnvFloat("PRESENCE_ACCURACY_THRESHOLD", 30)
	if err != nil {
		return PresenceConfig{}, err
	}
	throttle, err := getEnvDuration("PRESENCE_THROTTLE_INTERVAL", time.Second)
	if err != nil {
		return PresenceConfig{}, err
	}
	attempts, err := getEnvInt("PRESENCE_MAX_RECONNECT_ATTEMPTS", 5)
	if err != nil {
		return PresenceConfig{}, err
	}
	delay, err := getEnvDuration("PRESENCE_RECONNECT_DELAY", time.Second)
	if err != nil {
		return PresenceConfig{}, err
	}
	confirm, err := getEnvInt("PRESENCE_CONFIRM_SAMPLES", 1)
	if err != nil {
		return PresenceConfig{}, err
	}
	tick, err := getEnvDuration("PRESENCE_TICK_INTERVAL", time.Second)
	if err != nil {
		return PresenceConfig{}, err
	}

	return PresenceConfig{
		DefaultRadius:        radius,
		AccuracyThreshold:    accuracy,
		ThrottleInterval:     throttle,
		MaxReconnectAttempts: attempts,
		ReconnectDelay:       delay,
		ConfirmSamples:       confirm,
		TickInterval:         tick,
	}, nil
}

// ValidateServer checks the settings cmd/api cannot run without
func (c *Config) ValidateServer() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if _, err := time.ParseDuration(c.JWT.AccessExpiration); err != nil {
		return fmt.Errorf("invalid JWT_ACCESS_EXPIRATION_TIME: %w", err)
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}
	if c.Cron.StaleSessionAfter <= 0 {
		return fmt.Errorf("CRON_STALE_SESSION_AFTER must be positive")
	}
	return nil
}

// ValidateAgent checks the settings cmd/agent cannot run without
func (c *Config) ValidateAgent() error {
	if c.Agent.ServerURL == "" {
		return fmt.Errorf("AGENT_SERVER_URL is required")
	}
	if c.Presence.DefaultRadius <= 0 {
		return fmt.Errorf("PRESENCE_DEFAULT_RADIUS must be positive")
	}
	if c.Presence.ConfirmSamples < 1 {
		return fmt.Errorf("PRESENCE_CONFIRM_SAMPLES must be at least 1")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// RealtimeURL returns the websocket endpoint, derived from the server URL unless set.
func (c *Config) RealtimeURL() string {
	if c.Agent.RealtimeURL != "" {
		return c.Agent.RealtimeURL
	}
	url := c.Agent.ServerURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/api/v1/realtime"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvSlice(key string, fallback []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
