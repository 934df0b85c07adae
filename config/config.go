package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the bot.
type Config struct {
	Environment string
	ServerPort  string
	AdminToken  string

	// Discord
	DiscordToken string
	ChannelID    string
	AdminUserIDs []string

	// Database
	DBDriver   string // sqlite or mysql
	DBDSN      string
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Lifecycle events
	MQDriver         string // none, redis or rocketmq
	RocketNameServer string
	MQTopic          string

	// Daily cycle
	Timezone       *time.Location
	VoteHour       int
	VoteMinute     int
	EntriesPerPoll int
	CheckInterval  time.Duration
	RetryDelay     time.Duration

	// Image generation
	OpenAIKey        string
	ImageModel       string
	ImageSize        string
	ImageConcurrency int
	Prompts          []string

	// Social posting
	SocialWebhookURL string
	SocialToken      string

	// Vote click throttling
	UserRate  float64
	UserBurst int
}

// DefaultPrompts is used when PROMPTS is not configured.
var DefaultPrompts = []string{
	"a lighthouse made of stacked books at dusk",
	"a cat astronaut tending a greenhouse on the moon",
	"a rainy neon alley painted in watercolor",
	"a tiny dragon brewing coffee in a copper kettle",
	"an underwater city lit by jellyfish lanterns",
	"a fox reading a map in an autumn forest",
	"a steam train crossing a bridge of clouds",
	"a robot gardener trimming bonsai trees",
}

// Load reads flags, then falls back to the environment. A .env file is
// loaded first when present; existing environment variables win.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("dailyvote-bot", flag.ContinueOnError)
	envFile := fs.String("env", ".env", "Path to an optional .env file")
	port := fs.String("p", "", "HTTP server port")
	dbDriver := fs.String("db", "", "Database driver (sqlite or mysql)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: could not load %s: %v", *envFile, err)
	}

	cfg := &Config{
		Environment:      getEnv("ENVIRONMENT", "development"),
		ServerPort:       firstNonEmpty(*port, getEnv("SERVER_PORT", "8090")),
		AdminToken:       getEnv("ADMIN_TOKEN", ""),
		DiscordToken:     getEnv("DISCORD_TOKEN", ""),
		ChannelID:        getEnv("DISCORD_CHANNEL_ID", ""),
		AdminUserIDs:     splitList(getEnv("DISCORD_ADMIN_IDS", ""), ","),
		DBDriver:         firstNonEmpty(*dbDriver, getEnv("DB_DRIVER", "sqlite")),
		DBDSN:            getEnv("DB_DSN", ""),
		DBUser:           getEnv("DB_USER", "voteuser"),
		DBPassword:       getEnv("DB_PASSWORD", "votepassword"),
		DBHost:           getEnv("DB_HOST", "mysql"),
		DBPort:           getEnv("DB_PORT", "3306"),
		DBName:           getEnv("DB_NAME", "dailyvote"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		MQDriver:         getEnv("MQ_DRIVER", "none"),
		RocketNameServer: getEnv("ROCKETMQ_NAMESRV_ADDR", "localhost:9876"),
		MQTopic:          getEnv("MQ_TOPIC", "daily_vote_events"),
		OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
		ImageModel:       getEnv("IMAGE_MODEL", "dall-e-3"),
		ImageSize:        getEnv("IMAGE_SIZE", "1024x1024"),
		SocialWebhookURL: getEnv("SOCIAL_WEBHOOK_URL", ""),
		SocialToken:      getEnv("SOCIAL_TOKEN", ""),
		Prompts:          splitList(getEnv("PROMPTS", ""), ";"),
	}
	if len(cfg.Prompts) == 0 {
		cfg.Prompts = DefaultPrompts
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.VoteHour, err = getInt("VOTE_HOUR", 12); err != nil {
		return nil, err
	}
	if cfg.VoteMinute, err = getInt("VOTE_MINUTE", 0); err != nil {
		return nil, err
	}
	if cfg.EntriesPerPoll, err = getInt("ENTRIES_PER_POLL", 4); err != nil {
		return nil, err
	}
	if cfg.ImageConcurrency, err = getInt("IMAGE_CONCURRENCY", 2); err != nil {
		return nil, err
	}
	if cfg.UserBurst, err = getInt("USER_RATE_BURST", 3); err != nil {
		return nil, err
	}
	if cfg.UserRate, err = getFloat("USER_RATE_LIMIT", 1); err != nil {
		return nil, err
	}
	if cfg.CheckInterval, err = getDuration("SCHEDULER_CHECK_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = getDuration("SCHEDULER_RETRY_DELAY", 15*time.Minute); err != nil {
		return nil, err
	}

	tz := getEnv("VOTE_TIMEZONE", "UTC")
	cfg.Timezone, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid VOTE_TIMEZONE %q: %w", tz, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise break the daily cycle.
func (c *Config) Validate() error {
	if c.VoteHour < 0 || c.VoteHour > 23 {
		return fmt.Errorf("VOTE_HOUR must be 0-23, got %d", c.VoteHour)
	}
	if c.VoteMinute < 0 || c.VoteMinute > 59 {
		return fmt.Errorf("VOTE_MINUTE must be 0-59, got %d", c.VoteMinute)
	}
	if c.EntriesPerPoll < 1 || c.EntriesPerPoll > 9 {
		return fmt.Errorf("ENTRIES_PER_POLL must be 1-9, got %d", c.EntriesPerPoll)
	}
	if c.ImageConcurrency < 1 {
		c.ImageConcurrency = 1
	}
	switch c.DBDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.MQDriver {
	case "none", "redis", "rocketmq":
	default:
		return fmt.Errorf("unsupported MQ_DRIVER %q", c.MQDriver)
	}
	return nil
}

// IsAdmin reports whether a Discord user may use admin commands.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// getEnv returns the environment value or the default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable: %w", key, err)
	}
	return d, nil
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
