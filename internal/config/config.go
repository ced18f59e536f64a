// Load envs from .env
// Load YAML config
// Validate config
// Provide default values

package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Telegram is optional: leave the token empty to disable notifications.
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`

	// Paths
	CookiesPath  string `yaml:"cookies_path"`
	DatabasePath string `yaml:"database_path"`

	// Control channel listen address for UI clients.
	ControlAddr string `yaml:"control_addr"`

	FeedURL  string `yaml:"feed_url"`
	Headless bool   `yaml:"headless"`

	// Hiring classification. Patterns are literal phrases or RE2 sources;
	// whitespace matches line wraps. ExcludedSubjects are pronouns that
	// disqualify a match when they appear right before it.
	HiringPatterns   []string `yaml:"hiring_patterns"`
	ExcludedSubjects []string `yaml:"excluded_subjects"`

	// MaxPostsPerSession stops a session after this many accepted posts.
	// 0 means no cap.
	MaxPostsPerSession int `yaml:"max_posts_per_session"`

	// Scroll pacing
	ScrollMinStepPx  int `yaml:"scroll_min_step_px"`
	ScrollMaxStepPx  int `yaml:"scroll_max_step_px"`
	ScrollMinPauseMs int `yaml:"scroll_min_pause_ms"`
	ScrollMaxPauseMs int `yaml:"scroll_max_pause_ms"`
}

func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile("configs/config.yaml")
	if err != nil {
		log.Printf("Warning: Could not read config.yaml: %v", err)
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Fatalf("Error parsing config.yaml: %v", err)
		}
	}

	//Override with env vars
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.TelegramToken = token
	}
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			log.Fatalf("Invalid TELEGRAM_CHAT_ID: %v", err)
		}
		cfg.TelegramChatID = id
	}
	if dbPath := os.Getenv("SCRAPER_DB_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if addr := os.Getenv("SCRAPER_CONTROL_ADDR"); addr != "" {
		cfg.ControlAddr = addr
	}

	//Set default values if not set
	if cfg.CookiesPath == "" {
		cfg.CookiesPath = ".cookies"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = ".data/scraper.db"
	}
	if cfg.ControlAddr == "" {
		cfg.ControlAddr = "127.0.0.1:8924"
	}
	if cfg.FeedURL == "" {
		cfg.FeedURL = "https://www.linkedin.com/feed/"
	}
	if len(cfg.HiringPatterns) == 0 {
		cfg.HiringPatterns = DefaultHiringPatterns()
	}
	if len(cfg.ExcludedSubjects) == 0 {
		cfg.ExcludedSubjects = []string{"you", "they"}
	}
	if cfg.ScrollMinStepPx == 0 {
		cfg.ScrollMinStepPx = 600
	}
	if cfg.ScrollMaxStepPx == 0 {
		cfg.ScrollMaxStepPx = 1400
	}
	if cfg.ScrollMinPauseMs == 0 {
		cfg.ScrollMinPauseMs = 1500
	}
	if cfg.ScrollMaxPauseMs == 0 {
		cfg.ScrollMaxPauseMs = 4000
	}

	//Validate required fields
	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		log.Fatal("TELEGRAM_CHAT_ID is required when a telegram token is set")
	}
	if cfg.ScrollMaxStepPx < cfg.ScrollMinStepPx || cfg.ScrollMaxPauseMs < cfg.ScrollMinPauseMs {
		log.Fatal("Scroll pacing bounds are inverted")
	}

	return cfg
}

// DefaultHiringPatterns is the built-in keyword profile. The subject guard
// ("you are hiring", "they are hiring") is configured separately via
// ExcludedSubjects, so these patterns stay plain RE2.
func DefaultHiringPatterns() []string {
	return []string{
		"(is|are|am|'re) #?hiring",
		"(is|are|am|'re) looking for",
		"(is|are|am|'re) seeking",
		"we seek",
		"(apply|application) (now|here|today)",
		"help build",
		"open role",
		"join (us|now)",
	}
}
