package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Cfg struct {
	Database   Database
	Logger     Logger
	OpenAI     OpenAI
	Browser    Browser
	Tasks      Tasks
	App        App
	Migrations Migrations
}

type Database struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

// DSN собирает строку подключения для gorm/postgres.
func (d Database) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" sslmode=disable"
}

// URL используется golang-migrate.
func (d Database) URL() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Name + "?sslmode=disable"
}

// Enabled сообщает, настроена ли база. Без неё storage state живёт только в памяти.
func (d Database) Enabled() bool {
	return d.Host != "" && d.Name != ""
}

type Migrations struct {
	Path string
}

type Logger struct {
	Env   string
	Level string
	File  string
}

type OpenAI struct {
	KeyAI             string
	Model             string
	BaseURL           string
	MaxTokens         int
	RequestsPerMinute int
}

type Browser struct {
	Display      string
	Headless     bool
	Channel      string
	BrowsersPath string
	Timeout      time.Duration
	// DevURL - адрес локального тестового дашборда платформы dev.
	DevURL string
}

type Tasks struct {
	MaxTryCount     int
	AuthMaxAttempts int
	ScreenshotDir   string
	ScreenshotKeep  int
	Location        *time.Location
}

type App struct {
	Host string
	Port string
	// CommentHistory - сколько последних сообщений чата держать на аккаунт.
	CommentHistory int
}

func Load() (*Cfg, error) {
	_ = godotenv.Load()

	loc, err := time.LoadLocation(env("TIMEZONE", "Asia/Shanghai"))
	if err != nil {
		loc = time.Local
	}

	cfg := &Cfg{
		Database: Database{
			Host:     os.Getenv("DB_HOST"),
			Port:     env("DB_PORT", "5432"),
			Name:     os.Getenv("DB_NAME"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASS"),
		},
		Logger: Logger{
			Env:   env("ENV", "dev"),
			Level: env("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
		OpenAI: OpenAI{
			KeyAI:             os.Getenv("OPENAI_API_KEY"),
			Model:             env("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL:           os.Getenv("OPENAI_BASE_URL"),
			MaxTokens:         envInt("OPENAI_MAX_TOKENS", 200),
			RequestsPerMinute: envInt("OPENAI_RPM", 30),
		},
		Browser: Browser{
			Display:      env("DISPLAY", ":0"),
			Headless:     envBool("PW_HEADLESS"),
			Channel:      os.Getenv("PW_CHANNEL"),
			BrowsersPath: env("PLAYWRIGHT_BROWSERS_PATH", ""),
			Timeout:      time.Duration(envInt("PW_TIMEOUT_MS", 30000)) * time.Millisecond,
			DevURL:       os.Getenv("DEV_DASHBOARD_URL"),
		},
		Tasks: Tasks{
			MaxTryCount:     envInt("TASK_MAX_TRY", 3),
			AuthMaxAttempts: envInt("AUTH_MAX_ATTEMPTS", 3),
			ScreenshotDir:   env("SCREENSHOT_DIR", "./screenshots"),
			ScreenshotKeep:  envInt("SCREENSHOT_KEEP", 50),
			Location:        loc,
		},
		App: App{
			Host:           env("HTTP_HOST", "127.0.0.1"),
			Port:           env("HTTP_PORT", "8787"),
			CommentHistory: envInt("COMMENT_HISTORY", 200),
		},
		Migrations: Migrations{
			Path: env("MIGRATIONS_PATH", "file://migrations"),
		},
	}

	return cfg, nil
}

func env(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "true" || v == "1" || v == "yes"
}
