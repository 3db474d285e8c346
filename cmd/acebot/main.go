// Command acebot runs the ACE callout questionnaire service: an HTTP chat API
// that interviews utility companies about their callout procedures and emits
// a structured summary once every topic is covered.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/CMCFame/ACEBotV2/internal/api"
	"github.com/CMCFame/ACEBotV2/internal/export"
	"github.com/CMCFame/ACEBotV2/internal/genai"
	"github.com/CMCFame/ACEBotV2/internal/lockfile"
	"github.com/CMCFame/ACEBotV2/internal/registry"
	"github.com/CMCFame/ACEBotV2/internal/retention"
	"github.com/CMCFame/ACEBotV2/internal/store"
	"github.com/CMCFame/ACEBotV2/internal/util"
)

// Default configuration constants.
const (
	// DefaultStateDir is the default directory for service state.
	DefaultStateDir = "/var/lib/acebot"
	// DefaultDBFileName is the default SQLite database filename.
	DefaultDBFileName = "acebot.db"
)

// Config holds environment configuration.
type Config struct {
	StateDir    string
	DatabaseDSN string
	OpenAIKey   string
	APIAddr     string
	AccessCode  string
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	SMTPFrom    string
}

func main() {
	initializeLogger()
	config := loadEnvironmentConfig()

	stateDir := flag.String("state-dir", config.StateDir, "state directory for database and lock file")
	dbDSN := flag.String("db-dsn", config.DatabaseDSN, "database DSN (postgres:// URL or SQLite file path)")
	openaiKey := flag.String("openai-key", config.OpenAIKey, "OpenAI API key")
	apiAddr := flag.String("addr", config.APIAddr, "API listen address")
	accessCode := flag.String("access-code", config.AccessCode, "access code required on session endpoints (empty disables auth)")
	flag.Parse()

	// Only one instance may own a state directory.
	lock, err := lockfile.AcquireLock(*stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	// An inconsistent question registry is a configuration error; refuse to start.
	reg := registry.New()
	if err := reg.Validate(); err != nil {
		slog.Error("Question registry validation failed", "error", err)
		os.Exit(1)
	}

	dsn := *dbDSN
	if dsn == "" {
		dsn = filepath.Join(*stateDir, DefaultDBFileName)
		slog.Debug("No database DSN set, using SQLite in state directory", "dsn", dsn)
	}
	st, err := store.NewStore(store.WithDSN(dsn))
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ai, err := genai.NewClient(genai.WithAPIKey(*openaiKey))
	if err != nil {
		slog.Error("Failed to initialize generation client", "error", err)
		os.Exit(1)
	}

	apiOpts := []api.Option{}
	if *apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*apiAddr))
	}
	// Session endpoints are always code-protected; generate one when none is
	// configured and print it so the operator can hand it to respondents.
	code := *accessCode
	if code == "" {
		code = util.GenerateAccessCode()
		slog.Info("No access code configured, generated one", "accessCode", code)
	}
	apiOpts = append(apiOpts, api.WithAccessCode(code))
	if config.SMTPHost != "" {
		mailer, err := export.NewSMTPMailer(
			export.WithSMTPServer(config.SMTPHost, config.SMTPPort),
			export.WithSMTPAuth(config.SMTPUser, config.SMTPPass),
			export.WithSMTPFrom(config.SMTPFrom),
		)
		if err != nil {
			slog.Error("Failed to initialize SMTP mailer", "error", err)
			os.Exit(1)
		}
		apiOpts = append(apiOpts, api.WithMailer(mailer))
		slog.Info("Email export enabled", "host", config.SMTPHost)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := retention.NewSweeper(st,
		retention.WithIdleTTL(util.ParseDurationEnv("SESSION_IDLE_TTL", retention.DefaultIdleTTL)),
		retention.WithCompletedTTL(util.ParseDurationEnv("SESSION_RETENTION", retention.DefaultCompletedTTL)),
	)
	go sweeper.Run(ctx)

	slog.Info("Starting questionnaire service", "addr", *apiAddr, "stateDir", *stateDir)
	server := api.NewServer(reg, st, ai, apiOpts...)
	if err := server.Run(ctx); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Service exited")
}

// initializeLogger sets up structured logging. Level defaults to info;
// LOG_DEBUG=1 enables debug output.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("LOG_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from the environment and an
// optional .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}
	smtpPort := 587
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			smtpPort = p
		} else {
			slog.Warn("Invalid SMTP_PORT, using default", "value", v, "default", smtpPort)
		}
	}
	return Config{
		StateDir:    util.EnvOrDefault("ACEBOT_STATE_DIR", DefaultStateDir),
		DatabaseDSN: os.Getenv("DATABASE_URL"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     util.EnvOrDefault("API_ADDR", api.DefaultAddr),
		AccessCode:  os.Getenv("ACCESS_CODE"),
		SMTPHost:    os.Getenv("SMTP_HOST"),
		SMTPPort:    smtpPort,
		SMTPUser:    os.Getenv("SMTP_USERNAME"),
		SMTPPass:    os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:    os.Getenv("SMTP_FROM"),
	}
}
