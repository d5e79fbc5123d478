package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ivx-health/aia/internal/api"
	"github.com/ivx-health/aia/internal/bubble"
	"github.com/ivx-health/aia/internal/doctors"
	"github.com/ivx-health/aia/internal/flow"
	"github.com/ivx-health/aia/internal/genai"
	"github.com/ivx-health/aia/internal/lockfile"
	"github.com/ivx-health/aia/internal/messaging"
	"github.com/ivx-health/aia/internal/store"
	"github.com/ivx-health/aia/internal/util"
	"github.com/ivx-health/aia/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for service state data
	DefaultStateDir = "/var/lib/aia"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "aia.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	if err := run(flags); err != nil {
		slog.Error("Service failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("Service exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir          string
	DatabaseURL       string
	OpenAIKey         string
	APIAddr           string
	VerifyToken       string
	BubbleBaseURL     string
	MessagingProvider string
}

// Flags holds command line flag values
type Flags struct {
	stateDir          *string
	dbDSN             *string
	openaiKey         *string
	apiAddr           *string
	verifyToken       *string
	bubbleBaseURL     *string
	messagingProvider *string
}

// initializeLogger sets up structured logging; AIA_DEBUG enables debug level.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("AIA_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:          os.Getenv("AIA_STATE_DIR"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		APIAddr:           os.Getenv("API_ADDR"),
		VerifyToken:       os.Getenv("WEBHOOK_VERIFY_TOKEN"),
		BubbleBaseURL:     os.Getenv("BUBBLE_BASE_URL"),
		MessagingProvider: os.Getenv("MESSAGING_PROVIDER"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No AIA_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.MessagingProvider == "" {
		config.MessagingProvider = "cloud"
	}
	return config
}

// parseCommandLineFlags parses flags, using environment values as defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:          flag.String("state-dir", config.StateDir, "directory for service state data"),
		dbDSN:             flag.String("db-dsn", config.DatabaseURL, "database DSN (PostgreSQL URL or SQLite file path)"),
		openaiKey:         flag.String("openai-key", config.OpenAIKey, "OpenAI API key"),
		apiAddr:           flag.String("addr", config.APIAddr, "API listen address"),
		verifyToken:       flag.String("verify-token", config.VerifyToken, "webhook verification token"),
		bubbleBaseURL:     flag.String("bubble-url", config.BubbleBaseURL, "Bubble data API base URL"),
		messagingProvider: flag.String("messaging-provider", config.MessagingProvider, "messaging provider: cloud or twilio"),
	}
	flag.Parse()
	return flags
}

// buildStore selects the conversation state backend by DSN: PostgreSQL URLs
// go to the Postgres store, anything else is a SQLite file path, defaulting
// to a database inside the state directory.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		dsn = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("No DSN configured, using SQLite in state directory", "dsn", dsn)
	}
	if store.IsPostgresDSN(dsn) {
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildMessagingService selects the outbound provider. The Cloud API service
// also serves as the read marker; Twilio has no read receipts.
func buildMessagingService(flags Flags) (messaging.Service, api.ReadMarker, error) {
	if *flags.messagingProvider == "twilio" {
		svc, err := messaging.NewTwilioService()
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Using Twilio messaging provider")
		return svc, nil, nil
	}

	client, err := whatsapp.NewClient()
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Using WhatsApp Cloud API messaging provider")
	return messaging.NewCloudAPIService(client), client, nil
}

func run(flags Flags) error {
	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	genaiOpts := []genai.Option{}
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	genaiClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	bubbleClient, err := bubble.NewClient(bubble.WithBaseURL(*flags.bubbleBaseURL))
	if err != nil {
		return err
	}

	msgService, readMarker, err := buildMessagingService(flags)
	if err != nil {
		return err
	}

	dispatcher := flow.NewDispatcher(
		flow.NewStoreBasedStateManager(st),
		flow.NewIntentClassifier(genaiClient),
		flow.NewFieldExtractor(genaiClient),
		flow.NewResponseComposer(genaiClient),
		bubbleClient,
		doctors.NewNotifier(doctors.NewMatcher(doctors.DefaultDoctors()), msgService),
	)

	server := api.NewServer(dispatcher, msgService, readMarker, bubbleClient,
		api.WithAddr(*flags.apiAddr),
		api.WithVerifyToken(*flags.verifyToken),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping appointment assistant",
		"addr", *flags.apiAddr, "state_dir", *flags.stateDir, "provider", *flags.messagingProvider)
	return server.Run(ctx)
}
