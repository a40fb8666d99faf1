package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"ipblacklist/internal/app/server"
	"ipblacklist/internal/auth"
	"ipblacklist/internal/blacklist"
	"ipblacklist/internal/config"
	"ipblacklist/internal/database"
	"ipblacklist/internal/support"
)

const defaultPort = 8080

func Run(args []string) error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	log.SetLevel(parseLevel(support.GetEnv("LOG_LEVEL", "info")))

	fs := flag.NewFlagSet("ipblacklist", flag.ContinueOnError)
	portFlag := fs.Int("port", 0, "Port for the API server")
	settingsFlag := fs.String("settings", "", "Path to the settings file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	port := resolvePort("PORT", *portFlag, defaultPort)

	settingsPath := *settingsFlag
	if settingsPath == "" {
		settingsPath = support.GetEnv("SETTINGS_FILE", config.DefaultSettingsPath)
	}
	if _, err := config.ReadSettings(settingsPath); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	cfg := config.GetConfig()

	store := auth.NewKeyStore(credentials(cfg.APIKeys, support.GetEnv("API_KEYS", ""))...)
	if store.Len() == 0 {
		log.Warn("No API keys configured; every blacklist request will be rejected")
	} else {
		log.Info("API keys loaded", "clients", store.Len())
	}

	db, err := database.SetupDB()
	if err != nil {
		return err
	}
	defer closeDB(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := blacklist.NewRegistry(db, registryOptions(ctx)...)

	handler := server.NewRouter(server.Dependencies{
		Registry:  registry,
		Validator: auth.NewValidator(store),
		Limiter:   newLimiter(cfg.RateLimit),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, port, handler)
	})
	g.Go(func() error {
		<-gctx.Done()
		if err := support.CloseRedisClient(); err != nil {
			log.Warn("error closing redis client", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// credentials merges the settings file keys with API_KEYS ("id:secret,id2:secret2").
func credentials(keys []config.APIKey, env string) []auth.Credential {
	out := make([]auth.Credential, 0, len(keys))
	for _, k := range keys {
		out = append(out, auth.NewCredential(k.ClientID, k.SecretKey))
	}
	for _, raw := range support.SplitList(env) {
		c, ok := auth.ParseCredential(raw)
		if !ok {
			log.Warn("ignoring malformed API_KEYS item")
			continue
		}
		out = append(out, c)
	}
	return out
}

// registryOptions reads the settings stored by config.ReadSettings.
func registryOptions(ctx context.Context) []blacklist.Option {
	cfg := config.GetConfig()
	opts := []blacklist.Option{blacklist.WithPublisher(newPublisher(ctx, cfg))}
	if overlap := cfg.SyncOverlap(); overlap > 0 {
		opts = append(opts, blacklist.WithSyncOverlap(overlap))
	}
	return opts
}

func newPublisher(ctx context.Context, cfg config.Config) blacklist.EventPublisher {
	rdb, err := support.GetRedisClient(ctx)
	if err != nil {
		if !errors.Is(err, support.ErrRedisNotConfigured) {
			log.Warn("Redis unavailable, publishing blacklist events to the log", "error", err)
		}
		return blacklist.LogPublisher{}
	}

	channel := cfg.Events.Channel
	log.Info("Publishing blacklist events to redis", "channel", channel)
	return blacklist.NewRedisPublisher(rdb, channel)
}

// newLimiter returns nil when rate limiting is disabled. RATE_LIMIT_PER_MINUTE
// overrides the settings file.
func newLimiter(cfg config.RateLimitConfig) *server.RateLimiter {
	if perMinute := support.GetEnvInt("RATE_LIMIT_PER_MINUTE", -1); perMinute >= 0 {
		cfg.Requests = uint32(perMinute)
		cfg.Window = config.Timer{Minutes: 1}
	}

	limit, burst, ok := cfg.Limit()
	if !ok {
		return nil
	}
	log.Info("Rate limiting enabled", "requests", cfg.Requests, "window", config.CalculateBetweenTime(cfg.Window), "burst", burst)
	return server.NewRateLimiter(limit, burst)
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("error closing database", "error", err)
	}
}

func parseLevel(raw string) log.Level {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		log.Warn("invalid LOG_LEVEL, using info", "value", raw)
		return log.InfoLevel
	}
	return level
}

func resolvePort(envKey string, flagValue, fallback int) int {
	if flagValue > 0 {
		return flagValue
	}
	if port := readPort(envKey); port != 0 {
		return port
	}
	return fallback
}

func readPort(envKey string) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port == 0 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return 0
	}
	return port
}
