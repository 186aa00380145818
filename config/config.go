package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type InventoryBackend string

const (
	InventoryPostgres InventoryBackend = "postgres"
	InventoryMemory   InventoryBackend = "memory"
)

type Config struct {
	HTTPAddr     string
	RedisAddr    string
	PostgresURL  string
	GatewayAddr  string
	JaegerURL    string
	Inventory    InventoryBackend
	TelegramBot  string
	AdminChatIDs []int64
	// TelegramDebug logs every bot API request.
	TelegramDebug bool

	InactivityTimeout    time.Duration
	TimeoutRetryInterval time.Duration
	// HoldSweepInterval is how often holds left behind by sessions that no
	// longer exist are released.
	HoldSweepInterval time.Duration
	CatalogMaxAge     time.Duration
	OutboundPerSecond int64

	ClientsSheet        string
	SeatLedgerSheet     string
	PaymentReviewsSheet string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; real variables win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("could not load .env: %w", err)
	}

	var err error
	cfg := Config{
		HTTPAddr:            envStr("HTTP_ADDR", ":8080"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		PostgresURL:         os.Getenv("POSTGRES_URL"),
		GatewayAddr:         os.Getenv("GATEWAY_ADDR"),
		Inventory:           InventoryBackend(envStr("INVENTORY_BACKEND", string(InventoryPostgres))),
		TelegramBot:         os.Getenv("TELEGRAM_TOKEN"),
		ClientsSheet:        envStr("CLIENTS_SHEET", "clients"),
		SeatLedgerSheet:     envStr("SEAT_LEDGER_SHEET", "seat-ledger"),
		PaymentReviewsSheet: envStr("PAYMENT_REVIEWS_SHEET", "payment-reviews"),
	}
	cfg.JaegerURL = envStr("JAEGER_ENDPOINT", cfg.GatewayAddr+"/jaeger-api/api/traces")

	if cfg.InactivityTimeout, err = envDur("INACTIVITY_TIMEOUT", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.TimeoutRetryInterval, err = envDur("TIMEOUT_RETRY_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.HoldSweepInterval, err = envDur("HOLD_SWEEP_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.CatalogMaxAge, err = envDur("CATALOG_MAX_AGE", time.Minute); err != nil {
		return Config{}, err
	}

	perSecond, err := envInt("OUTBOUND_PER_SECOND", 25)
	if err != nil {
		return Config{}, err
	}
	cfg.OutboundPerSecond = int64(perSecond)

	if cfg.TelegramDebug, err = envBool("TELEGRAM_DEBUG", false); err != nil {
		return Config{}, err
	}

	if cfg.AdminChatIDs, err = parseChatIDs(os.Getenv("ADMIN_CHAT_IDS")); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.Inventory {
	case InventoryPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required for the %s inventory", c.Inventory)
		}
	case InventoryMemory:
	default:
		return fmt.Errorf("unknown INVENTORY_BACKEND %q", c.Inventory)
	}

	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if len(c.AdminChatIDs) == 0 {
		logrus.Warn("ADMIN_CHAT_IDS is empty, payment proofs will not reach anyone")
	}

	return nil
}

// HoldLease is how long a hold outlives the last activity of its session.
// It ends after the inactivity timeout had its chance to release the hold.
func (c Config) HoldLease() time.Duration {
	return c.InactivityTimeout + c.TimeoutRetryInterval
}

func parseChatIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q in ADMIN_CHAT_IDS: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return n, nil
}

func envDur(k string, d time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("%s must be positive", k)
	}
	return dur, nil
}

func envBool(k string, d bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", k, err)
	}
	return b, nil
}
