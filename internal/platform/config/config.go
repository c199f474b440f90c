package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultCommerceTimeout        = 10 * time.Second
	defaultCommerceBreakerWindow  = 30 * time.Second
	defaultCommerceBreakerCooloff = 20 * time.Second

	defaultCalcTimeout        = 12 * time.Second
	defaultLowStockThreshold  = 3
	defaultAutoApplyDebounce  = 800 * time.Millisecond
	defaultPlacementAttempts  = 3
	defaultPlacementBaseDelay = 500 * time.Millisecond
	defaultPlacementTimeout   = 15 * time.Second
	defaultAvailabilityTTL    = 2 * time.Minute
	defaultSessionTTL         = 2 * time.Hour
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Commerce CommerceConfig
	Payments PaymentsConfig
	Checkout CheckoutConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// CommerceConfig points at the remote commerce backend.
type CommerceConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	BreakerWindow  time.Duration
	BreakerCooloff time.Duration
}

// PaymentsConfig collects payment provider credentials.
type PaymentsConfig struct {
	StripeAPIKey     string
	SuccessURL       string
	CancelURL        string
	SessionExpiresIn time.Duration
}

// CheckoutConfig groups the checkout orchestration tunables.
type CheckoutConfig struct {
	// CalculationTimeout bounds a single recalculation round-trip.
	CalculationTimeout time.Duration
	// LowStockThreshold is the minimum-remaining-units figure at or below
	// which a branch is presented as "limited".
	LowStockThreshold int
	// AutoApplyDebounce delays auto-apply promotion selection while the
	// subtotal is still settling.
	AutoApplyDebounce time.Duration
	// PlacementAttempts bounds order-creation retries.
	PlacementAttempts int
	// PlacementBaseDelay seeds the exponential backoff between attempts.
	PlacementBaseDelay time.Duration
	// PlacementTimeout bounds each order-creation attempt.
	PlacementTimeout time.Duration
	// AvailabilityTTL bounds how long a branch stock-check result is reused
	// for an identical cart/branch signature.
	AvailabilityTTL time.Duration
	// SessionTTL expires idle checkout sessions.
	SessionTTL time.Duration
	// DefaultDeliveryFee is the terminal fallback in the delivery-fee
	// precedence chain.
	DefaultDeliveryFee float64
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env
// overrides, and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "CHECKOUT_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "CHECKOUT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "CHECKOUT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "CHECKOUT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Commerce: CommerceConfig{
			BaseURL:        stringWithDefault(lookup, "CHECKOUT_COMMERCE_BASE_URL", ""),
			APIKey:         stringWithDefault(lookup, "CHECKOUT_COMMERCE_API_KEY", ""),
			Timeout:        durationWithDefault(lookup, "CHECKOUT_COMMERCE_TIMEOUT", defaultCommerceTimeout),
			BreakerWindow:  durationWithDefault(lookup, "CHECKOUT_COMMERCE_BREAKER_WINDOW", defaultCommerceBreakerWindow),
			BreakerCooloff: durationWithDefault(lookup, "CHECKOUT_COMMERCE_BREAKER_COOLOFF", defaultCommerceBreakerCooloff),
		},
		Payments: PaymentsConfig{
			StripeAPIKey:     stringWithDefault(lookup, "CHECKOUT_PAYMENTS_STRIPE_API_KEY", ""),
			SuccessURL:       stringWithDefault(lookup, "CHECKOUT_PAYMENTS_SUCCESS_URL", ""),
			CancelURL:        stringWithDefault(lookup, "CHECKOUT_PAYMENTS_CANCEL_URL", ""),
			SessionExpiresIn: durationWithDefault(lookup, "CHECKOUT_PAYMENTS_SESSION_EXPIRY", 30*time.Minute),
		},
		Checkout: CheckoutConfig{
			CalculationTimeout: durationWithDefault(lookup, "CHECKOUT_CALC_TIMEOUT", defaultCalcTimeout),
			LowStockThreshold:  intWithDefault(lookup, "CHECKOUT_LOW_STOCK_THRESHOLD", defaultLowStockThreshold),
			AutoApplyDebounce:  durationWithDefault(lookup, "CHECKOUT_AUTO_APPLY_DEBOUNCE", defaultAutoApplyDebounce),
			PlacementAttempts:  intWithDefault(lookup, "CHECKOUT_PLACEMENT_ATTEMPTS", defaultPlacementAttempts),
			PlacementBaseDelay: durationWithDefault(lookup, "CHECKOUT_PLACEMENT_BASE_DELAY", defaultPlacementBaseDelay),
			PlacementTimeout:   durationWithDefault(lookup, "CHECKOUT_PLACEMENT_TIMEOUT", defaultPlacementTimeout),
			AvailabilityTTL:    durationWithDefault(lookup, "CHECKOUT_AVAILABILITY_TTL", defaultAvailabilityTTL),
			SessionTTL:         durationWithDefault(lookup, "CHECKOUT_SESSION_TTL", defaultSessionTTL),
			DefaultDeliveryFee: floatWithDefault(lookup, "CHECKOUT_DEFAULT_DELIVERY_FEE", 0),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Server.Port) == "" {
		return errors.New("config: server port is required")
	}
	if cfg.Checkout.PlacementAttempts <= 0 {
		return errors.New("config: placement attempts must be positive")
	}
	if cfg.Checkout.LowStockThreshold < 0 {
		return errors.New("config: low stock threshold cannot be negative")
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
