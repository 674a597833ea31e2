package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/elmoxbt/x402-defi-yield-api/internal/model"
)

// GlobalFlags carries raw command line values before layering.
type GlobalFlags struct {
	ConfigPath string
	ListenAddr string
	LogLevel   string
	UseMock    bool
}

// Settings is the fully resolved service configuration. Precedence is
// defaults < config file < environment < flags.
type Settings struct {
	ListenAddr      string
	ShutdownTimeout time.Duration

	LogLevel string
	LogFile  string

	// Payment gating.
	PayTo           string
	AssetMint       string
	AssetDecimals   int
	Network         model.Network
	RoutePrices     map[string]uint64 // route name -> amount in base units
	AllowTestBypass bool

	// Solana RPC.
	RPCEndpoint string
	RPCTimeout  time.Duration

	// Pyth Hermes price service.
	OracleBaseURL string

	// Yield providers.
	ProviderTimeout time.Duration
	ProviderRetries int
	UseMockData     bool

	// Replay protection store.
	ReplayDBPath   string
	ReplayLockPath string
	ReplayTTL      time.Duration
}

// PaymentSettings is the payment-gating slice of Settings, handed to the
// gateway so it never sees unrelated configuration.
type PaymentSettings struct {
	PayTo           string
	AssetMint       string
	AssetDecimals   int
	Network         model.Network
	RoutePrices     map[string]uint64
	AllowTestBypass bool
}

func (s Settings) Payment() PaymentSettings {
	return PaymentSettings{
		PayTo:           s.PayTo,
		AssetMint:       s.AssetMint,
		AssetDecimals:   s.AssetDecimals,
		Network:         s.Network,
		RoutePrices:     s.RoutePrices,
		AllowTestBypass: s.AllowTestBypass,
	}
}

type fileConfig struct {
	Listen  string `yaml:"listen"`
	Log     struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Payment struct {
		PayTo           string            `yaml:"pay_to"`
		AssetMint       string            `yaml:"asset_mint"`
		AssetDecimals   *int              `yaml:"asset_decimals"`
		Network         string            `yaml:"network"`
		RoutePrices     map[string]uint64 `yaml:"route_prices"`
		AllowTestBypass *bool             `yaml:"allow_test_bypass"`
	} `yaml:"payment"`
	RPC struct {
		Endpoint string `yaml:"endpoint"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"rpc"`
	Oracle struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"oracle"`
	Providers struct {
		Timeout string `yaml:"timeout"`
		Retries *int   `yaml:"retries"`
		UseMock *bool  `yaml:"use_mock"`
	} `yaml:"providers"`
	Replay struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		TTL      string `yaml:"ttl"`
	} `yaml:"replay"`
}

// Default per-request prices in USDC base units (6 decimals).
const (
	defaultBestYieldPrice = 10_000 // $0.01
	defaultPortfolioPrice = 50_000 // $0.05
	defaultRiskPrice      = 30_000 // $0.03
	defaultIntelPrice     = 50_000 // $0.05
)

// USDC mainnet mint, the default billing asset.
const defaultAssetMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func Load(flags GlobalFlags) (Settings, error) {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)
	applyFlags(flags, &settings)

	if settings.RPCTimeout <= 0 {
		settings.RPCTimeout = 10 * time.Second
	}
	if settings.ProviderTimeout <= 0 {
		settings.ProviderTimeout = 4 * time.Second
	}
	if settings.ProviderRetries < 0 {
		settings.ProviderRetries = 0
	}
	if strings.TrimSpace(settings.PayTo) == "" && !settings.UseMockData {
		return Settings{}, errors.New("payment recipient wallet is required (PAYMENT_PAY_TO)")
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	replayPath, lockPath, err := defaultReplayPaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		ListenAddr:      ":8080",
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		AssetMint:       defaultAssetMint,
		AssetDecimals:   6,
		Network:         model.NetworkMainnet,
		RoutePrices: map[string]uint64{
			"best-yield":          defaultBestYieldPrice,
			"portfolio-analytics": defaultPortfolioPrice,
			"risk-score":          defaultRiskPrice,
			"defi-intel":          defaultIntelPrice,
		},
		AllowTestBypass: false,
		RPCEndpoint:     "https://api.mainnet-beta.solana.com",
		RPCTimeout:      10 * time.Second,
		OracleBaseURL:   "https://hermes.pyth.network",
		ProviderTimeout: 4 * time.Second,
		ProviderRetries: 1,
		ReplayDBPath:    replayPath,
		ReplayLockPath:  lockPath,
		ReplayTTL:       30 * 24 * time.Hour,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "x402-yield-api", "config.yaml"), nil
}

func defaultReplayPaths() (string, string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	dir := filepath.Join(base, "x402-yield-api")
	return filepath.Join(dir, "replay.db"), filepath.Join(dir, "replay.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Listen != "" {
		settings.ListenAddr = cfg.Listen
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = cfg.Log.Level
	}
	if cfg.Log.File != "" {
		settings.LogFile = cfg.Log.File
	}
	if cfg.Payment.PayTo != "" {
		settings.PayTo = cfg.Payment.PayTo
	}
	if cfg.Payment.AssetMint != "" {
		settings.AssetMint = cfg.Payment.AssetMint
	}
	if cfg.Payment.AssetDecimals != nil {
		settings.AssetDecimals = *cfg.Payment.AssetDecimals
	}
	if cfg.Payment.Network != "" {
		network, err := parseNetwork(cfg.Payment.Network)
		if err != nil {
			return err
		}
		settings.Network = network
	}
	for route, amount := range cfg.Payment.RoutePrices {
		settings.RoutePrices[route] = amount
	}
	if cfg.Payment.AllowTestBypass != nil {
		settings.AllowTestBypass = *cfg.Payment.AllowTestBypass
	}
	if cfg.RPC.Endpoint != "" {
		settings.RPCEndpoint = cfg.RPC.Endpoint
	}
	if cfg.RPC.Timeout != "" {
		d, err := time.ParseDuration(cfg.RPC.Timeout)
		if err != nil {
			return fmt.Errorf("config rpc.timeout: %w", err)
		}
		settings.RPCTimeout = d
	}
	if cfg.Oracle.BaseURL != "" {
		settings.OracleBaseURL = cfg.Oracle.BaseURL
	}
	if cfg.Providers.Timeout != "" {
		d, err := time.ParseDuration(cfg.Providers.Timeout)
		if err != nil {
			return fmt.Errorf("config providers.timeout: %w", err)
		}
		settings.ProviderTimeout = d
	}
	if cfg.Providers.Retries != nil {
		settings.ProviderRetries = *cfg.Providers.Retries
	}
	if cfg.Providers.UseMock != nil {
		settings.UseMockData = *cfg.Providers.UseMock
	}
	if cfg.Replay.Path != "" {
		settings.ReplayDBPath = cfg.Replay.Path
	}
	if cfg.Replay.LockPath != "" {
		settings.ReplayLockPath = cfg.Replay.LockPath
	}
	if cfg.Replay.TTL != "" {
		d, err := time.ParseDuration(cfg.Replay.TTL)
		if err != nil {
			return fmt.Errorf("config replay.ttl: %w", err)
		}
		settings.ReplayTTL = d
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		settings.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		settings.LogFile = v
	}
	if v := os.Getenv("PAYMENT_PAY_TO"); v != "" {
		settings.PayTo = v
	}
	if v := os.Getenv("PAYMENT_ASSET_MINT"); v != "" {
		settings.AssetMint = v
	}
	if v := os.Getenv("PAYMENT_ASSET_DECIMALS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.AssetDecimals = n
		}
	}
	if v := os.Getenv("PAYMENT_NETWORK"); v != "" {
		if network, err := parseNetwork(v); err == nil {
			settings.Network = network
		}
	}
	if v := os.Getenv("PAYMENT_TEST_BYPASS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.AllowTestBypass = b
		}
	}
	if v := os.Getenv("SOLANA_RPC_ENDPOINT"); v != "" {
		settings.RPCEndpoint = v
	}
	if v := os.Getenv("SOLANA_RPC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.RPCTimeout = d
		}
	}
	if v := os.Getenv("PYTH_HERMES_URL"); v != "" {
		settings.OracleBaseURL = v
	}
	if v := os.Getenv("PROVIDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.ProviderTimeout = d
		}
	}
	if v := os.Getenv("PROVIDER_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.ProviderRetries = n
		}
	}
	if v := os.Getenv("USE_MOCK_DATA"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.UseMockData = b
		}
	}
	if v := os.Getenv("REPLAY_DB_PATH"); v != "" {
		settings.ReplayDBPath = v
	}
	if v := os.Getenv("REPLAY_LOCK_PATH"); v != "" {
		settings.ReplayLockPath = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) {
	if flags.ListenAddr != "" {
		settings.ListenAddr = flags.ListenAddr
	}
	if flags.LogLevel != "" {
		settings.LogLevel = flags.LogLevel
	}
	if flags.UseMock {
		settings.UseMockData = true
	}
}

func parseNetwork(v string) (model.Network, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "solana", "mainnet", "mainnet-beta":
		return model.NetworkMainnet, nil
	case "solana-devnet", "devnet":
		return model.NetworkDevnet, nil
	default:
		return "", fmt.Errorf("unsupported payment network %q", v)
	}
}
