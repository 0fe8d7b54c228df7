package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/uhyunpark/deeppool/pkg/app/core/asset"
	"github.com/uhyunpark/deeppool/pkg/app/core/oracle"
	"github.com/uhyunpark/deeppool/pkg/app/core/pool"
)

type Node struct {
	APIAddr  string `yaml:"api_addr"`
	DataDir  string `yaml:"data_dir"` // empty: keep everything in memory
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
	// WALFile receives one JSON line per persisted event. Empty disables it.
	WALFile string `yaml:"wal_file"`
	// Operator may feed price points and stage next-epoch parameters.
	Operator string `yaml:"operator"`
}

// Pool holds the defaults applied to create_pool requests and bootstrap
// pools that omit a field.
type Pool struct {
	TakerFee      uint64 `yaml:"taker_fee"`
	MakerFee      uint64 `yaml:"maker_fee"`
	TickSize      uint64 `yaml:"tick_size"`
	LotSize       uint64 `yaml:"lot_size"`
	StakeRequired uint64 `yaml:"stake_required"`
}

// BootstrapPool is a pool created at startup. Omitted numeric fields take
// the pool defaults; an explicit zero is kept and validated as given.
type BootstrapPool struct {
	Base          string  `yaml:"base"`
	Quote         string  `yaml:"quote"`
	TickSize      *uint64 `yaml:"tick_size"`
	LotSize       *uint64 `yaml:"lot_size"`
	TakerFee      *uint64 `yaml:"taker_fee"`
	MakerFee      *uint64 `yaml:"maker_fee"`
	StakeRequired *uint64 `yaml:"stake_required"`
}

type Oracle struct {
	Window int `yaml:"window"`
}

type Registry struct {
	CreationFee uint64 `yaml:"creation_fee"`
	FeeAsset    string `yaml:"fee_asset"`
	Treasury    string `yaml:"treasury"`
}

type Epoch struct {
	Duration time.Duration `yaml:"duration"`
	// Genesis is the start of epoch 0.
	Genesis time.Time `yaml:"genesis"`
}

type API struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	// Faucet enables unsigned deposits for development.
	Faucet bool `yaml:"faucet"`
}

type Config struct {
	Node     Node     `yaml:"node"`
	Pool     Pool     `yaml:"pool"`
	Oracle   Oracle   `yaml:"oracle"`
	Registry Registry `yaml:"registry"`
	Epoch    Epoch    `yaml:"epoch"`
	API      API      `yaml:"api"`
	// Pools are created at startup by the operator when not yet present.
	Pools []BootstrapPool `yaml:"pools"`
}

func Default() Config {
	return Config{
		Node: Node{
			APIAddr:  ":8080",
			DataDir:  "data",
			LogFile:  "data/node.log",
			LogLevel: "info",
		},
		Pool: Pool{
			TakerFee:      1_000_000, // 10 bps
			MakerFee:      500_000,   // 5 bps
			TickSize:      1,
			LotSize:       1,
			StakeRequired: 100 * asset.FloatScaling,
		},
		Oracle: Oracle{Window: oracle.DefaultWindow},
		Registry: Registry{
			CreationFee: 500 * asset.FloatScaling,
			FeeAsset:    "DEEP",
			Treasury:    "0x0000000000000000000000000000000000000fee",
		},
		Epoch: Epoch{
			Duration: 24 * time.Hour,
			Genesis:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		API: API{
			AllowedOrigins: []string{"*"},
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()
	loadDotEnv(envPath)
	applyEnv(&cfg)
	return cfg
}

// LoadFile loads a YAML config file over the defaults, then applies .env and
// environment overrides.
// Priority: ENV > .env file > YAML file > defaults
func LoadFile(path, envPath string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	loadDotEnv(envPath)
	applyEnv(&cfg)
	return cfg, nil
}

func loadDotEnv(envPath string) {
	// Optional - won't fail if not exists
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}
}

func applyEnv(cfg *Config) {
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	cfg.Node.WALFile = getEnv("WAL_FILE", cfg.Node.WALFile)
	cfg.Node.Operator = getEnv("OPERATOR_ADDRESS", cfg.Node.Operator)

	setUint(&cfg.Pool.TakerFee, "POOL_TAKER_FEE")
	setUint(&cfg.Pool.MakerFee, "POOL_MAKER_FEE")
	setUint(&cfg.Pool.TickSize, "POOL_TICK_SIZE")
	setUint(&cfg.Pool.LotSize, "POOL_LOT_SIZE")
	setUint(&cfg.Pool.StakeRequired, "POOL_STAKE_REQUIRED")

	if w := os.Getenv("ORACLE_WINDOW"); w != "" {
		if n, err := strconv.Atoi(w); err == nil {
			cfg.Oracle.Window = n
		}
	}

	setUint(&cfg.Registry.CreationFee, "REGISTRY_CREATION_FEE")
	cfg.Registry.FeeAsset = getEnv("REGISTRY_FEE_ASSET", cfg.Registry.FeeAsset)
	cfg.Registry.Treasury = getEnv("REGISTRY_TREASURY", cfg.Registry.Treasury)

	if d := os.Getenv("EPOCH_DURATION"); d != "" {
		if dur, err := time.ParseDuration(d); err == nil {
			cfg.Epoch.Duration = dur
		}
	}
	if g := os.Getenv("EPOCH_GENESIS"); g != "" {
		if ts, err := time.Parse(time.RFC3339, g); err == nil {
			cfg.Epoch.Genesis = ts
		}
	}

	// Origins from comma-separated list
	if origins := os.Getenv("API_ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = strings.Split(origins, ",")
	}
	if faucet := os.Getenv("API_FAUCET"); faucet != "" {
		cfg.API.Faucet = faucet == "true"
	}
}

// Validate checks values the node cannot start with.
func (c Config) Validate() error {
	if c.Epoch.Duration <= 0 {
		return fmt.Errorf("epoch duration must be positive, got %s", c.Epoch.Duration)
	}
	if c.Oracle.Window <= 0 {
		return fmt.Errorf("oracle window must be positive, got %d", c.Oracle.Window)
	}
	if err := pool.ValidateSymbol(c.Registry.FeeAsset); err != nil {
		return fmt.Errorf("registry fee asset: %w", err)
	}
	if !common.IsHexAddress(c.Registry.Treasury) {
		return fmt.Errorf("registry treasury %q is not an address", c.Registry.Treasury)
	}
	if c.Node.Operator != "" && !common.IsHexAddress(c.Node.Operator) {
		return fmt.Errorf("operator %q is not an address", c.Node.Operator)
	}
	for i := range c.Pools {
		if err := c.PoolConfig(c.Pools[i]).Validate(); err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
	}
	return nil
}

// PoolDefaults is the pool configuration used for every omitted field.
func (c Config) PoolDefaults() pool.Config {
	return pool.Config{
		FeeAsset:      c.Registry.FeeAsset,
		TickSize:      c.Pool.TickSize,
		LotSize:       c.Pool.LotSize,
		TakerFee:      c.Pool.TakerFee,
		MakerFee:      c.Pool.MakerFee,
		StakeRequired: c.Pool.StakeRequired,
		OracleWindow:  c.Oracle.Window,
	}
}

// PoolConfig resolves a bootstrap entry against the pool defaults.
func (c Config) PoolConfig(b BootstrapPool) pool.Config {
	p := c.PoolDefaults()
	p.Base, p.Quote = b.Base, b.Quote
	set := func(dst *uint64, src *uint64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.TickSize, b.TickSize)
	set(&p.LotSize, b.LotSize)
	set(&p.TakerFee, b.TakerFee)
	set(&p.MakerFee, b.MakerFee)
	set(&p.StakeRequired, b.StakeRequired)
	return p
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setUint(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
