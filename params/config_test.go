package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "POOL_MAKER_FEE=250000\nEPOCH_DURATION=1h\nAPI_ALLOWED_ORIGINS=http://a,http://b\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	// Real environment wins over .env
	t.Setenv("EPOCH_DURATION", "30m")
	t.Setenv("API_FAUCET", "true")

	cfg := LoadFromEnv(envPath)

	if cfg.Pool.MakerFee != 250_000 {
		t.Errorf("Expected maker fee from .env, got %d", cfg.Pool.MakerFee)
	}
	if cfg.Epoch.Duration != 30*time.Minute {
		t.Errorf("Expected epoch duration from ENV, got %s", cfg.Epoch.Duration)
	}
	if len(cfg.API.AllowedOrigins) != 2 || cfg.API.AllowedOrigins[1] != "http://b" {
		t.Errorf("Unexpected origins %v", cfg.API.AllowedOrigins)
	}
	if !cfg.API.Faucet {
		t.Errorf("Expected faucet enabled")
	}
	// Untouched values keep defaults
	if cfg.Pool.TakerFee != Default().Pool.TakerFee {
		t.Errorf("Expected default taker fee, got %d", cfg.Pool.TakerFee)
	}
	os.Unsetenv("POOL_MAKER_FEE")
	os.Unsetenv("API_ALLOWED_ORIGINS")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	content := `
node:
  api_addr: ":9090"
  data_dir: ""
epoch:
  duration: 2h
oracle:
  window: 10
registry:
  creation_fee: 42
pools:
  - base: SUI
    quote: USDC
  - base: DEEP
    quote: USDC
    tick_size: 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Node.APIAddr != ":9090" || cfg.Node.DataDir != "" {
		t.Errorf("Unexpected node section %+v", cfg.Node)
	}
	if cfg.Epoch.Duration != 2*time.Hour {
		t.Errorf("Expected 2h epochs, got %s", cfg.Epoch.Duration)
	}
	if cfg.Registry.CreationFee != 42 || cfg.Registry.FeeAsset != "DEEP" {
		t.Errorf("Unexpected registry section %+v", cfg.Registry)
	}
	if len(cfg.Pools) != 2 {
		t.Fatalf("Expected 2 bootstrap pools, got %d", len(cfg.Pools))
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	deep := cfg.PoolConfig(cfg.Pools[1])
	if deep.TickSize != 10 || deep.LotSize != 1 || deep.FeeAsset != "DEEP" || deep.OracleWindow != 10 {
		t.Errorf("Unexpected filled pool config %+v", deep)
	}
}

func TestBootstrapPoolExplicitZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	content := `
pools:
  - base: SUI
    quote: USDC
    maker_fee: 0
    taker_fee: 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path, filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	pc := cfg.PoolConfig(cfg.Pools[0])
	if pc.MakerFee != 0 || pc.TakerFee != 0 {
		t.Errorf("Expected explicit zero fees kept, got maker=%d taker=%d", pc.MakerFee, pc.TakerFee)
	}
	if pc.TickSize != cfg.Pool.TickSize || pc.StakeRequired != cfg.Pool.StakeRequired {
		t.Errorf("Expected omitted fields from defaults, got %+v", pc)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), ""); err == nil {
		t.Errorf("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("epoch: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path, ""); err == nil {
		t.Errorf("Expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero epoch", func(c *Config) { c.Epoch.Duration = 0 }},
		{"zero window", func(c *Config) { c.Oracle.Window = 0 }},
		{"bad fee asset", func(c *Config) { c.Registry.FeeAsset = "" }},
		{"bad treasury", func(c *Config) { c.Registry.Treasury = "treasury" }},
		{"bad operator", func(c *Config) { c.Node.Operator = "0x12" }},
		{"zero bootstrap tick", func(c *Config) {
			c.Pools = []BootstrapPool{{Base: "SUI", Quote: "USDC", TickSize: new(uint64)}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}
}
