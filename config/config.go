package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"stashbox/crypto"

	"github.com/BurntSushi/toml"
)

// Default bounds cover the venue's full usable range.
const (
	DefaultLowerBound = -887220
	DefaultUpperBound = 887220
)

type Config struct {
	RPCAddress           string            `toml:"RPCAddress"`
	DataDir              string            `toml:"DataDir"`
	NetworkName          string            `toml:"NetworkName"`
	LogFile              string            `toml:"LogFile,omitempty"`
	OperatorKeystorePath string            `toml:"OperatorKeystorePath"`
	AdminAddress         string            `toml:"AdminAddress"`
	PositionLowerBound   int32             `toml:"PositionLowerBound"`
	PositionUpperBound   int32             `toml:"PositionUpperBound"`
	RateLimitPerSecond   float64           `toml:"RateLimitPerSecond"`
	RateLimitBurst       int               `toml:"RateLimitBurst"`
	DevAllocations       map[string]string `toml:"DevAllocations,omitempty"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.AdminAddress) == "" {
		if err := ensureOperator(path, cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the address and bound fields for obvious mistakes.
func (cfg *Config) Validate() error {
	if _, err := crypto.DecodeAddress(cfg.AdminAddress); err != nil {
		return fmt.Errorf("config: AdminAddress: %w", err)
	}
	if cfg.PositionLowerBound >= cfg.PositionUpperBound {
		return fmt.Errorf("config: position bounds %d..%d invalid", cfg.PositionLowerBound, cfg.PositionUpperBound)
	}
	for addr := range cfg.DevAllocations {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("config: DevAllocations key %q: %w", addr, err)
		}
	}
	return nil
}

// Admin returns the decoded admin address. Validate must have succeeded first.
func (cfg *Config) Admin() crypto.Address {
	addr, err := crypto.DecodeAddress(cfg.AdminAddress)
	if err != nil {
		return crypto.Address{}
	}
	return addr
}

// Allocations parses DevAllocations into base-unit amounts keyed by bech32
// address.
func (cfg *Config) Allocations() (map[string]*big.Int, error) {
	out := make(map[string]*big.Int, len(cfg.DevAllocations))
	for addr, raw := range cfg.DevAllocations {
		amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
		if !ok || amount.Sign() < 0 {
			return nil, fmt.Errorf("config: DevAllocations[%s]: invalid amount %q", addr, raw)
		}
		out[addr] = amount
	}
	return out, nil
}

// ensureOperator generates an operator keystore on first start and pins the
// derived address as the pool admin.
func ensureOperator(configPath string, cfg *Config) error {
	keystorePath := cfg.OperatorKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
		cfg.AdminAddress = key.PubKey().Address().String()
	} else if err != nil {
		return err
	} else {
		key, loadErr := crypto.LoadFromKeystore(keystorePath, "")
		if loadErr != nil {
			return loadErr
		}
		cfg.AdminAddress = key.PubKey().Address().String()
	}

	cfg.OperatorKeystorePath = keystorePath
	return persist(configPath, cfg)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	admin := key.PubKey().Address()
	cfg := &Config{
		RPCAddress:           ":8080",
		DataDir:              "./stash-data",
		NetworkName:          "stashbox-local",
		OperatorKeystorePath: keystorePath,
		AdminAddress:         admin.String(),
		PositionLowerBound:   DefaultLowerBound,
		PositionUpperBound:   DefaultUpperBound,
		RateLimitPerSecond:   50,
		RateLimitBurst:       100,
		DevAllocations: map[string]string{
			admin.String(): "1000000000000000000000000",
		},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./stash-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "stashbox-local"
	}
	if cfg.PositionLowerBound == 0 && cfg.PositionUpperBound == 0 {
		cfg.PositionLowerBound = DefaultLowerBound
		cfg.PositionUpperBound = DefaultUpperBound
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 50
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}
