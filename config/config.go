package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/ethtx/ethtx/chain"
	"github.com/ethtx/ethtx/compiler"
	"github.com/ethtx/ethtx/connection"
	"github.com/ethtx/ethtx/eth"
	ethlog "github.com/ethtx/ethtx/log"
	"github.com/ethtx/ethtx/metrics"
	"github.com/ethtx/ethtx/txmgr"
)

const DefaultEndpoint = "http://localhost:8545"

type GasConfig struct {
	Ceiling       uint64   `yaml:"ceiling" toml:"ceiling"`
	MarginPercent uint64   `yaml:"margin-percent" toml:"margin-percent"`
	TransferFloor uint64   `yaml:"transfer-floor" toml:"transfer-floor"`
	Price         *eth.ETH `yaml:"price" toml:"price"`
}

type SolcConfig struct {
	Path       string `yaml:"path" toml:"path"`
	Constraint string `yaml:"constraint" toml:"constraint"`
}

type Config struct {
	Version string `yaml:"-" toml:"-"`

	LogConfig     ethlog.CLIConfig  `yaml:"-" toml:"-"`
	MetricsConfig metrics.CLIConfig `yaml:"-" toml:"-"`

	Endpoint     string `yaml:"endpoint" toml:"endpoint"`
	Generation   string `yaml:"generation" toml:"generation"`
	DialAttempts uint   `yaml:"dial-attempts" toml:"dial-attempts"`

	PollInterval         time.Duration `yaml:"poll-interval" toml:"poll-interval"`
	ReceiptQueryInterval time.Duration `yaml:"receipt-query-interval" toml:"receipt-query-interval"`

	Gas  GasConfig  `yaml:"gas" toml:"gas"`
	Solc SolcConfig `yaml:"solc" toml:"solc"`
}

func DefaultConfig() *Config {
	return &Config{
		Version:              "dev",
		LogConfig:            ethlog.DefaultCLIConfig(),
		MetricsConfig:        metrics.DefaultCLIConfig(),
		Endpoint:             DefaultEndpoint,
		Generation:           chain.GenerationTyped.String(),
		DialAttempts:         1,
		PollInterval:         connection.DefaultPollInterval,
		ReceiptQueryInterval: chain.DefaultReceiptQueryInterval,
		Gas: GasConfig{
			Ceiling:       txmgr.DefaultGasCeiling,
			MarginPercent: txmgr.DefaultMarginPercent,
			TransferFloor: txmgr.DefaultGasPolicy().TransferFloor,
		},
		Solc: SolcConfig{
			Path:       compiler.DefaultSolcPath,
			Constraint: compiler.DefaultSolcConstraint,
		},
	}
}

func (c *Config) Check() error {
	var result error
	result = errors.Join(result, c.LogConfig.Check())
	result = errors.Join(result, c.MetricsConfig.Check())
	if c.Endpoint == "" {
		result = errors.Join(result, errors.New("endpoint is required"))
	}
	if _, err := chain.ParseGeneration(c.Generation); err != nil {
		result = errors.Join(result, err)
	}
	if c.DialAttempts == 0 {
		result = errors.Join(result, errors.New("dial attempts must be at least 1"))
	}
	if c.PollInterval <= 0 {
		result = errors.Join(result, errors.New("poll interval must be positive"))
	}
	if c.ReceiptQueryInterval <= 0 {
		result = errors.Join(result, errors.New("receipt query interval must be positive"))
	}
	result = errors.Join(result, c.GasPolicy().Check())
	return result
}

// ChainGeneration parses the configured client generation.
func (c *Config) ChainGeneration() (chain.Generation, error) {
	return chain.ParseGeneration(c.Generation)
}

func (c *Config) GasPolicy() txmgr.GasPolicy {
	policy := txmgr.GasPolicy{
		Ceiling:       c.Gas.Ceiling,
		Margin:        txmgr.PercentMargin(c.Gas.MarginPercent),
		TransferFloor: c.Gas.TransferFloor,
	}
	if c.Gas.Price != nil {
		policy.GasPrice = c.Gas.Price.ToBig()
	}
	return policy
}

// LoadFile overlays the settings of a YAML or TOML file, chosen by extension.
// Unknown keys are rejected.
func (c *Config) LoadFile(fs afero.Fs, path string) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(c)
		if err != nil {
			return fmt.Errorf("failed to decode config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys in config %s: %v", path, undecoded)
		}
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	return nil
}
