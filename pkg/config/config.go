// Package config holds the runtime configuration shared by the mintflow
// binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dukex/mintflow/pkg/ledger"
	"github.com/dukex/mintflow/pkg/minting"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"

	EventBusGoChannel = "gochannel"
	EventBusKafka     = "kafka"

	LockerMemory = "memory"
)

// Defaults used when neither a config file nor a flag sets a value.
const (
	DefaultLedgerCLI      = "cardano-cli"
	DefaultTestnetMagic   = 1097911063
	DefaultWorkDir        = "./data"
	DefaultDatabaseURL    = "file://./data/sessions"
	DefaultLedgerTimeout  = 2 * time.Minute
	DefaultIndexerURL     = "https://cardano-testnet.blockfrost.io/api/v0"
	DefaultIndexerTimeout = 10 * time.Second
	DefaultSweepSchedule  = "@every 1m"
)

// ErrInvalidConfig is returned when a configuration does not validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete runtime configuration.
type Config struct {
	LedgerCLI     string        `yaml:"ledger_cli"     validate:"required"`
	Network       string        `yaml:"network"        validate:"oneof=mainnet testnet"`
	TestnetMagic  uint32        `yaml:"testnet_magic"  validate:"required_if=Network testnet"`
	LedgerTimeout time.Duration `yaml:"ledger_timeout" validate:"min=1s"`

	WorkDir     string `yaml:"work_dir"     validate:"required"`
	DatabaseURL string `yaml:"database_url" validate:"required"`

	SlotMargin     uint64        `yaml:"slot_margin"     validate:"min=1"`
	MinFunding     uint64        `yaml:"min_funding"     validate:"min=1"`
	FeePadding     uint64        `yaml:"fee_padding"`
	MinOutput      uint64        `yaml:"min_output"`
	PollInterval   time.Duration `yaml:"poll_interval"   validate:"min=1ms"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout" validate:"min=0"`

	IndexerURL       string        `yaml:"indexer_url"        validate:"required,url"`
	IndexerProjectID string        `yaml:"indexer_project_id"`
	IndexerTimeout   time.Duration `yaml:"indexer_timeout"    validate:"min=1ms"`

	Locker       string   `yaml:"locker"        validate:"required"`
	EventBus     string   `yaml:"event_bus"     validate:"oneof=gochannel kafka"`
	KafkaBrokers []string `yaml:"kafka_brokers" validate:"required_if=EventBus kafka"`

	SweepSchedule string `yaml:"sweep_schedule" validate:"required"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	Tracing  bool   `yaml:"tracing"`
}

// Default returns the configuration used for a testnet deployment.
func Default() Config {
	defaults := minting.DefaultConfig()

	return Config{
		LedgerCLI:      DefaultLedgerCLI,
		Network:        NetworkTestnet,
		TestnetMagic:   DefaultTestnetMagic,
		LedgerTimeout:  DefaultLedgerTimeout,
		WorkDir:        DefaultWorkDir,
		DatabaseURL:    DefaultDatabaseURL,
		SlotMargin:     defaults.SlotMargin,
		MinFunding:     defaults.MinFunding,
		FeePadding:     defaults.FeePadding,
		MinOutput:      defaults.MinOutput,
		PollInterval:   defaults.PollInterval,
		IndexerURL:     DefaultIndexerURL,
		IndexerTimeout: DefaultIndexerTimeout,
		Locker:         LockerMemory,
		EventBus:       EventBusGoChannel,
		SweepSchedule:  DefaultSweepSchedule,
		LogLevel:       "info",
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return cfg, nil
}

// Validate checks every field.
func (c Config) Validate(validate *validator.Validate) error {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	err := validate.Struct(c)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Locker != LockerMemory && !strings.HasPrefix(c.Locker, "redis://") && !strings.HasPrefix(c.Locker, "rediss://") {
		return fmt.Errorf("%w: unsupported locker %q", ErrInvalidConfig, c.Locker)
	}

	return nil
}

// LedgerNetwork returns the network the ledger client talks to.
func (c Config) LedgerNetwork() ledger.Network {
	if c.Network == NetworkMainnet {
		return ledger.Network{Mainnet: true}
	}

	return ledger.Network{TestnetMagic: c.TestnetMagic}
}

// Minting returns the workflow tuning.
func (c Config) Minting() minting.Config {
	cfg := minting.DefaultConfig()
	cfg.SlotMargin = c.SlotMargin
	cfg.MinFunding = c.MinFunding
	cfg.FeePadding = c.FeePadding
	cfg.MinOutput = c.MinOutput
	cfg.PollInterval = c.PollInterval
	cfg.ConfirmTimeout = c.ConfirmTimeout

	return cfg
}
