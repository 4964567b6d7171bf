package config

import (
	"time"

	"github.com/dukex/mintflow/pkg/channels/kafka"
	cli "github.com/urfave/cli/v3"
)

// Flags returns the command line flags mapped onto Config. Each flag can also
// be set through its environment variable.
func Flags() []cli.Flag {
	defaults := Default()

	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to a YAML configuration file",
			Sources: cli.EnvVars("MINTFLOW_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "ledger-cli",
			Usage:   "Path to the ledger client binary",
			Value:   defaults.LedgerCLI,
			Sources: cli.EnvVars("CARDANO_CLI"),
		},
		&cli.StringFlag{
			Name:    "network",
			Usage:   "Ledger network (mainnet, testnet)",
			Value:   defaults.Network,
			Sources: cli.EnvVars("NETWORK"),
		},
		&cli.Uint64Flag{
			Name:    "testnet-magic",
			Usage:   "Network magic of the test network",
			Value:   uint64(defaults.TestnetMagic),
			Sources: cli.EnvVars("TESTNET_ID"),
		},
		&cli.DurationFlag{
			Name:    "ledger-timeout",
			Usage:   "Maximum duration of one ledger client invocation",
			Value:   defaults.LedgerTimeout,
			Sources: cli.EnvVars("LEDGER_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "work-dir",
			Usage:   "Directory holding keys and transaction files",
			Value:   defaults.WorkDir,
			Sources: cli.EnvVars("WORK_DIR"),
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Session store URL (file://dir or postgres://...)",
			Value:   defaults.DatabaseURL,
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.Uint64Flag{
			Name:    "slot-margin",
			Usage:   "Length of the validity window in slots",
			Value:   defaults.SlotMargin,
			Sources: cli.EnvVars("SLOT_MARGIN"),
		},
		&cli.Uint64Flag{
			Name:    "min-funding",
			Usage:   "Smallest accepted funding output in lovelace",
			Value:   defaults.MinFunding,
			Sources: cli.EnvVars("MIN_FUNDING"),
		},
		&cli.Uint64Flag{
			Name:    "fee-padding",
			Usage:   "Lovelace added to the computed minimum fee",
			Value:   defaults.FeePadding,
			Sources: cli.EnvVars("FEE_PADDING"),
		},
		&cli.Uint64Flag{
			Name:    "min-output",
			Usage:   "Smallest lovelace value of the returned output",
			Value:   defaults.MinOutput,
			Sources: cli.EnvVars("MIN_OUTPUT"),
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "Pause between confirmation checks",
			Value:   defaults.PollInterval,
			Sources: cli.EnvVars("POLL_INTERVAL"),
		},
		&cli.DurationFlag{
			Name:    "confirm-timeout",
			Usage:   "Confirmation deadline (0 derives it from the expiry slot)",
			Value:   defaults.ConfirmTimeout,
			Sources: cli.EnvVars("CONFIRM_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "indexer-url",
			Usage:   "Base URL of the chain indexer",
			Value:   defaults.IndexerURL,
			Sources: cli.EnvVars("INDEXER_URL"),
		},
		&cli.StringFlag{
			Name:    "indexer-project-id",
			Usage:   "Project id sent to the chain indexer",
			Sources: cli.EnvVars("BLOCKFROST_TESTNET", "INDEXER_PROJECT_ID"),
		},
		&cli.DurationFlag{
			Name:    "indexer-timeout",
			Usage:   "Timeout of one indexer request",
			Value:   defaults.IndexerTimeout,
			Sources: cli.EnvVars("INDEXER_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "locker",
			Usage:   "Session locker (memory or redis://host:port/db)",
			Value:   defaults.Locker,
			Sources: cli.EnvVars("LOCKER_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   defaults.EventBus,
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "sweep-schedule",
			Usage:   "Cron schedule of the confirmation sweeper",
			Value:   defaults.SweepSchedule,
			Sources: cli.EnvVars("SWEEP_SCHEDULE"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   defaults.LogLevel,
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
	}
}

// FromCommand builds the configuration of a command: defaults, then the
// config file, then every flag or environment variable that was set.
func FromCommand(command *cli.Command) (Config, error) {
	cfg := Default()

	if path := command.String("config"); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return Config{}, err
		}

		cfg = loaded
	}

	setString(command, "ledger-cli", &cfg.LedgerCLI)
	setString(command, "network", &cfg.Network)
	setString(command, "work-dir", &cfg.WorkDir)
	setString(command, "database-url", &cfg.DatabaseURL)
	setString(command, "indexer-url", &cfg.IndexerURL)
	setString(command, "indexer-project-id", &cfg.IndexerProjectID)
	setString(command, "locker", &cfg.Locker)
	setString(command, "event-bus", &cfg.EventBus)
	setString(command, "sweep-schedule", &cfg.SweepSchedule)
	setString(command, "log-level", &cfg.LogLevel)

	setUint64(command, "slot-margin", &cfg.SlotMargin)
	setUint64(command, "min-funding", &cfg.MinFunding)
	setUint64(command, "fee-padding", &cfg.FeePadding)
	setUint64(command, "min-output", &cfg.MinOutput)

	setDuration(command, "ledger-timeout", &cfg.LedgerTimeout)
	setDuration(command, "poll-interval", &cfg.PollInterval)
	setDuration(command, "confirm-timeout", &cfg.ConfirmTimeout)
	setDuration(command, "indexer-timeout", &cfg.IndexerTimeout)

	if command.IsSet("testnet-magic") {
		cfg.TestnetMagic = uint32(command.Uint64("testnet-magic"))
	}

	if command.IsSet("kafka-brokers") {
		cfg.KafkaBrokers = kafka.ParseBrokers(command.String("kafka-brokers"))
	}

	if command.IsSet("tracing") {
		cfg.Tracing = command.Bool("tracing")
	}

	err := cfg.Validate(nil)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setString(command *cli.Command, name string, target *string) {
	if command.IsSet(name) {
		*target = command.String(name)
	}
}

func setUint64(command *cli.Command, name string, target *uint64) {
	if command.IsSet(name) {
		*target = command.Uint64(name)
	}
}

func setDuration(command *cli.Command, name string, target *time.Duration) {
	if command.IsSet(name) {
		*target = command.Duration(name)
	}
}
