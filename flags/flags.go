package flags

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/ethtx/ethtx"
	"github.com/ethtx/ethtx/config"
	"github.com/ethtx/ethtx/eth"
	ethlog "github.com/ethtx/ethtx/log"
	"github.com/ethtx/ethtx/metrics"
)

const EnvVarPrefix = "ETHTX"

func prefixEnvVars(name string) []string {
	return ethtx.PrefixEnvVar(EnvVarPrefix, name)
}

var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Configuration file path (.yaml, .yml or .toml)",
		EnvVars: prefixEnvVars("CONFIG"),
	}
	EndpointFlag = &cli.StringFlag{
		Name:    "endpoint",
		Usage:   "JSON-RPC endpoint of the node",
		Value:   config.DefaultEndpoint,
		EnvVars: prefixEnvVars("ENDPOINT"),
	}
	GenerationFlag = &cli.StringFlag{
		Name:    "generation",
		Usage:   "Client generation used to talk to the node: 'legacy' or 'typed'",
		Value:   "typed",
		EnvVars: prefixEnvVars("GENERATION"),
	}
	DialAttemptsFlag = &cli.UintFlag{
		Name:    "dial-attempts",
		Usage:   "Number of attempts made to dial the endpoint",
		Value:   1,
		EnvVars: prefixEnvVars("DIAL_ATTEMPTS"),
	}
	GasCeilingFlag = &cli.Uint64Flag{
		Name:    "gas.ceiling",
		Usage:   "Gas limit no estimate may reach",
		EnvVars: prefixEnvVars("GAS_CEILING"),
	}
	GasMarginPercentFlag = &cli.Uint64Flag{
		Name:    "gas.margin-percent",
		Usage:   "Percentage added on top of gas estimates",
		EnvVars: prefixEnvVars("GAS_MARGIN_PERCENT"),
	}
	GasTransferFloorFlag = &cli.Uint64Flag{
		Name:    "gas.transfer-floor",
		Usage:   "Minimum gas sent with plain value transfers",
		EnvVars: prefixEnvVars("GAS_TRANSFER_FLOOR"),
	}
	GasPriceFlag = &cli.StringFlag{
		Name:    "gas.price",
		Usage:   "Gas price for submitted transactions, e.g. '2 gwei'. Defaults to the node's suggestion",
		EnvVars: prefixEnvVars("GAS_PRICE"),
	}
	PollIntervalFlag = &cli.DurationFlag{
		Name:    "poll-interval",
		Usage:   "Interval between connection state polls",
		EnvVars: prefixEnvVars("POLL_INTERVAL"),
	}
	ReceiptQueryIntervalFlag = &cli.DurationFlag{
		Name:    "receipt-query-interval",
		Usage:   "Interval between receipt queries while waiting for inclusion",
		EnvVars: prefixEnvVars("RECEIPT_QUERY_INTERVAL"),
	}
	SolcPathFlag = &cli.StringFlag{
		Name:    "solc.path",
		Usage:   "Path of the solc binary",
		EnvVars: prefixEnvVars("SOLC_PATH"),
	}
	SolcConstraintFlag = &cli.StringFlag{
		Name:    "solc.constraint",
		Usage:   "Semver constraint the solc version must satisfy",
		EnvVars: prefixEnvVars("SOLC_CONSTRAINT"),
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	ConfigFlag,
	EndpointFlag,
	GenerationFlag,
	DialAttemptsFlag,
	GasCeilingFlag,
	GasMarginPercentFlag,
	GasTransferFloorFlag,
	GasPriceFlag,
	PollIntervalFlag,
	ReceiptQueryIntervalFlag,
	SolcPathFlag,
	SolcConstraintFlag,
}

func init() {
	optionalFlags = append(optionalFlags, ethlog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, metrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(Flags, requiredFlags...)
	Flags = append(Flags, optionalFlags...)
}

// Flags contains the list of configuration options available to the binary.
var Flags []cli.Flag

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}

// ConfigFromCLI layers the defaults, the config file and the flags that were set, in that order.
func ConfigFromCLI(ctx *cli.Context, fs afero.Fs, version string) (*config.Config, error) {
	if err := CheckRequired(ctx); err != nil {
		return nil, err
	}
	cfg := config.DefaultConfig()
	cfg.Version = version
	if path := ctx.String(ConfigFlag.Name); path != "" {
		if err := cfg.LoadFile(fs, path); err != nil {
			return nil, err
		}
	}

	logCfg, err := ethlog.ReadCLIConfig(ctx)
	if err != nil {
		return nil, err
	}
	cfg.LogConfig = logCfg
	cfg.MetricsConfig = metrics.ReadCLIConfig(ctx)

	if ctx.IsSet(EndpointFlag.Name) {
		cfg.Endpoint = ctx.String(EndpointFlag.Name)
	}
	if ctx.IsSet(GenerationFlag.Name) {
		cfg.Generation = ctx.String(GenerationFlag.Name)
	}
	if ctx.IsSet(DialAttemptsFlag.Name) {
		cfg.DialAttempts = ctx.Uint(DialAttemptsFlag.Name)
	}
	if ctx.IsSet(GasCeilingFlag.Name) {
		cfg.Gas.Ceiling = ctx.Uint64(GasCeilingFlag.Name)
	}
	if ctx.IsSet(GasMarginPercentFlag.Name) {
		cfg.Gas.MarginPercent = ctx.Uint64(GasMarginPercentFlag.Name)
	}
	if ctx.IsSet(GasTransferFloorFlag.Name) {
		cfg.Gas.TransferFloor = ctx.Uint64(GasTransferFloorFlag.Name)
	}
	if ctx.IsSet(GasPriceFlag.Name) {
		price, err := eth.ParseETH(ctx.String(GasPriceFlag.Name))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", GasPriceFlag.Name, err)
		}
		cfg.Gas.Price = &price
	}
	if ctx.IsSet(PollIntervalFlag.Name) {
		cfg.PollInterval = ctx.Duration(PollIntervalFlag.Name)
	}
	if ctx.IsSet(ReceiptQueryIntervalFlag.Name) {
		cfg.ReceiptQueryInterval = ctx.Duration(ReceiptQueryIntervalFlag.Name)
	}
	if ctx.IsSet(SolcPathFlag.Name) {
		cfg.Solc.Path = ctx.String(SolcPathFlag.Name)
	}
	if ctx.IsSet(SolcConstraintFlag.Name) {
		cfg.Solc.Constraint = ctx.String(SolcConstraintFlag.Name)
	}
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
