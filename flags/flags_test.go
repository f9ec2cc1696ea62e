package flags

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethtx/ethtx/config"
	"github.com/ethtx/ethtx/eth"
)

func configFromArgs(t *testing.T, fs afero.Fs, env map[string]string, args ...string) (*config.Config, error) {
	for k, v := range env {
		t.Setenv(k, v)
	}
	var (
		cfg *config.Config
		err error
	)
	app := cli.NewApp()
	app.Flags = Flags
	app.Action = func(ctx *cli.Context) error {
		cfg, err = ConfigFromCLI(ctx, fs, "test")
		return nil
	}
	require.NoError(t, app.RunContext(context.Background(), append([]string{"ethtx"}, args...)))
	return cfg, err
}

func TestUniqueFlags(t *testing.T) {
	seen := make(map[string]struct{})
	for _, flag := range Flags {
		for _, name := range flag.Names() {
			_, ok := seen[name]
			require.Falsef(t, ok, "duplicate flag %s", name)
			seen[name] = struct{}{}
		}
	}
}

func TestEnvVarsArePrefixed(t *testing.T) {
	for _, flag := range Flags {
		envFlag, ok := flag.(interface{ GetEnvVars() []string })
		require.True(t, ok)
		for _, env := range envFlag.GetEnvVars() {
			require.Truef(t, len(env) > len(EnvVarPrefix) && env[:len(EnvVarPrefix)+1] == EnvVarPrefix+"_",
				"flag %s has env var %s", flag.Names()[0], env)
		}
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := configFromArgs(t, afero.NewMemMapFs(), nil)
	require.NoError(t, err)
	expected := config.DefaultConfig()
	expected.Version = "test"
	expected.LogConfig = cfg.LogConfig
	require.Equal(t, expected, cfg)
}

func TestFlagsOverrideFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "ethtx.yaml", []byte(`
endpoint: http://file:8545
dial-attempts: 4
gas:
  ceiling: 5000000
`), 0o644))

	cfg, err := configFromArgs(t, fs, nil,
		"--config", "ethtx.yaml",
		"--endpoint", "http://flag:8545",
		"--gas.price", "3 gwei",
		"--poll-interval", "250ms",
		"--generation", "legacy",
	)
	require.NoError(t, err)
	require.Equal(t, "http://flag:8545", cfg.Endpoint)
	require.Equal(t, uint(4), cfg.DialAttempts)
	require.Equal(t, uint64(5_000_000), cfg.Gas.Ceiling)
	require.Equal(t, eth.GWei(3), *cfg.Gas.Price)
	require.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	require.Equal(t, "legacy", cfg.Generation)
}

func TestInvalidFlags(t *testing.T) {
	_, err := configFromArgs(t, afero.NewMemMapFs(), nil, "--gas.price", "lots")
	require.ErrorContains(t, err, "invalid gas.price")

	_, err = configFromArgs(t, afero.NewMemMapFs(), nil, "--gas.ceiling", "0")
	require.ErrorContains(t, err, "gas ceiling must be positive")

	_, err = configFromArgs(t, afero.NewMemMapFs(), nil, "--config", "missing.toml")
	require.ErrorContains(t, err, "failed to read config")
}

// Runs last: flags set from the environment stay marked as set for later runs in the process.
func TestEnvVars(t *testing.T) {
	cfg, err := configFromArgs(t, afero.NewMemMapFs(), map[string]string{
		"ETHTX_GAS_MARGIN_PERCENT": "20",
		"ETHTX_SOLC_PATH":          "/usr/local/bin/solc",
	})
	require.NoError(t, err)
	require.Equal(t, uint64(20), cfg.Gas.MarginPercent)
	require.Equal(t, "/usr/local/bin/solc", cfg.Solc.Path)
}
