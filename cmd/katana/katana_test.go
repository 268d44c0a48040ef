package main_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	katana "github.com/NethermindEth/katana/cmd/katana"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/node"
	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spyKatana struct {
	cfg    *node.Config
	runs   int
	runErr error
}

func (s *spyKatana) Run(context.Context) error {
	s.runs++
	return s.runErr
}

func (s *spyKatana) RPCAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(s.cfg.RPCPort)}
}

func (s *spyKatana) Genesis() *genesis.Config {
	gen := genesis.Default(s.cfg.ChainID)
	gen.AccountsCount = int(s.cfg.Accounts)
	return gen
}

func run(t *testing.T, spy *spyKatana, args ...string) (*node.Config, string, error) {
	t.Helper()
	cfg := new(node.Config)
	cmd := katana.NewCmd(cfg, func(_ context.Context, c *node.Config, _ string) (katana.Katana, error) {
		spy.cfg = c
		return spy, nil
	})
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return cfg, out.String(), err
}

func TestNewCmd(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		spy := new(spyKatana)
		cfg, out, err := run(t, spy)
		require.NoError(t, err)
		assert.Equal(t, 1, spy.runs)

		assert.Empty(t, cfg.RPCCors)
		cfg.RPCCors = nil
		assert.Equal(t, &node.Config{
			LogLevel:      utils.INFO,
			Colour:        true,
			RPCAddr:       node.DefaultRPCAddr,
			RPCPort:       node.DefaultRPCPort,
			WebsocketPort: node.DefaultWSPort,
			MetricsAddr:   node.DefaultMetricsAddr,
			MetricsPort:   node.DefaultMetricsPort,
			PprofAddr:     node.DefaultPprofAddr,
			PprofPort:     node.DefaultPprofPort,
			ChainID:       utils.DefaultChainID,
			DBCacheSize:   node.DefaultDBCacheSize,
			StrkRate:      node.DefaultStrkRate,
			Seed:          genesis.DefaultSeed,
			Accounts:      genesis.DefaultAccountsCount,
		}, cfg)

		accounts, err := spy.Genesis().DevAccounts()
		require.NoError(t, err)
		require.Len(t, accounts, genesis.DefaultAccountsCount)
		for _, acc := range accounts {
			assert.Contains(t, out, acc.Address.String())
			assert.Contains(t, out, acc.PrivateKey.String())
		}
		assert.Contains(t, out, "Listening on 127.0.0.1:5050")
	})

	t.Run("flags", func(t *testing.T) {
		cfg, _, err := run(t, new(spyKatana),
			"--rpc.port", "6000",
			"--rpc.cors", "https://a.com,https://b.com",
			"--chain-id", "SN_SEPOLIA",
			"--log-level", "debug",
			"--block-time", "2000",
			"--fork.url", "http://localhost:9545",
			"--fork.block", "12",
			"--accounts", "3",
			"--db.cache-size", "64",
			"--disable-fee",
		)
		require.NoError(t, err)
		assert.Equal(t, uint16(6000), cfg.RPCPort)
		assert.Equal(t, []string{"https://a.com", "https://b.com"}, cfg.RPCCors)
		assert.Equal(t, utils.MustChainID("SN_SEPOLIA"), cfg.ChainID)
		assert.Equal(t, utils.DEBUG, cfg.LogLevel)
		assert.Equal(t, uint64(2000), cfg.BlockTime)
		assert.Equal(t, "http://localhost:9545", cfg.ForkURL)
		assert.Equal(t, uint64(12), cfg.ForkBlock)
		assert.Equal(t, uint16(3), cfg.Accounts)
		assert.True(t, cfg.DisableFee)
		assert.Equal(t, uint(64), cfg.DBCacheSize)
	})

	t.Run("config file and environment", func(t *testing.T) {
		cfgFile := filepath.Join(t.TempDir(), "katana.yaml")
		require.NoError(t, os.WriteFile(cfgFile, []byte(`
rpc.port: 7000
ws: true
chain-id: "0x1234"
seed: "42"
db-dir: /from/file
`), 0o600))

		t.Setenv("KATANA_WS_PORT", "7001")
		t.Setenv("KATANA_LOG", "warn")
		t.Setenv("KATANA_DB", "/from/env")

		cfg, _, err := run(t, new(spyKatana), "--config", cfgFile, "--seed", "7")
		require.NoError(t, err)
		assert.Equal(t, uint16(7000), cfg.RPCPort)
		assert.True(t, cfg.Websocket)
		assert.Equal(t, uint16(7001), cfg.WebsocketPort)
		assert.Equal(t, utils.MustChainID("0x1234"), cfg.ChainID)
		assert.Equal(t, utils.WARN, cfg.LogLevel)
		assert.Equal(t, "/from/env", cfg.DBDir)
		// Flags win over the file.
		assert.Equal(t, "7", cfg.Seed)
	})

	t.Run("prefixed env wins over fallback", func(t *testing.T) {
		t.Setenv("KATANA_DB", "/fallback")
		t.Setenv("KATANA_DB_DIR", "/preferred")
		cfg, _, err := run(t, new(spyKatana))
		require.NoError(t, err)
		assert.Equal(t, "/preferred", cfg.DBDir)
	})
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, 0, katana.ExitCode(nil))

	t.Run("conflicting mining modes", func(t *testing.T) {
		spy := new(spyKatana)
		_, _, err := run(t, spy, "--block-time", "1000", "--no-mining")
		require.ErrorIs(t, err, node.ErrConflictingMiningModes)
		assert.Equal(t, 1, katana.ExitCode(err))
		assert.Zero(t, spy.runs)
	})

	t.Run("conflict across sources", func(t *testing.T) {
		t.Setenv("KATANA_NO_MINING", "true")
		_, _, err := run(t, new(spyKatana), "--block-time", "1000")
		require.ErrorIs(t, err, node.ErrConflictingMiningModes)
		assert.Equal(t, 1, katana.ExitCode(err))
	})

	t.Run("invalid flag value", func(t *testing.T) {
		_, _, err := run(t, new(spyKatana), "--log-level", "verbose")
		require.Error(t, err)
		assert.Equal(t, 1, katana.ExitCode(err))
	})

	t.Run("missing config file", func(t *testing.T) {
		_, _, err := run(t, new(spyKatana), "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.Equal(t, 1, katana.ExitCode(err))
	})

	t.Run("runtime failure", func(t *testing.T) {
		runErr := errors.New("storage corrupted")
		_, _, err := run(t, &spyKatana{runErr: runErr})
		require.ErrorIs(t, err, runErr)
		assert.Equal(t, 2, katana.ExitCode(err))
	})
}
