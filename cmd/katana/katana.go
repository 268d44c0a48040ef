package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/node"
	"github.com/NethermindEth/katana/utils"
	"github.com/mitchellh/mapstructure"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Version string

const greeting = `
 _  __     _
| |/ /__ _| |_ __ _ _ __   __ _
| ' // _' | __/ _' | '_ \ / _' |
| . \ (_| | || (_| | | | | (_| |
|_|\_\__,_|\__\__,_|_| |_|\__,_|

Katana %s, a local Starknet sequencer for development.

`

const (
	configF            = "config"
	logLevelF          = "log-level"
	colourF            = "log-colour"
	rpcAddrF           = "rpc.addr"
	rpcPortF           = "rpc.port"
	rpcCorsF           = "rpc.cors"
	rpcMaxConnectionsF = "rpc.max-connections"
	rpcMaxExecutionsF  = "rpc.max-executions"
	wsF                = "ws"
	wsPortF            = "ws.port"
	metricsF           = "metrics"
	metricsAddrF       = "metrics.addr"
	metricsPortF       = "metrics.port"
	pprofF             = "pprof"
	pprofAddrF         = "pprof.addr"
	pprofPortF         = "pprof.port"
	chainIDF           = "chain-id"
	dbDirF             = "db-dir"
	dbCacheSizeF       = "db.cache-size"
	blockTimeF         = "block-time"
	noMiningF          = "no-mining"
	forkURLF           = "fork.url"
	forkBlockF         = "fork.block"
	gasPriceF          = "gas-price"
	dataGasPriceF      = "data-gas-price"
	l1RPCURLF          = "l1.rpc-url"
	strkRateF          = "l1.strk-rate"
	messagingF         = "messaging"
	disableFeeF        = "disable-fee"
	disableValidateF   = "disable-validate"
	genesisF           = "genesis"
	seedF              = "seed"
	accountsF          = "accounts"
	maxStepsF          = "max-steps"
	checkUpdatesF      = "check-updates"

	defaultConfig = ""
	defaultColour = true

	configFlagUsage   = "The YAML configuration file. Flags and environment variables take precedence."
	logLevelUsage     = "Options: debug, info, warn, error. KATANA_LOG overrides the default."
	colourUsage       = "Use --log-colour=false to disable colourized log output."
	rpcAddrUsage      = "The interface on which the RPC server will listen for requests."
	rpcPortUsage      = "The port on which the HTTP RPC server will listen for requests."
	rpcCorsUsage      = "Comma separated list of origins allowed to make cross-origin requests, '*' allows all."
	rpcMaxConnsUsage  = "Maximum number of concurrent websocket connections, 0 for no limit."
	rpcMaxExecsUsage  = "Maximum number of concurrent call, estimate and simulate requests. Defaults to 2*GOMAXPROCS."
	wsUsage           = "Enables the websocket RPC server."
	wsPortUsage       = "The port on which the websocket RPC server will listen for requests."
	metricsUsage      = "Enables the Prometheus metrics endpoint."
	metricsAddrUsage  = "The interface on which the Prometheus endpoint will listen for requests."
	metricsPortUsage  = "The port on which the Prometheus endpoint will listen for requests."
	pprofUsage        = "Enables the pprof endpoint on the default port."
	pprofAddrUsage    = "The interface on which the pprof HTTP server will listen for requests."
	pprofPortUsage    = "The port on which the pprof HTTP server will listen for requests."
	chainIDUsage      = "The chain id, either a short string such as KATANA or a hex felt."
	dbDirUsage        = "Directory the chain is persisted to. The chain lives in memory when empty. KATANA_DB is used as a fallback."
	dbCacheSizeUsage  = "Block cache size of the database in megabytes."
	blockTimeUsage    = "Mine a block every given number of milliseconds instead of one per transaction."
	noMiningUsage     = "Only mine blocks on dev_generateBlock."
	forkURLUsage      = "Starknet RPC endpoint to fork the chain from."
	forkBlockUsage    = "Block number to fork from. The latest block of the forked chain when 0."
	gasPriceUsage     = "Fixed L1 gas price in wei. The genesis gas price is used when 0."
	dataGasPriceUsage = "Fixed L1 data gas price in wei. The genesis data gas price is used when 0."
	l1RPCURLUsage     = "Ethereum RPC endpoint to sample gas prices from. Fixed prices are used when empty."
	strkRateUsage     = "Number of STRK fri per wei used to derive STRK prices."
	messagingUsage    = "Path of the messaging configuration file. L1 messaging is disabled when empty."
	disableFeeUsage   = "Do not charge fees for transactions."
	disableValidUsage = "Skip account validation of transactions."
	genesisUsage      = "Path of a genesis JSON file."
	seedUsage         = "Seed the dev accounts are derived from."
	accountsUsage     = "Number of dev accounts to predeploy."
	maxStepsUsage     = "Maximum number of Cairo steps for a single transaction. The default limits are used when 0."
	checkUpdatesUsage = "Periodically check for a newer release and log a warning when one is published."
)

const (
	envPrefix           = "KATANA"
	dbFallbackEnv       = "KATANA_DB"
	logLevelFallbackEnv = "KATANA_LOG"
)

// ConfigError marks an error as an invalid configuration as opposed to a failure of a running node.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

type Katana interface {
	Run(ctx context.Context) error
	RPCAddr() net.Addr
	Genesis() *genesis.Config
}

type NewKatanaFn func(ctx context.Context, cfg *node.Config, version string) (Katana, error)

func NewCmd(config *node.Config, newKatana NewKatanaFn) *cobra.Command {
	katanaCmd := &cobra.Command{
		Use:     "katana [flags]",
		Short:   "Local Starknet sequencer for development.",
		Version: Version,
		Args:    cobra.NoArgs,
		// Usage is noise for errors of a running node.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgFile string
	flags := katanaCmd.Flags()
	flags.StringVar(&cfgFile, configF, defaultConfig, configFlagUsage)

	defaultLogLevel := utils.INFO
	flags.Var(&defaultLogLevel, logLevelF, logLevelUsage)
	flags.Bool(colourF, defaultColour, colourUsage)
	flags.String(rpcAddrF, node.DefaultRPCAddr, rpcAddrUsage)
	flags.Uint16(rpcPortF, node.DefaultRPCPort, rpcPortUsage)
	flags.StringSlice(rpcCorsF, nil, rpcCorsUsage)
	flags.Int(rpcMaxConnectionsF, 0, rpcMaxConnsUsage)
	flags.Uint(rpcMaxExecutionsF, 0, rpcMaxExecsUsage)
	flags.Bool(wsF, false, wsUsage)
	flags.Uint16(wsPortF, node.DefaultWSPort, wsPortUsage)
	flags.Bool(metricsF, false, metricsUsage)
	flags.String(metricsAddrF, node.DefaultMetricsAddr, metricsAddrUsage)
	flags.Uint16(metricsPortF, node.DefaultMetricsPort, metricsPortUsage)
	flags.Bool(pprofF, false, pprofUsage)
	flags.String(pprofAddrF, node.DefaultPprofAddr, pprofAddrUsage)
	flags.Uint16(pprofPortF, node.DefaultPprofPort, pprofPortUsage)

	defaultChainID := utils.DefaultChainID
	flags.Var(&defaultChainID, chainIDF, chainIDUsage)
	flags.String(dbDirF, "", dbDirUsage)
	flags.Uint(dbCacheSizeF, node.DefaultDBCacheSize, dbCacheSizeUsage)
	flags.Uint64(blockTimeF, 0, blockTimeUsage)
	flags.Bool(noMiningF, false, noMiningUsage)
	flags.String(forkURLF, "", forkURLUsage)
	flags.Uint64(forkBlockF, 0, forkBlockUsage)
	flags.Uint64(gasPriceF, 0, gasPriceUsage)
	flags.Uint64(dataGasPriceF, 0, dataGasPriceUsage)
	flags.String(l1RPCURLF, "", l1RPCURLUsage)
	flags.Uint64(strkRateF, node.DefaultStrkRate, strkRateUsage)
	flags.String(messagingF, "", messagingUsage)
	flags.Bool(disableFeeF, false, disableFeeUsage)
	flags.Bool(disableValidateF, false, disableValidUsage)
	flags.String(genesisF, "", genesisUsage)
	flags.String(seedF, genesis.DefaultSeed, seedUsage)
	flags.Uint16(accountsF, genesis.DefaultAccountsCount, accountsUsage)
	flags.Uint64(maxStepsF, 0, maxStepsUsage)
	flags.Bool(checkUpdatesF, false, checkUpdatesUsage)

	katanaCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(cmd, cfgFile, config); err != nil {
			return &ConfigError{Err: err}
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), greeting, Version); err != nil {
			return err
		}

		katana, err := newKatana(cmd.Context(), config, Version)
		if err != nil {
			return err
		}
		if err = printAccounts(cmd.OutOrStdout(), katana.Genesis()); err != nil {
			return err
		}
		if _, err = fmt.Fprintf(cmd.OutOrStdout(), "\nListening on %s\n\n", katana.RPCAddr()); err != nil {
			return err
		}
		return katana.Run(cmd.Context())
	}

	katanaCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ConfigError{Err: err}
	})
	return katanaCmd
}

// loadConfig merges, from lowest to highest precedence, flag defaults, the config file, KATANA_*
// environment variables and the flags set on the command line into config.
func loadConfig(cmd *cobra.Command, cfgFile string, config *node.Config) error {
	// Keys like "rpc.port" are flat, "." must not nest them.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	if cfgFile != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(dbDirF, envPrefix+"_DB_DIR", dbFallbackEnv); err != nil {
		return err
	}
	if err := v.BindEnv(logLevelF, envPrefix+"_LOG_LEVEL", logLevelFallbackEnv); err != nil {
		return err
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if err := v.Unmarshal(config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return err
	}
	return config.Validate()
}

func printAccounts(w io.Writer, gen *genesis.Config) error {
	accounts, err := gen.AllAccounts()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Address", "Private key", "Public key", "Balance"})
	for i := range accounts {
		acc := &accounts[i]
		table.Append([]string{
			fmt.Sprintf("%d", i),
			acc.Address.String(),
			orDash(acc.PrivateKey),
			orDash(acc.PublicKey),
			orDash(acc.Balance),
		})
	}
	if len(accounts) == 0 {
		return nil
	}
	if _, err = fmt.Fprintf(w, "Predeployed accounts (seed %q)\n", gen.Seed); err != nil {
		return err
	}
	table.Render()
	return nil
}

func orDash(f *felt.Felt) string {
	if f == nil {
		return "-"
	}
	return f.String()
}

// ExitCode maps the error returned by the command to the process exit code: 1 for invalid
// configuration, 2 for a node that failed to start or run.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return 1
	}
	return 2
}
