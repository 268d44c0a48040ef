package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/backend"
	"github.com/NethermindEth/katana/builder"
	"github.com/NethermindEth/katana/clients/starknet"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/db/pebble"
	"github.com/NethermindEth/katana/gasoracle"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/l1"
	"github.com/NethermindEth/katana/mempool"
	"github.com/NethermindEth/katana/messaging"
	"github.com/NethermindEth/katana/metrics"
	"github.com/NethermindEth/katana/rpc"
	"github.com/NethermindEth/katana/sequencer"
	"github.com/NethermindEth/katana/service"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/upgrader"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/validator"
	"github.com/NethermindEth/katana/vm"
	"github.com/sourcegraph/conc"
)

const (
	DefaultRPCAddr     = "127.0.0.1"
	DefaultRPCPort     = 5050
	DefaultWSPort      = 5051
	DefaultMetricsAddr = "127.0.0.1"
	DefaultMetricsPort = 9100
	DefaultPprofAddr   = "127.0.0.1"
	DefaultPprofPort   = 6062
	DefaultStrkRate    = 1
	DefaultDBCacheSize = 128

	// Queued rpc executions beyond this are refused.
	maxExecutionQueue = 1024
)

var ErrConflictingMiningModes = errors.New("block-time and no-mining are mutually exclusive")

// Config is the top-level katana configuration.
type Config struct {
	LogLevel utils.LogLevel `mapstructure:"log-level"`
	Colour   bool           `mapstructure:"log-colour"`

	RPCAddr           string   `mapstructure:"rpc.addr"`
	RPCPort           uint16   `mapstructure:"rpc.port"`
	RPCCors           []string `mapstructure:"rpc.cors"`
	RPCMaxConnections int      `mapstructure:"rpc.max-connections"`
	// Executions (calls, estimates, simulations) rpc requests run at once. Twice GOMAXPROCS when 0.
	RPCMaxExecutions uint   `mapstructure:"rpc.max-executions"`
	Websocket        bool   `mapstructure:"ws"`
	WebsocketPort    uint16 `mapstructure:"ws.port"`

	Metrics     bool   `mapstructure:"metrics"`
	MetricsAddr string `mapstructure:"metrics.addr"`
	MetricsPort uint16 `mapstructure:"metrics.port"`

	Pprof     bool   `mapstructure:"pprof"`
	PprofAddr string `mapstructure:"pprof.addr"`
	PprofPort uint16 `mapstructure:"pprof.port"`

	ChainID utils.ChainID `mapstructure:"chain-id"`
	// In-memory database when empty.
	DBDir string `mapstructure:"db-dir"`
	// Block cache in megabytes, for on-disk databases only.
	DBCacheSize uint `mapstructure:"db.cache-size"`
	// Interval mining period in milliseconds. Instant mining when 0.
	BlockTime uint64 `mapstructure:"block-time"`
	NoMining  bool   `mapstructure:"no-mining"`

	ForkURL string `mapstructure:"fork.url"`
	// Head of the forked chain when 0.
	ForkBlock uint64 `mapstructure:"fork.block"`

	// Fixed prices in wei. The genesis prices when 0.
	GasPrice     uint64 `mapstructure:"gas-price"`
	DataGasPrice uint64 `mapstructure:"data-gas-price"`
	// Settlement chain sampled for gas prices. Prices are fixed when empty.
	L1RPCURL string `mapstructure:"l1.rpc-url"`
	// Fri per wei.
	StrkRate uint64 `mapstructure:"l1.strk-rate"`

	// Path of the messaging config file.
	Messaging string `mapstructure:"messaging"`

	DisableFee      bool `mapstructure:"disable-fee"`
	DisableValidate bool `mapstructure:"disable-validate"`

	// Path of a genesis file. genesis.Default when empty.
	Genesis  string `mapstructure:"genesis"`
	Seed     string `mapstructure:"seed"`
	Accounts uint16 `mapstructure:"accounts"`
	MaxSteps uint64 `mapstructure:"max-steps"`

	// Periodically warn when a newer release is published.
	CheckUpdates bool `mapstructure:"check-updates"`
}

func (c *Config) Validate() error {
	if c.BlockTime > 0 && c.NoMining {
		return ErrConflictingMiningModes
	}
	if c.ForkBlock > 0 && c.ForkURL == "" {
		return errors.New("fork.block requires fork.url")
	}
	return nil
}

func (c *Config) miningMode() builder.Mode {
	switch {
	case c.NoMining:
		return builder.OnDemand()
	case c.BlockTime > 0:
		return builder.Interval(time.Duration(c.BlockTime) * time.Millisecond)
	default:
		return builder.Instant()
	}
}

type Node struct {
	cfg       *Config
	db        db.DB
	backend   *backend.Backend
	pool      *mempool.Pool
	producer  *builder.Producer
	sequencer *sequencer.Sequencer
	rpc       *jsonrpc.Server

	services       []service.Service
	closers        []func()
	failureClosers []func()
	rpcAddr        net.Addr
	log            utils.Logger

	version string
}

// New builds the node and binds its listeners. Nothing runs until Run is called.
func New(ctx context.Context, cfg *Config, version string) (*Node, error) { //nolint:gocyclo,funlen
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Metrics {
		metrics.Enable()
	}

	log, err := utils.NewZapLogger(cfg.LogLevel, cfg.Colour)
	if err != nil {
		return nil, err
	}

	n := &Node{cfg: cfg, log: log, version: version}
	success := false
	defer func() {
		if !success {
			for _, closeFn := range n.failureClosers {
				closeFn()
			}
			n.close()
		}
	}()

	if err = n.openDB(); err != nil {
		return nil, err
	}

	gen, err := n.genesis()
	if err != nil {
		return nil, err
	}
	oracle, err := n.gasOracle(ctx, gen)
	if err != nil {
		return nil, err
	}
	backendCfg := &backend.Config{
		ChainID:          cfg.ChainID,
		Genesis:          gen,
		InvokeMaxSteps:   cfg.MaxSteps,
		ValidateMaxSteps: cfg.MaxSteps,
	}
	if cfg.ForkURL != "" {
		if backendCfg.Fork, err = n.fork(ctx); err != nil {
			return nil, err
		}
	}
	if n.backend, err = backend.New(ctx, backendCfg, n.db, oracle, log); err != nil {
		return nil, fmt.Errorf("open chain: %w", err)
	}
	chain := n.backend.Chain()
	if metrics.Enabled() {
		chain.WithListener(makeBlockchainMetrics())
	}

	flags := vm.SimulationFlags{SkipValidate: cfg.DisableValidate, SkipFeeTransfer: cfg.DisableFee}
	source := mempool.StateSourceFunc(func() (state.Reader, *core.BlockEnv, func() error, error) {
		return n.producer.ValidationState()
	})
	txValidator := mempool.NewStatefulValidator(n.backend.ExecutorFactory(), source, chain, mempool.ValidatorConfig{
		DisableFee:      cfg.DisableFee,
		DisableValidate: cfg.DisableValidate,
	})
	n.pool = mempool.New(txValidator, mempool.FIFO{}, log)
	n.producer = builder.New(n.backend, n.pool, cfg.miningMode(), flags, log)
	n.sequencer = sequencer.New(n.producer, n.pool, n.backend, log)
	n.closers = append(n.closers, n.producer.Close)
	if metrics.Enabled() {
		n.pool.WithListener(makeMempoolMetrics())
		n.producer.WithListener(makeBuilderMetrics())
	}
	n.services = append(n.services, n.sequencer)

	if cfg.Messaging != "" {
		if err = n.messaging(ctx, chain); err != nil {
			return nil, err
		}
	}

	maxExecutions := cfg.RPCMaxExecutions
	if maxExecutions == 0 {
		maxExecutions = uint(2 * runtime.GOMAXPROCS(0))
	}
	factory := NewThrottledFactory(n.backend.ExecutorFactory(), maxExecutions, maxExecutionQueue)
	handler := rpc.New(chain, n.producer, n.pool, factory, n.backend.Genesis(), log)
	n.rpc = jsonrpc.NewServer(jsonrpc.DefaultMaxGoroutines, log).WithValidator(validator.Validator())
	if err = n.rpc.RegisterMethods(handler.Methods()...); err != nil {
		return nil, err
	}
	if metrics.Enabled() {
		n.rpc.WithListener(makeRPCMetrics())
		makeExecutorMetrics(factory)
	}

	if cfg.CheckUpdates {
		n.upgrader()
	}

	if err = n.listen(); err != nil {
		return nil, err
	}
	success = true
	return n, nil
}

func (n *Node) openDB() error {
	options := []pebble.Option{pebble.WithCacheSize(n.cfg.DBCacheSize)}
	if n.cfg.DBDir != "" {
		dbLog, err := utils.NewZapLogger(utils.ERROR, n.cfg.Colour)
		if err != nil {
			return fmt.Errorf("create DB logger: %w", err)
		}
		options = append(options, pebble.WithLogger(dbLog))
	}

	database, err := pebble.Open(n.cfg.DBDir, options...)
	if err != nil {
		return fmt.Errorf("open DB: %w", err)
	}
	n.db = database
	if metrics.Enabled() {
		n.db = database.WithListener(makeDBMetrics())
		makePebbleMetrics(database)
	}

	if n.cfg.DBDir == "" {
		n.log.Infow("Chain is kept in memory")
	} else {
		n.log.Infow("Opened database", "path", n.cfg.DBDir, "size", database.DiskUsage())
	}
	return nil
}

func (n *Node) genesis() (*genesis.Config, error) {
	gen := genesis.Default(n.cfg.ChainID)
	if n.cfg.Genesis != "" {
		var err error
		if gen, err = genesis.Load(n.cfg.Genesis, n.cfg.ChainID); err != nil {
			return nil, fmt.Errorf("load genesis: %w", err)
		}
	}
	if n.cfg.Seed != "" {
		gen.Seed = n.cfg.Seed
	}
	if n.cfg.Accounts > 0 {
		gen.AccountsCount = int(n.cfg.Accounts)
	}
	return gen, nil
}

// gasOracle samples the settlement chain when one is configured, otherwise prices are fixed.
func (n *Node) gasOracle(ctx context.Context, gen *genesis.Config) (gasoracle.Oracle, error) {
	strkRate := n.cfg.StrkRate
	if strkRate == 0 {
		strkRate = DefaultStrkRate
	}

	if n.cfg.L1RPCURL != "" {
		client, err := l1.Dial(ctx, n.cfg.L1RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial settlement chain: %w", err)
		}
		n.closers = append(n.closers, client.Close)
		opts := []gasoracle.Option{gasoracle.WithStrkRate(strkRate)}
		if metrics.Enabled() {
			client.WithListener(makeL1Metrics())
			opts = append(opts, gasoracle.WithListener(makeGasPriceMetrics()))
		}
		oracle := gasoracle.NewSampled(client, n.log, opts...)
		n.services = append(n.services, oracle)
		return oracle, nil
	}

	gas, data := gen.GasPrices.Clone(), gen.DataGasPrices.Clone()
	if n.cfg.GasPrice > 0 {
		gas = fixedPrice(n.cfg.GasPrice, strkRate)
	}
	if n.cfg.DataGasPrice > 0 {
		data = fixedPrice(n.cfg.DataGasPrice, strkRate)
	}
	oracle := gasoracle.NewFixed(gas, data)
	if metrics.Enabled() {
		makeGasPriceMetrics().OnPrices(gas, data)
	}
	return oracle, nil
}

func fixedPrice(wei, strkRate uint64) *core.GasPrice {
	weiFelt := new(felt.Felt).SetUint64(wei)
	return &core.GasPrice{
		PriceInWei: weiFelt,
		PriceInFri: new(felt.Felt).Mul(weiFelt, new(felt.Felt).SetUint64(strkRate)),
	}
}

func (n *Node) fork(ctx context.Context) (*backend.ForkConfig, error) {
	client, err := starknet.Dial(ctx, n.cfg.ForkURL)
	if err != nil {
		return nil, fmt.Errorf("dial forked chain: %w", err)
	}
	n.closers = append(n.closers, client.Close)
	client.WithLogger(n.log)
	if metrics.Enabled() {
		client.WithListener(makeStarknetClientMetrics("fork"))
	}

	fork := &backend.ForkConfig{Provider: client}
	if n.cfg.ForkBlock > 0 {
		fork.Block = &n.cfg.ForkBlock
	}
	return fork, nil
}

func (n *Node) messaging(ctx context.Context, chain messaging.BlockSource) error {
	msgCfg, err := messaging.LoadConfig(n.cfg.Messaging)
	if err != nil {
		return err
	}
	messenger, err := messaging.Dial(ctx, msgCfg, n.log)
	if err != nil {
		return fmt.Errorf("connect messaging: %w", err)
	}
	n.closers = append(n.closers, messenger.Close)

	msgService := messaging.NewService(messenger, chain, n.pool, n.cfg.ChainID.Felt(), msgCfg, n.log)
	if metrics.Enabled() {
		msgService.WithListener(makeMessagingMetrics())
	}
	n.sequencer.WithMessaging(msgService)
	n.log.Infow("Messaging enabled", "chain", msgCfg.Chain, "contract", msgCfg.ContractAddress)
	return nil
}

func (n *Node) upgrader() {
	current, err := semver.NewVersion(n.version)
	if err != nil {
		n.log.Warnw("Update checks disabled, version is not semantic", "version", n.version)
		return
	}
	n.services = append(n.services, upgrader.New(current, upgrader.DefaultReleaseAPI, upgrader.DefaultReleaseURL,
		upgrader.DefaultInterval, n.log))
}

// listen binds every listener up front so that a busy port fails New rather than Run.
func (n *Node) listen() error {
	rpcListener, err := net.Listen("tcp", net.JoinHostPort(n.cfg.RPCAddr, strconv.Itoa(int(n.cfg.RPCPort))))
	if err != nil {
		return fmt.Errorf("listen on rpc port: %w", err)
	}
	n.closeOnFailure(rpcListener)
	n.rpcAddr = rpcListener.Addr()
	n.services = append(n.services, makeRPCOverHTTP(rpcListener, n.rpc, n.cfg.RPCCors, n.log))
	n.log.Infow("RPC server listening", "addr", n.rpcAddr)

	if n.cfg.Websocket {
		wsListener, err := net.Listen("tcp", net.JoinHostPort(n.cfg.RPCAddr, strconv.Itoa(int(n.cfg.WebsocketPort))))
		if err != nil {
			return fmt.Errorf("listen on websocket port: %w", err)
		}
		n.closeOnFailure(wsListener)
		n.services = append(n.services, makeRPCOverWebsocket(wsListener, n.rpc, n.cfg.RPCMaxConnections, n.log))
		n.log.Infow("Websocket server listening", "addr", wsListener.Addr())
	}

	if n.cfg.Metrics {
		metricsListener, err := net.Listen("tcp", net.JoinHostPort(n.cfg.MetricsAddr, strconv.Itoa(int(n.cfg.MetricsPort))))
		if err != nil {
			return fmt.Errorf("listen on metrics port: %w", err)
		}
		n.closeOnFailure(metricsListener)
		n.services = append(n.services, makeMetrics(metricsListener))
		n.log.Infow("Metrics server listening", "addr", metricsListener.Addr())
	}

	if n.cfg.Pprof {
		pprofListener, err := net.Listen("tcp", net.JoinHostPort(n.cfg.PprofAddr, strconv.Itoa(int(n.cfg.PprofPort))))
		if err != nil {
			return fmt.Errorf("listen on pprof port: %w", err)
		}
		n.closeOnFailure(pprofListener)
		n.services = append(n.services, makePPROF(pprofListener))
		n.log.Infow("Pprof server listening", "addr", pprofListener.Addr())
	}
	return nil
}

// closeOnFailure closes l when New fails. Once running, the http services own their listeners.
func (n *Node) closeOnFailure(l net.Listener) {
	n.failureClosers = append(n.failureClosers, func() { l.Close() })
}

// Run starts every service and blocks until ctx is cancelled or a service fails. The first
// service error is returned once all services have stopped.
func (n *Node) Run(ctx context.Context) error {
	defer n.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      conc.WaitGroup
		errOnce sync.Once
		runErr  error
	)
	n.log.Infow("Katana started", "version", n.version, "rpc", n.rpcAddr.String())
	for _, s := range n.services {
		wg.Go(func() {
			if err := s.Run(ctx); err != nil {
				n.log.Errorw("Service error", "name", reflect.TypeOf(s), "err", err)
				errOnce.Do(func() { runErr = err })
				cancel()
			}
		})
	}

	<-ctx.Done()
	n.log.Infow("Shutting down Katana...")
	wg.Wait()
	return runErr
}

func (n *Node) close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		n.closers[i]()
	}
	n.closers = nil
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			n.log.Errorw("Error while closing the DB", "err", err)
		}
		n.db = nil
	}
}

func (n *Node) Config() Config {
	return *n.cfg
}

// RPCAddr is the address the rpc server listens on.
func (n *Node) RPCAddr() net.Addr {
	return n.rpcAddr
}

func (n *Node) Genesis() *genesis.Config {
	return n.backend.Genesis()
}

func (n *Node) Backend() *backend.Backend {
	return n.backend
}
