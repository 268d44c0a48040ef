// Package rpc serves the starknet_* and dev_* JSON-RPC namespaces on top of the chain, the
// block producer and the transaction pool.
package rpc

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/backend"
	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/builder"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/genesis"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/state"
	"github.com/NethermindEth/katana/utils"
	"github.com/NethermindEth/katana/vm"
)

// Producer is the block producer as seen by the handlers.
type Producer interface {
	Pending() (*builder.PendingBlock, error)
	PendingState() (state.Reader, *core.BlockEnv, func() error, error)
	ForceMine() (*backend.MinedBlockOutcome, error)
	SetStorageAt(addr, key, value *felt.Felt) error
	SetNextBlockTimestamp(ts uint64) error
	IncreaseNextBlockTimestamp(seconds uint64) error
	NextBlockTimestamp() uint64
}

// Pool is where submitted transactions go.
type Pool interface {
	Add(tx core.BroadcastedTransaction) (*felt.Felt, error)
	Contains(hash *felt.Felt) bool
	// Rejected returns why the transaction was refused, nil if it was not.
	Rejected(hash *felt.Felt) error
}

type Handler struct {
	chain    blockchain.Reader
	producer Producer
	pool     Pool
	factory  vm.ExecutorFactory
	genesis  *genesis.Config
	log      utils.SimpleLogger
}

func New(chain blockchain.Reader, producer Producer, pool Pool, factory vm.ExecutorFactory, gen *genesis.Config,
	log utils.SimpleLogger,
) *Handler {
	return &Handler{
		chain:    chain,
		producer: producer,
		pool:     pool,
		factory:  factory,
		genesis:  gen,
		log:      log,
	}
}

// Methods returns every method the handler serves.
func (h *Handler) Methods() []jsonrpc.Method { //nolint:funlen
	return []jsonrpc.Method{
		{
			Name:    "starknet_specVersion",
			Handler: h.SpecVersion,
		},
		{
			Name:    "starknet_chainId",
			Handler: h.ChainID,
		},
		{
			Name:    "starknet_syncing",
			Handler: h.Syncing,
		},
		{
			Name:    "starknet_blockNumber",
			Handler: h.BlockNumber,
		},
		{
			Name:    "starknet_blockHashAndNumber",
			Handler: h.BlockHashAndNumber,
		},
		{
			Name:    "starknet_getBlockWithTxHashes",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.BlockWithTxHashes,
		},
		{
			Name:    "starknet_getBlockWithTxs",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.BlockWithTxs,
		},
		{
			Name:    "starknet_getBlockWithReceipts",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.BlockWithReceipts,
		},
		{
			Name:    "starknet_getStateUpdate",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.StateUpdate,
		},
		{
			Name:    "starknet_getBlockTransactionCount",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.BlockTransactionCount,
		},
		{
			Name:    "starknet_getTransactionByHash",
			Params:  []jsonrpc.Parameter{{Name: "transaction_hash"}},
			Handler: h.TransactionByHash,
		},
		{
			Name:    "starknet_getTransactionByBlockIdAndIndex",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "index"}},
			Handler: h.TransactionByBlockIDAndIndex,
		},
		{
			Name:    "starknet_getTransactionReceipt",
			Params:  []jsonrpc.Parameter{{Name: "transaction_hash"}},
			Handler: h.TransactionReceiptByHash,
		},
		{
			Name:    "starknet_getTransactionStatus",
			Params:  []jsonrpc.Parameter{{Name: "transaction_hash"}},
			Handler: h.TransactionStatus,
		},
		{
			Name:    "starknet_getStorageAt",
			Params:  []jsonrpc.Parameter{{Name: "contract_address"}, {Name: "key"}, {Name: "block_id"}},
			Handler: h.StorageAt,
		},
		{
			Name:    "starknet_getNonce",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "contract_address"}},
			Handler: h.Nonce,
		},
		{
			Name:    "starknet_getClass",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "class_hash"}},
			Handler: h.Class,
		},
		{
			Name:    "starknet_getClassHashAt",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "contract_address"}},
			Handler: h.ClassHashAt,
		},
		{
			Name:    "starknet_getClassAt",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "contract_address"}},
			Handler: h.ClassAt,
		},
		{
			Name:    "starknet_call",
			Params:  []jsonrpc.Parameter{{Name: "request"}, {Name: "block_id"}},
			Handler: h.Call,
		},
		{
			Name:    "starknet_estimateFee",
			Params:  []jsonrpc.Parameter{{Name: "request"}, {Name: "simulation_flags"}, {Name: "block_id"}},
			Handler: h.EstimateFee,
		},
		{
			Name:    "starknet_estimateMessageFee",
			Params:  []jsonrpc.Parameter{{Name: "message"}, {Name: "block_id"}},
			Handler: h.EstimateMessageFee,
		},
		{
			Name:    "starknet_simulateTransactions",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}, {Name: "transactions"}, {Name: "simulation_flags"}},
			Handler: h.SimulateTransactions,
		},
		{
			Name:    "starknet_addInvokeTransaction",
			Params:  []jsonrpc.Parameter{{Name: "invoke_transaction"}},
			Handler: h.AddInvokeTransaction,
		},
		{
			Name:    "starknet_addDeclareTransaction",
			Params:  []jsonrpc.Parameter{{Name: "declare_transaction"}},
			Handler: h.AddDeclareTransaction,
		},
		{
			Name:    "starknet_addDeployAccountTransaction",
			Params:  []jsonrpc.Parameter{{Name: "deploy_account_transaction"}},
			Handler: h.AddDeployAccountTransaction,
		},
		{
			Name:    "starknet_traceTransaction",
			Params:  []jsonrpc.Parameter{{Name: "transaction_hash"}},
			Handler: h.TraceTransaction,
		},
		{
			Name:    "starknet_traceBlockTransactions",
			Params:  []jsonrpc.Parameter{{Name: "block_id"}},
			Handler: h.TraceBlockTransactions,
		},
		{
			Name:    "starknet_getEvents",
			Params:  []jsonrpc.Parameter{{Name: "filter"}},
			Handler: h.Events,
		},
		{
			Name:    "dev_generateBlock",
			Handler: h.GenerateBlock,
		},
		{
			Name:    "dev_nextBlockTimestamp",
			Handler: h.NextBlockTimestamp,
		},
		{
			Name:    "dev_increaseNextBlockTimestamp",
			Params:  []jsonrpc.Parameter{{Name: "timestamp"}},
			Handler: h.IncreaseNextBlockTimestamp,
		},
		{
			Name:    "dev_setNextBlockTimestamp",
			Params:  []jsonrpc.Parameter{{Name: "timestamp"}},
			Handler: h.SetNextBlockTimestamp,
		},
		{
			Name:    "dev_setStorageAt",
			Params:  []jsonrpc.Parameter{{Name: "contract_address"}, {Name: "key"}, {Name: "value"}},
			Handler: h.SetStorageAt,
		},
		{
			Name:    "dev_predeployedAccounts",
			Handler: h.PredeployedAccounts,
		},
		{
			Name:    "dev_accountBalance",
			Params:  []jsonrpc.Parameter{{Name: "address"}, {Name: "unit", Optional: true}},
			Handler: h.AccountBalance,
		},
		{
			Name:    "dev_feeToken",
			Handler: h.FeeToken,
		},
	}
}
