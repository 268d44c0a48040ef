package messaging

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/utils"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// MessagingABI is the part of the Starknet messaging contract the Ethereum messenger talks to.
const MessagingABI = `[
	{
		"type": "event",
		"name": "LogMessageToL2",
		"anonymous": false,
		"inputs": [
			{"name": "from_address", "type": "address", "indexed": true},
			{"name": "to_address", "type": "uint256", "indexed": true},
			{"name": "selector", "type": "uint256", "indexed": true},
			{"name": "payload", "type": "uint256[]", "indexed": false},
			{"name": "nonce", "type": "uint256", "indexed": false},
			{"name": "fee", "type": "uint256", "indexed": false}
		]
	},
	{
		"type": "function",
		"name": "addMessageHashesFromL2",
		"stateMutability": "payable",
		"inputs": [{"name": "msgHashes", "type": "uint256[]"}],
		"outputs": []
	}
]`

const (
	logMessageToL2         = "LogMessageToL2"
	addMessageHashesFromL2 = "addMessageHashesFromL2"
)

// EthereumClient reads the settlement chain. *l1.Client implements it.
type EthereumClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// HashRegistrar sends signed calls to the messaging contract. *l1.Transactor implements it.
type HashRegistrar interface {
	Transact(ctx context.Context, method string, args ...any) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

type logMessageToL2Event struct {
	FromAddress common.Address
	ToAddress   *big.Int
	Selector    *big.Int
	Payload     []*big.Int
	Nonce       *big.Int
	Fee         *big.Int
}

// EthereumMessenger gathers LogMessageToL2 events of the messaging contract and registers the
// hashes of outbound messages with addMessageHashesFromL2.
type EthereumMessenger struct {
	client    EthereumClient
	registrar HashRegistrar
	address   common.Address
	contract  *bind.BoundContract
	topic     common.Hash
	log       utils.SimpleLogger
}

func NewEthereumMessenger(client EthereumClient, registrar HashRegistrar, address common.Address,
	log utils.SimpleLogger,
) (*EthereumMessenger, error) {
	parsed, err := abi.JSON(strings.NewReader(MessagingABI))
	if err != nil {
		return nil, err
	}
	return &EthereumMessenger{
		client:    client,
		registrar: registrar,
		address:   address,
		contract:  bind.NewBoundContract(address, parsed, nil, nil, nil),
		topic:     parsed.Events[logMessageToL2].ID,
		log:       log,
	}, nil
}

func (m *EthereumMessenger) GatherMessages(ctx context.Context, from, maxBlocks uint64,
	chainID *felt.Felt,
) (uint64, []*core.L1HandlerTransaction, error) {
	latest, err := m.client.BlockNumber(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("settlement chain head: %w", err)
	}
	if from > latest {
		return latest, nil, nil
	}
	to := gatherWindow(from, maxBlocks, latest)

	logs, err := m.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{m.address},
		Topics:    [][]common.Hash{{m.topic}},
	})
	if err != nil {
		return 0, nil, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
	}

	txs := make([]*core.L1HandlerTransaction, 0, len(logs))
	for i := range logs {
		tx, err := m.l1Handler(&logs[i], chainID)
		if err != nil {
			m.log.Warnw("Skipping message log", "tx", logs[i].TxHash, "index", logs[i].Index, "err", err)
			continue
		}
		txs = append(txs, tx)
	}
	return to, txs, nil
}

func (m *EthereumMessenger) l1Handler(log *types.Log, chainID *felt.Felt) (*core.L1HandlerTransaction, error) {
	var event logMessageToL2Event
	if err := m.contract.UnpackLog(&event, logMessageToL2, *log); err != nil {
		return nil, err
	}

	from := new(felt.Felt).SetBytes(event.FromAddress.Bytes())
	to := bigToFelt(event.ToAddress)
	calldata := make([]*felt.Felt, 0, 1+len(event.Payload))
	calldata = append(calldata, from)
	for _, p := range event.Payload {
		calldata = append(calldata, bigToFelt(p))
	}

	tx := &core.L1HandlerTransaction{
		ContractAddress:    to,
		EntryPointSelector: bigToFelt(event.Selector),
		Nonce:              bigToFelt(event.Nonce),
		CallData:           calldata,
		Version:            core.NewTransactionVersion(0),
		MessageHash:        inboundMessageHash(from, to, calldata),
		PaidFeeOnL1:        bigToFelt(event.Fee),
	}
	hash, err := core.TransactionHash(tx, chainID)
	if err != nil {
		return nil, err
	}
	tx.TransactionHash = hash
	return tx, nil
}

// SendMessages registers the hashes of messages on the messaging contract and waits for the
// registration to be mined.
func (m *EthereumMessenger) SendMessages(ctx context.Context, messages []*core.L2ToL1Message) ([]common.Hash, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	hashes := make([]common.Hash, len(messages))
	args := make([]*big.Int, len(messages))
	for i, msg := range messages {
		hashes[i] = msg.Hash()
		args[i] = new(big.Int).SetBytes(hashes[i].Bytes())
	}

	tx, err := m.registrar.Transact(ctx, addMessageHashesFromL2, args)
	if err != nil {
		return nil, err
	}
	if _, err = m.registrar.WaitMined(ctx, tx); err != nil {
		return nil, fmt.Errorf("register %d message hashes: %w", len(hashes), err)
	}
	m.log.Debugw("Registered message hashes", "count", len(hashes), "tx", tx.Hash())
	return hashes, nil
}

// gatherWindow is the last block of a gather starting at from. The first block counts as one of
// the maxBlocks.
func gatherWindow(from, maxBlocks, latest uint64) uint64 {
	if from+maxBlocks+1 < latest {
		return from + maxBlocks
	}
	return latest
}

// inboundMessageHash hashes a message consumed by an L1 handler the way outbound messages are
// hashed, over the full calldata of the handler.
func inboundMessageHash(from, to *felt.Felt, calldata []*felt.Felt) common.Hash {
	return core.L2ToL1MessageHash(from, to, calldata)
}

func bigToFelt(v *big.Int) *felt.Felt {
	if v == nil {
		return new(felt.Felt)
	}
	return new(felt.Felt).SetBytes(v.Bytes())
}
