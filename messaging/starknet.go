package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/clients/starknet"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/utils"
	"github.com/ethereum/go-ethereum/common"
)

// A Starknet settlement chain only accepts Ethereum addresses as message recipients, so outbound
// messages put a magic value there and the real recipient in the payload.
var (
	// msgMagic is 'MSG': the message is registered by hash, payload[0] is the recipient.
	msgMagic = new(felt.Felt).SetUint64(0x4d5347)
	// exeMagic is 'EXE': payload[0] is a contract, payload[1] a selector and the rest calldata.
	// The call is executed on the settlement chain.
	exeMagic = new(felt.Felt).SetUint64(0x455845)
)

// HashExec stands for the hash of a message executed on the settlement chain.
var HashExec = common.BytesToHash([]byte{0xee})

// DefaultMaxFee is the max fee of the invokes sent to a Starknet settlement chain, 0.01 ETH.
var DefaultMaxFee = utils.MustHexToFelt("0x2386f26fc10000")

// inboundPaidFee is the fee reported for messages gathered from a Starknet settlement chain,
// which does not charge one.
const inboundPaidFee = 30000

const eventsChunkSize = 200

var errNotAMessage = errors.New("not a message event")

var (
	messageSentToAppchain         = crypto.Selector("MessageSentToAppchain")
	addMessagesHashesFromAppchain = crypto.Selector("add_messages_hashes_from_appchain")
)

// StarknetClient talks to the settlement chain. *starknet.Client implements it.
type StarknetClient interface {
	ChainID(ctx context.Context) (*felt.Felt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Events(ctx context.Context, filter starknet.EventFilter) (*starknet.EventsChunk, error)
	PendingNonce(ctx context.Context, addr *felt.Felt) (*felt.Felt, error)
	AddInvokeTransaction(ctx context.Context, tx *core.InvokeTransaction) (*felt.Felt, error)
}

// StarknetMessenger gathers MessageSentToAppchain events of the messaging contract and settles
// outbound messages through an account of the settlement chain.
type StarknetMessenger struct {
	client     StarknetClient
	chainID    *felt.Felt
	contract   *felt.Felt
	sender     *felt.Felt
	privateKey *felt.Felt
	maxFee     *felt.Felt
	log        utils.SimpleLogger
}

func NewStarknetMessenger(ctx context.Context, client StarknetClient, cfg *Config,
	log utils.SimpleLogger,
) (*StarknetMessenger, error) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("settlement chain id: %w", err)
	}

	m := &StarknetMessenger{
		client:  client,
		chainID: chainID,
		maxFee:  DefaultMaxFee,
		log:     log,
	}
	if m.contract, err = new(felt.Felt).SetString(cfg.ContractAddress); err != nil {
		return nil, fmt.Errorf("contract address: %w", err)
	}
	if m.sender, err = new(felt.Felt).SetString(cfg.SenderAddress); err != nil {
		return nil, fmt.Errorf("sender address: %w", err)
	}
	if m.privateKey, err = new(felt.Felt).SetString(cfg.PrivateKey); err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	if cfg.MaxFee != "" {
		if m.maxFee, err = new(felt.Felt).SetString(cfg.MaxFee); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *StarknetMessenger) GatherMessages(ctx context.Context, from, maxBlocks uint64,
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

	events, err := m.fetchEvents(ctx, from, to)
	if err != nil {
		return 0, nil, err
	}

	txs := make([]*core.L1HandlerTransaction, 0, len(events))
	for i := range events {
		tx, err := l1HandlerFromEvent(&events[i], chainID)
		if err != nil {
			m.log.Debugw("Skipping event", "tx", events[i].TransactionHash, "err", err)
			continue
		}
		txs = append(txs, tx)
	}
	return to, txs, nil
}

func (m *StarknetMessenger) fetchEvents(ctx context.Context, from, to uint64) ([]starknet.EmittedEvent, error) {
	fromID, toID := starknet.BlockByNumber(from), starknet.BlockByNumber(to)
	filter := starknet.EventFilter{
		FromBlock: &fromID,
		ToBlock:   &toID,
		Address:   m.contract,
		ChunkSize: eventsChunkSize,
	}

	var events []starknet.EmittedEvent
	for {
		chunk, err := m.client.Events(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("fetch events %d-%d: %w", from, to, err)
		}
		events = append(events, chunk.Events...)
		if chunk.ContinuationToken == "" {
			return events, nil
		}
		filter.ContinuationToken = chunk.ContinuationToken
	}
}

// l1HandlerFromEvent decodes MessageSentToAppchain. Keys are [selector, message hash, from, to],
// data is [selector, nonce, payload length, payload...].
func l1HandlerFromEvent(event *starknet.EmittedEvent, chainID *felt.Felt) (*core.L1HandlerTransaction, error) {
	if len(event.Keys) == 0 || !event.Keys[0].Equal(messageSentToAppchain) {
		return nil, errNotAMessage
	}
	if len(event.Keys) != 4 || len(event.Data) < 3 {
		return nil, fmt.Errorf("malformed message event: %d keys, %d data", len(event.Keys), len(event.Data))
	}

	from, to := event.Keys[2], event.Keys[3]
	calldata := append([]*felt.Felt{from}, event.Data[3:]...)
	tx := &core.L1HandlerTransaction{
		ContractAddress:    to,
		EntryPointSelector: event.Data[0],
		Nonce:              event.Data[1],
		CallData:           calldata,
		Version:            core.NewTransactionVersion(0),
		MessageHash:        inboundMessageHash(from, to, calldata),
		PaidFeeOnL1:        new(felt.Felt).SetUint64(inboundPaidFee),
	}
	hash, err := core.TransactionHash(tx, chainID)
	if err != nil {
		return nil, err
	}
	tx.TransactionHash = hash
	return tx, nil
}

type call struct {
	to       *felt.Felt
	selector *felt.Felt
	calldata []*felt.Felt
}

// SendMessages registers 'MSG' messages by hash and executes 'EXE' ones, in a single invoke of
// the sender account. Executed messages are reported as HashExec.
func (m *StarknetMessenger) SendMessages(ctx context.Context, messages []*core.L2ToL1Message) ([]common.Hash, error) {
	hashes, calls := m.parseMessages(messages)

	registered := make([]*felt.Felt, 0, len(hashes))
	for _, h := range hashes {
		if h != HashExec {
			registered = append(registered, new(felt.Felt).SetBytes(h.Bytes()))
		}
	}
	if len(registered) > 0 {
		calldata := append([]*felt.Felt{new(felt.Felt).SetUint64(uint64(len(registered)))}, registered...)
		calls = append(calls, call{to: m.contract, selector: addMessagesHashesFromAppchain, calldata: calldata})
	}
	if len(calls) == 0 {
		return hashes, nil
	}

	txHash, err := m.invoke(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("settle %d messages: %w", len(messages), err)
	}
	m.log.Debugw("Settled messages", "count", len(messages), "tx", txHash)
	return hashes, nil
}

func (m *StarknetMessenger) parseMessages(messages []*core.L2ToL1Message) ([]common.Hash, []call) {
	var (
		hashes []common.Hash
		calls  []call
	)
	for _, msg := range messages {
		switch {
		case msg.To.Equal(exeMagic):
			if len(msg.Payload) < 2 {
				m.log.Warnw("Executed message needs a contract and a selector", "from", msg.From)
				continue
			}
			calls = append(calls, call{to: msg.Payload[0], selector: msg.Payload[1], calldata: msg.Payload[2:]})
			hashes = append(hashes, HashExec)
		case msg.To.Equal(msgMagic):
			if len(msg.Payload) == 0 {
				m.log.Warnw("Message has no recipient", "from", msg.From)
				continue
			}
			hashes = append(hashes, appchainMessageHash(msg.From, msg.Payload[0], msg.Payload[1:]))
		default:
			m.log.Warnw("Skipping message without a valid magic recipient", "from", msg.From, "to", msg.To)
		}
	}
	return hashes, calls
}

// appchainMessageHash is starknet_keccak(from || to || len(payload) || payload...).
func appchainMessageHash(from, to *felt.Felt, payload []*felt.Felt) common.Hash {
	buf := make([]byte, 0, 32*(3+len(payload)))
	for _, f := range append([]*felt.Felt{from, to, new(felt.Felt).SetUint64(uint64(len(payload)))}, payload...) {
		b := f.Bytes()
		buf = append(buf, b[:]...)
	}
	return common.Hash(crypto.StarknetKeccak(buf).Bytes())
}

// invoke signs and submits a v1 invoke of calls from the sender account.
func (m *StarknetMessenger) invoke(ctx context.Context, calls []call) (*felt.Felt, error) {
	nonce, err := m.client.PendingNonce(ctx, m.sender)
	if err != nil {
		return nil, fmt.Errorf("sender nonce: %w", err)
	}

	calldata := []*felt.Felt{new(felt.Felt).SetUint64(uint64(len(calls)))}
	for _, c := range calls {
		calldata = append(calldata, c.to, c.selector, new(felt.Felt).SetUint64(uint64(len(c.calldata))))
		calldata = append(calldata, c.calldata...)
	}
	tx := &core.InvokeTransaction{
		SenderAddress: m.sender,
		CallData:      calldata,
		MaxFee:        m.maxFee,
		Nonce:         nonce,
		Version:       core.NewTransactionVersion(1),
	}
	hash, err := core.TransactionHash(tx, m.chainID)
	if err != nil {
		return nil, err
	}
	r, s, err := crypto.Sign(m.privateKey, hash)
	if err != nil {
		return nil, err
	}
	tx.TransactionHash = hash
	tx.TransactionSignature = []*felt.Felt{r, s}
	return m.client.AddInvokeTransaction(ctx, tx)
}
