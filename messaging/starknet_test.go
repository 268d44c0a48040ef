package messaging

import (
	"context"
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/clients/starknet"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStarknet struct {
	latest  uint64
	pages   []*starknet.EventsChunk
	filters []starknet.EventFilter
	invokes []*core.InvokeTransaction
}

func (f *fakeStarknet) ChainID(context.Context) (*felt.Felt, error) {
	return utils.MustChainID("SN_SEPOLIA").Felt(), nil
}

func (f *fakeStarknet) BlockNumber(context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeStarknet) Events(_ context.Context, filter starknet.EventFilter) (*starknet.EventsChunk, error) {
	page := len(f.filters)
	f.filters = append(f.filters, filter)
	if page >= len(f.pages) {
		return &starknet.EventsChunk{}, nil
	}
	return f.pages[page], nil
}

func (f *fakeStarknet) PendingNonce(context.Context, *felt.Felt) (*felt.Felt, error) {
	return new(felt.Felt).SetUint64(7), nil
}

func (f *fakeStarknet) AddInvokeTransaction(_ context.Context, tx *core.InvokeTransaction) (*felt.Felt, error) {
	f.invokes = append(f.invokes, tx)
	return tx.TransactionHash, nil
}

const senderKey = "0x1800000000300000180000000000030000000000003006001800006600"

func newStarknetMessenger(t *testing.T, client *fakeStarknet) *StarknetMessenger {
	t.Helper()
	m, err := NewStarknetMessenger(context.Background(), client, &Config{
		Chain:           ChainStarknet,
		ContractAddress: "0x100",
		SenderAddress:   "0x200",
		PrivateKey:      senderKey,
	}, utils.NewNopZapLogger())
	require.NoError(t, err)
	return m
}

func felts(vs ...uint64) []*felt.Felt {
	out := make([]*felt.Felt, len(vs))
	for i, v := range vs {
		out[i] = new(felt.Felt).SetUint64(v)
	}
	return out
}

func messageEvent(nonce uint64) starknet.EmittedEvent {
	return starknet.EmittedEvent{
		From: new(felt.Felt).SetUint64(0x100),
		Keys: []*felt.Felt{messageSentToAppchain, new(felt.Felt).SetUint64(0xaa),
			new(felt.Felt).SetUint64(0x11), new(felt.Felt).SetUint64(0x22)},
		Data: []*felt.Felt{crypto.Selector("msg_handler"), new(felt.Felt).SetUint64(nonce),
			new(felt.Felt).SetUint64(2), new(felt.Felt).SetUint64(1), new(felt.Felt).SetUint64(2)},
	}
}

func TestStarknetGatherMessages(t *testing.T) {
	client := &fakeStarknet{
		latest: 50,
		pages: []*starknet.EventsChunk{
			{Events: []starknet.EmittedEvent{messageEvent(1)}, ContinuationToken: "next"},
			{Events: []starknet.EmittedEvent{
				{Keys: []*felt.Felt{crypto.Selector("Transfer")}},
				messageEvent(2),
			}},
		},
	}
	m := newStarknetMessenger(t, client)

	to, txs, err := m.GatherMessages(context.Background(), 0, 200, utils.DefaultChainID.Felt())
	require.NoError(t, err)
	assert.Equal(t, uint64(50), to)
	require.Len(t, txs, 2)

	require.Len(t, client.filters, 2)
	assert.Empty(t, client.filters[0].ContinuationToken)
	assert.Equal(t, "next", client.filters[1].ContinuationToken)
	assert.Equal(t, uint64(eventsChunkSize), client.filters[0].ChunkSize)
	assert.Equal(t, new(felt.Felt).SetUint64(0x100), client.filters[0].Address)

	tx := txs[1]
	calldata := felts(0x11, 1, 2)
	assert.Equal(t, new(felt.Felt).SetUint64(0x22), tx.ContractAddress)
	assert.Equal(t, crypto.Selector("msg_handler"), tx.EntryPointSelector)
	assert.Equal(t, new(felt.Felt).SetUint64(2), tx.Nonce)
	assert.Equal(t, calldata, tx.CallData)
	assert.Equal(t, new(felt.Felt).SetUint64(inboundPaidFee), tx.PaidFeeOnL1)
	assert.Equal(t, inboundMessageHash(new(felt.Felt).SetUint64(0x11), new(felt.Felt).SetUint64(0x22), calldata),
		tx.MessageHash)

	expected, err := core.TransactionHash(tx, utils.DefaultChainID.Felt())
	require.NoError(t, err)
	assert.Equal(t, expected, tx.TransactionHash)
	assert.NotEqual(t, txs[0].TransactionHash, tx.TransactionHash)
}

func TestL1HandlerFromMalformedEvent(t *testing.T) {
	event := messageEvent(1)
	event.Keys = event.Keys[:3]
	_, err := l1HandlerFromEvent(&event, utils.DefaultChainID.Felt())
	require.Error(t, err)

	event = messageEvent(1)
	event.Data = event.Data[:2]
	_, err = l1HandlerFromEvent(&event, utils.DefaultChainID.Felt())
	require.Error(t, err)
}

func TestParseMessages(t *testing.T) {
	from := crypto.Selector("from_address")
	to := crypto.Selector("to_address")
	selector := crypto.Selector("selector")
	m := newStarknetMessenger(t, &fakeStarknet{})

	hashes, calls := m.parseMessages([]*core.L2ToL1Message{
		{From: from, To: msgMagic, Payload: []*felt.Felt{to, felts(1)[0], felts(2)[0]}},
		{From: from, To: exeMagic, Payload: []*felt.Felt{to, selector, felts(1)[0], felts(2)[0]}},
		{From: from, To: new(felt.Felt).SetUint64(0x1234), Payload: felts(1)},
		{From: from, To: exeMagic, Payload: []*felt.Felt{to}},
	})

	assert.Equal(t, []common.Hash{
		common.HexToHash("0x03a1d2e131360f15e26dd4f6ff10550685611cc25f75e7950b704adb04b36162"),
		HashExec,
	}, hashes)
	require.Len(t, calls, 1)
	assert.Equal(t, to, calls[0].to)
	assert.Equal(t, selector, calls[0].selector)
	assert.Equal(t, felts(1, 2), calls[0].calldata)
}

func TestStarknetSendMessages(t *testing.T) {
	client := &fakeStarknet{}
	m := newStarknetMessenger(t, client)
	to := new(felt.Felt).SetUint64(0x999)

	hashes, err := m.SendMessages(context.Background(), []*core.L2ToL1Message{
		{From: felts(1)[0], To: msgMagic, Payload: felts(0x33, 5)},
		{From: felts(1)[0], To: exeMagic, Payload: []*felt.Felt{to, crypto.Selector("poke"), felts(9)[0]}},
	})
	require.NoError(t, err)
	require.Len(t, hashes, 2)
	assert.Equal(t, HashExec, hashes[1])

	require.Len(t, client.invokes, 1)
	tx := client.invokes[0]
	assert.Equal(t, new(felt.Felt).SetUint64(0x200), tx.SenderAddress)
	assert.Equal(t, felts(7)[0], tx.Nonce)
	assert.Equal(t, DefaultMaxFee, tx.MaxFee)
	assert.True(t, tx.Version.Is(1))

	registered := new(felt.Felt).SetBytes(hashes[0].Bytes())
	assert.Equal(t, []*felt.Felt{
		felts(2)[0],
		to, crypto.Selector("poke"), felts(1)[0], felts(9)[0],
		new(felt.Felt).SetUint64(0x100), addMessagesHashesFromAppchain, felts(2)[0], felts(1)[0], registered,
	}, tx.CallData)

	hash, err := core.TransactionHash(tx, utils.MustChainID("SN_SEPOLIA").Felt())
	require.NoError(t, err)
	assert.Equal(t, hash, tx.TransactionHash)
	pub, err := crypto.PublicKey(utils.MustHexToFelt(senderKey))
	require.NoError(t, err)
	ok, err := crypto.Verify(pub, hash, tx.TransactionSignature[0], tx.TransactionSignature[1])
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("only executed messages", func(t *testing.T) {
		client := &fakeStarknet{}
		_, err := newStarknetMessenger(t, client).SendMessages(context.Background(), []*core.L2ToL1Message{
			{From: felts(1)[0], To: exeMagic, Payload: []*felt.Felt{to, crypto.Selector("poke")}},
		})
		require.NoError(t, err)
		require.Len(t, client.invokes, 1)
		assert.Equal(t, felts(1)[0], client.invokes[0].CallData[0])
	})

	t.Run("nothing valid to send", func(t *testing.T) {
		client := &fakeStarknet{}
		hashes, err := newStarknetMessenger(t, client).SendMessages(context.Background(), []*core.L2ToL1Message{
			{From: felts(1)[0], To: felts(5)[0]},
		})
		require.NoError(t, err)
		assert.Empty(t, hashes)
		assert.Empty(t, client.invokes)
	})
}
