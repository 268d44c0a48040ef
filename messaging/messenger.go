// Package messaging bridges the chain with its settlement chain. Messages sent to the chain are
// gathered from the settlement chain and turned into L1 handler transactions, messages sent by
// mined transactions are registered on the settlement chain.
package messaging

import (
	"context"
	"fmt"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/clients/starknet"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/l1"
	"github.com/NethermindEth/katana/utils"
	"github.com/ethereum/go-ethereum/common"
)

// Messenger is an Ethereum or a Starknet messenger.
type Messenger struct {
	chain    Chain
	ethereum *EthereumMessenger
	starknet *StarknetMessenger
	close    func()
}

func FromEthereum(m *EthereumMessenger) *Messenger {
	return &Messenger{chain: ChainEthereum, ethereum: m, close: func() {}}
}

func FromStarknet(m *StarknetMessenger) *Messenger {
	return &Messenger{chain: ChainStarknet, starknet: m, close: func() {}}
}

// Dial connects to the settlement chain of cfg.
func Dial(ctx context.Context, cfg *Config, log utils.SimpleLogger) (*Messenger, error) {
	switch cfg.Chain {
	case ChainEthereum:
		client, err := l1.Dial(ctx, cfg.RPCURL)
		if err != nil {
			return nil, err
		}
		registrar, err := l1.NewTransactor(client, common.HexToAddress(cfg.ContractAddress), MessagingABI, cfg.PrivateKey)
		if err != nil {
			client.Close()
			return nil, err
		}
		m, err := NewEthereumMessenger(client, registrar, common.HexToAddress(cfg.ContractAddress), log)
		if err != nil {
			client.Close()
			return nil, err
		}
		messenger := FromEthereum(m)
		messenger.close = client.Close
		return messenger, nil
	case ChainStarknet:
		client, err := starknet.Dial(ctx, cfg.RPCURL)
		if err != nil {
			return nil, err
		}
		m, err := NewStarknetMessenger(ctx, client.WithLogger(log), cfg, log)
		if err != nil {
			client.Close()
			return nil, err
		}
		messenger := FromStarknet(m)
		messenger.close = client.Close
		return messenger, nil
	default:
		return nil, fmt.Errorf("unknown settlement chain %q", cfg.Chain)
	}
}

func (m *Messenger) Chain() Chain {
	return m.chain
}

// GatherMessages returns the messages sent to the chain in the settlement blocks [from, to] as L1
// handler transactions of chainID, along with to. At most maxBlocks blocks are scanned.
func (m *Messenger) GatherMessages(ctx context.Context, from, maxBlocks uint64,
	chainID *felt.Felt,
) (uint64, []*core.L1HandlerTransaction, error) {
	if m.chain == ChainStarknet {
		return m.starknet.GatherMessages(ctx, from, maxBlocks, chainID)
	}
	return m.ethereum.GatherMessages(ctx, from, maxBlocks, chainID)
}

// SendMessages settles messages and returns the hashes they are known under on the settlement
// chain.
func (m *Messenger) SendMessages(ctx context.Context, messages []*core.L2ToL1Message) ([]common.Hash, error) {
	if m.chain == ChainStarknet {
		return m.starknet.SendMessages(ctx, messages)
	}
	return m.ethereum.SendMessages(ctx, messages)
}

func (m *Messenger) Close() {
	m.close()
}
