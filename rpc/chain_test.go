package rpc_test

import (
	"errors"
	"testing"

	"github.com/NethermindEth/katana/blockchain"
	"github.com/NethermindEth/katana/mocks"
	"github.com/NethermindEth/katana/rpc"
	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestChainErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	chain := mocks.NewMockReader(ctrl)
	handler := rpc.New(chain, nil, nil, nil, nil, utils.NewNopZapLogger())

	t.Run("chain id", func(t *testing.T) {
		chain.EXPECT().ChainID().Return(utils.DefaultChainID)
		id, rpcErr := handler.ChainID()
		require.Nil(t, rpcErr)
		assert.Equal(t, utils.DefaultChainID.Felt(), id)
	})

	t.Run("empty chain", func(t *testing.T) {
		chain.EXPECT().Height().Return(uint64(0), blockchain.ErrBlockNotFound)
		_, rpcErr := handler.BlockNumber()
		assert.Equal(t, rpc.ErrNoBlock, rpcErr)
	})

	t.Run("missing header", func(t *testing.T) {
		chain.EXPECT().Height().Return(uint64(4), nil)
		chain.EXPECT().HeaderByNumber(uint64(4)).Return(nil, blockchain.ErrBlockNotFound)
		_, rpcErr := handler.BlockHashAndNumber()
		assert.Equal(t, rpc.ErrBlockNotFound, rpcErr)
	})

	t.Run("storage failures are internal", func(t *testing.T) {
		chain.EXPECT().Height().Return(uint64(4), nil)
		chain.EXPECT().HeaderByNumber(uint64(4)).Return(nil, errors.New("pebble: closed"))
		_, rpcErr := handler.BlockHashAndNumber()
		require.NotNil(t, rpcErr)
		assert.Equal(t, rpc.ErrInternal.Code, rpcErr.Code)
	})
}
