package validator_test

import (
	"testing"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/validator"
	"github.com/NethermindEth/katana/vm"
	"github.com/stretchr/testify/assert"
)

type tx struct {
	Type    vm.TransactionType `validate:"required"`
	Version *felt.Felt         `validate:"required"`
	Tip     *felt.Felt         `validate:"required_if=Version 0x3"`
	Class   *felt.Felt         `validate:"required_if=Type DECLARE"`
}

func TestValidator(t *testing.T) {
	v := validator.Validator()
	assert.Same(t, v, validator.Validator())

	tests := map[string]struct {
		tx    tx
		valid bool
	}{
		"invoke v1": {
			tx:    tx{Type: vm.TxnInvoke, Version: new(felt.Felt).SetUint64(1)},
			valid: true,
		},
		"missing type": {
			tx: tx{Version: new(felt.Felt).SetUint64(1)},
		},
		"missing version": {
			tx: tx{Type: vm.TxnInvoke},
		},
		"v3 without tip": {
			tx: tx{Type: vm.TxnInvoke, Version: new(felt.Felt).SetUint64(3)},
		},
		"v3 with tip": {
			tx:    tx{Type: vm.TxnInvoke, Version: new(felt.Felt).SetUint64(3), Tip: new(felt.Felt)},
			valid: true,
		},
		"declare without class": {
			tx: tx{Type: vm.TxnDeclare, Version: new(felt.Felt).SetUint64(1)},
		},
	}
	for desc, test := range tests {
		t.Run(desc, func(t *testing.T) {
			err := v.Struct(test.tx)
			if test.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
