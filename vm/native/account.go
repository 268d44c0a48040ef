package native

import (
	"errors"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/utils"
)

var (
	validMagic = utils.MustHexToFelt("0x56414c4944") // 'VALID'

	// SRC6 and SRC5 interface ids.
	accountInterfaceID = utils.MustHexToFelt("0x2ceccef7f994940b3962a6c67e0ba4fcd37df7d131417c604f91e03caecc1cd")
	src5InterfaceID    = utils.MustHexToFelt("0x3f918d17e5ee77373b56385708f855659a07f75997f365cf87748628532a055")

	errInvalidSignature = errors.New("Account: invalid signature")
	errInvalidCaller    = errors.New("Account: invalid caller")
	errUnauthorized     = errors.New("Account: unauthorized")
)

const publicKeyVar = "Account_public_key"

// AccountProgram is an OpenZeppelin style account controlled by a single STARK key.
//
// __execute__ takes Cairo 1 call arrays: [n, (to, selector, len, calldata...) * n]. A call to the
// zero address sends an L2 to L1 message to the address in the selector position with the
// calldata as payload.
func AccountProgram() *Program {
	p := newProgram("katana_account")
	p.add(Constructor, constructorSelector, accountConstructor)
	p.external(accountValidate, "__validate__", "__validate_declare__", "__validate_deploy__")
	p.external(accountExecute, "__execute__")
	p.external(accountPublicKey, "get_public_key", "getPublicKey")
	p.external(accountSetPublicKey, "set_public_key", "setPublicKey")
	p.external(accountIsValidSignature, "is_valid_signature", "isValidSignature")
	p.external(accountSupportsInterface, "supports_interface", "supportsInterface")
	return p
}

func accountConstructor(f *frame, calldata []*felt.Felt) ([]*felt.Felt, error) {
	if err := args(calldata, 1); err != nil {
		return nil, err
	}
	return []*felt.Felt{}, f.write(f.storageVar(publicKeyVar), calldata[0])
}

func accountValidate(f *frame, _ []*felt.Felt) ([]*felt.Felt, error) {
	pub, err := f.read(f.storageVar(publicKeyVar))
	if err != nil {
		return nil, err
	}
	valid, err := f.verifySignature(pub, f.exec.tx.hash, f.exec.tx.signature)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, errInvalidSignature
	}
	return []*felt.Felt{validMagic}, nil
}

func accountExecute(f *frame, calldata []*felt.Felt) ([]*felt.Felt, error) {
	if !f.caller.IsZero() {
		return nil, errInvalidCaller
	}
	if err := args(calldata, 1); err != nil {
		return nil, err
	}
	n, ok := feltToInt(calldata[0])
	if !ok {
		return nil, errors.New("Failed to deserialize param #1")
	}

	results := []*felt.Felt{new(felt.Felt).SetUint64(uint64(n))}
	at := 1
	for range n {
		if err := args(calldata, at+2); err != nil {
			return nil, err
		}
		to, selector := calldata[at], calldata[at+1]
		data, next, err := span(calldata, at+2)
		if err != nil {
			return nil, err
		}
		at = next

		var result []*felt.Felt
		if to.IsZero() {
			err = f.sendMessage(selector, data)
		} else {
			result, err = f.call(to, selector, data)
		}
		if err != nil {
			return nil, err
		}
		results = append(results, new(felt.Felt).SetUint64(uint64(len(result))))
		results = append(results, result...)
	}
	return results, nil
}

func accountPublicKey(f *frame, _ []*felt.Felt) ([]*felt.Felt, error) {
	pub, err := f.read(f.storageVar(publicKeyVar))
	if err != nil {
		return nil, err
	}
	return []*felt.Felt{pub}, nil
}

func accountSetPublicKey(f *frame, calldata []*felt.Felt) ([]*felt.Felt, error) {
	if !f.caller.Equal(f.self) {
		return nil, errUnauthorized
	}
	if err := args(calldata, 1); err != nil {
		return nil, err
	}
	return []*felt.Felt{}, f.write(f.storageVar(publicKeyVar), calldata[0])
}

func accountIsValidSignature(f *frame, calldata []*felt.Felt) ([]*felt.Felt, error) {
	if err := args(calldata, 1); err != nil {
		return nil, err
	}
	signature, _, err := span(calldata, 1)
	if err != nil {
		return nil, err
	}
	pub, err := f.read(f.storageVar(publicKeyVar))
	if err != nil {
		return nil, err
	}
	valid, err := f.verifySignature(pub, calldata[0], signature)
	if err != nil {
		return nil, err
	}
	if !valid {
		return []*felt.Felt{new(felt.Felt)}, nil
	}
	return []*felt.Felt{validMagic}, nil
}

func accountSupportsInterface(_ *frame, calldata []*felt.Felt) ([]*felt.Felt, error) {
	if err := args(calldata, 1); err != nil {
		return nil, err
	}
	if calldata[0].Equal(accountInterfaceID) || calldata[0].Equal(src5InterfaceID) {
		return []*felt.Felt{new(felt.Felt).SetUint64(1)}, nil
	}
	return []*felt.Felt{new(felt.Felt)}, nil
}

// PublicKeyKey is the storage key holding the public key of an account.
func PublicKeyKey() *felt.Felt {
	return core.StorageVarAddress(publicKeyVar)
}
