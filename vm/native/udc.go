package native

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core/crypto"
)

var contractDeployedEvent = crypto.Selector("ContractDeployed")

// UDCProgram is the Universal Deployer Contract.
func UDCProgram() *Program {
	return newProgram("katana_udc").external(udcDeployContract, "deployContract", "deploy_contract")
}

// deployContract(class_hash, salt, unique, calldata_len, calldata...) -> address
//
// A unique deployment salts with the caller and derives the address from the UDC; otherwise the
// address is derived from the zero deployer and does not depend on the caller.
func udcDeployContract(f *frame, calldata []*felt.Felt) ([]*felt.Felt, error) {
	if err := args(calldata, 3); err != nil {
		return nil, err
	}
	classHash, salt, unique := calldata[0], calldata[1], calldata[2]
	ctorCalldata, _, err := span(calldata, 3)
	if err != nil {
		return nil, err
	}

	deployer, addressSalt := new(felt.Felt), salt
	if !unique.IsZero() {
		f.invocation.ExecutionResources.Pedersen++
		addressSalt = crypto.Pedersen(f.caller, salt)
		deployer = f.self
	}

	addr, err := f.deploy(deployer, classHash, addressSalt, ctorCalldata)
	if err != nil {
		return nil, err
	}

	data := []*felt.Felt{addr, f.caller, unique, classHash, new(felt.Felt).SetUint64(uint64(len(ctorCalldata)))}
	data = append(data, ctorCalldata...)
	data = append(data, salt)
	if err := f.emit([]*felt.Felt{contractDeployedEvent}, data); err != nil {
		return nil, err
	}
	return []*felt.Felt{addr}, nil
}
