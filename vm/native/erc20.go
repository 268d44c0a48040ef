package native

import (
	"errors"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/holiman/uint256"
)

// OpenZeppelin Cairo 0 ERC20 storage layout.
const (
	nameVar        = "ERC20_name"
	symbolVar      = "ERC20_symbol"
	decimalsVar    = "ERC20_decimals"
	totalSupplyVar = "ERC20_total_supply"
	balancesVar    = "ERC20_balances"
	allowancesVar  = "ERC20_allowances"
)

var (
	transferEvent = crypto.Selector("Transfer")
	approvalEvent = crypto.Selector("Approval")

	errTransferToZero   = errors.New("ERC20: cannot transfer to the zero address")
	errTransferFromZero = errors.New("ERC20: cannot transfer from the zero address")
	errApproveToZero    = errors.New("ERC20: cannot approve to the zero address")
	errMintToZero       = errors.New("ERC20: cannot mint to the zero address")
	errExceedsBalance   = errors.New("ERC20: transfer amount exceeds balance")
	errExceedsAllowance = errors.New("ERC20: insufficient allowance")
	errSupplyOverflow   = errors.New("ERC20: total supply overflow")
	errDecimalsTooLarge = errors.New("ERC20: decimals exceed 255")
)

// BalanceKey is the storage key of the low limb of addr's balance. The high limb lives at the
// next key.
func BalanceKey(addr *felt.Felt) *felt.Felt {
	return core.StorageVarAddress(balancesVar, addr)
}

// ERC20Program is the fee token. On top of the standard interface it accepts deposits sent from
// L1 through the handle_deposit L1 handler, which mints to the recipient.
func ERC20Program() *Program {
	p := newProgram("katana_erc20")
	p.add(Constructor, constructorSelector, erc20Constructor)
	p.add(L1Handler, crypto.Selector("handle_deposit"), erc20HandleDeposit)
	p.external(erc20Felt(nameVar), "name")
	p.external(erc20Felt(symbolVar), "symbol")
	p.external(erc20Felt(decimalsVar), "decimals")
	p.external(erc20TotalSupply, "totalSupply", "total_supply")
	p.external(erc20BalanceOf, "balanceOf", "balance_of")
	p.external(erc20Allowance, "allowance")
	p.external(erc20Transfer, "transfer")
	p.external(erc20TransferFrom, "transferFrom", "transfer_from")
	p.external(erc20Approve, "approve")
	p.external(erc20IncreaseAllowance, "increaseAllowance", "increase_allowance")
	return p
}

// constructor(name, symbol, decimals, initial_supply: u256, recipient)
func erc20Constructor(f *frame, calldata []*felt.Felt) ([]*felt.Felt, error) {
	if err := args(calldata, 6); err != nil {
		return nil, err
	}
	if decimals, ok := feltToInt(calldata[2]); !ok || decimals > 255 {
		return nil, errDecimalsTooLarge
	}
	supply, err := u256FromLimbs(calldata[3], calldata[4])
	if err != nil {
		return nil, err
	}

	for i, name := range []string{nameVar, symbolVar, decimalsVar} {
		if err := f.write(f.storageVar(name), calldata[i]); err != nil {
			return nil, err
		}
	}
	return []*felt.Felt{}, erc20Mint(f, calldata[5], supply)
}

// handle_deposit(from_address, recipient, amount: u256)
func erc20HandleDeposit(f *frame, calldata []*felt.Felt) ([]*felt.Felt, error) {
	if err := args(calldata, 4); err != nil {
		return nil, err
	}
	amount, err := u256FromLimbs(calldata[2], calldata[3])
	if err != nil {
		return nil, err
	}
	return []*felt.Felt{}, erc20Mint(f, calldata[1], amount)
}

func erc20Felt(name string) handler {
	return func(f *frame, _ []*felt.Felt) ([]*felt.Felt, error) {
		v, err := f.read(f.storageVar(name))
		if err != nil {
			return nil, err
		}
		return []*felt.Felt{v}, nil
	}
}

func u256Result(v *uint256.Int) []*felt.Felt {
	low, high := u256ToLimbs(v)
	return []*felt.Felt{low, high}
}

func erc20TotalSupply(f *frame, _ []*felt.Felt) ([]*felt.Felt, error) {
	supply, err := f.readU256(f.storageVar(totalSupplyVar))
	if err != nil {
		return nil, err
	}
	return u256Result(supply), nil
}

func erc20BalanceOf(f *frame, calldata []*felt.Felt) ([]*felt.Felt, error) {
	if err := args(calldata, 1); err != nil {
		return nil, err
	}
	balance, err := f.readU256(f.storageVar(balancesVar, calldata[0]))
	if err != nil {
		return nil, err
	}
	return u256Result(balance), nil
}

func erc20Allowance(f *frame, calldata []*felt.Felt) ([]*felt.Felt, error) {
	if err := args(calldata, 2); err != nil {
		return nil, err
	}
	allowance, err := f.readU256(f.storageVar(allowancesVar, calldata[0], calldata[1]))
	if err != nil {
		return nil, err
	}
	return u256Result(allowance), nil
}

// transfer(recipient, amount: u256) -> bool
func erc20Transfer(f *frame, calldata []*felt.Felt) ([]*felt.Felt, error) {
	if err := args(calldata, 3); err != nil {
		return nil, err
	}
	amount, err := u256FromLimbs(calldata[1], calldata[2])
	if err != nil {
		return nil, err
	}
	if err := erc20Move(f, f.caller, calldata[0], amount); err != nil {
		return nil, err
	}
	return []*felt.Felt{one}, nil
}

// transferFrom(sender, recipient, amount: u256) -> bool
func erc20TransferFrom(f *frame, calldata []*felt.Felt) ([]*felt.Felt, error) {
	if err := args(calldata, 4); err != nil {
		return nil, err
	}
	amount, err := u256FromLimbs(calldata[2], calldata[3])
	if err != nil {
		return nil, err
	}

	sender := calldata[0]
	allowanceKey := f.storageVar(allowancesVar, sender, f.caller)
	allowance, err := f.readU256(allowanceKey)
	if err != nil {
		return nil, err
	}
	if allowance.Lt(amount) {
		return nil, errExceedsAllowance
	}
	if err := f.writeU256(allowanceKey, new(uint256.Int).Sub(allowance, amount)); err != nil {
		return nil, err
	}

	if err := erc20Move(f, sender, calldata[1], amount); err != nil {
		return nil, err
	}
	return []*felt.Felt{one}, nil
}

// approve(spender, amount: u256) -> bool
func erc20Approve(f *frame, calldata []*felt.Felt) ([]*felt.Felt, error) {
	if err := args(calldata, 3); err != nil {
		return nil, err
	}
	amount, err := u256FromLimbs(calldata[1], calldata[2])
	if err != nil {
		return nil, err
	}
	if err := erc20SetAllowance(f, f.caller, calldata[0], amount); err != nil {
		return nil, err
	}
	return []*felt.Felt{one}, nil
}

// increaseAllowance(spender, added_value: u256) -> bool
func erc20IncreaseAllowance(f *frame, calldata []*felt.Felt) ([]*felt.Felt, error) {
	if err := args(calldata, 3); err != nil {
		return nil, err
	}
	added, err := u256FromLimbs(calldata[1], calldata[2])
	if err != nil {
		return nil, err
	}
	current, err := f.readU256(f.storageVar(allowancesVar, f.caller, calldata[0]))
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(current, added)
	if overflow {
		return nil, errors.New("ERC20: allowance overflow")
	}
	if err := erc20SetAllowance(f, f.caller, calldata[0], sum); err != nil {
		return nil, err
	}
	return []*felt.Felt{one}, nil
}

func erc20SetAllowance(f *frame, owner, spender *felt.Felt, amount *uint256.Int) error {
	if spender.IsZero() {
		return errApproveToZero
	}
	if err := f.writeU256(f.storageVar(allowancesVar, owner, spender), amount); err != nil {
		return err
	}
	return f.emit([]*felt.Felt{approvalEvent}, append([]*felt.Felt{owner, spender}, u256Result(amount)...))
}

func erc20Move(f *frame, from, to *felt.Felt, amount *uint256.Int) error {
	if from.IsZero() {
		return errTransferFromZero
	}
	if to.IsZero() {
		return errTransferToZero
	}

	fromKey := f.storageVar(balancesVar, from)
	fromBalance, err := f.readU256(fromKey)
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return errExceedsBalance
	}
	if err := f.writeU256(fromKey, new(uint256.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}

	toKey := f.storageVar(balancesVar, to)
	toBalance, err := f.readU256(toKey)
	if err != nil {
		return err
	}
	if err := f.writeU256(toKey, new(uint256.Int).Add(toBalance, amount)); err != nil {
		return err
	}
	return f.emit([]*felt.Felt{transferEvent}, append([]*felt.Felt{from, to}, u256Result(amount)...))
}

func erc20Mint(f *frame, to *felt.Felt, amount *uint256.Int) error {
	if to.IsZero() {
		return errMintToZero
	}

	supplyKey := f.storageVar(totalSupplyVar)
	supply, err := f.readU256(supplyKey)
	if err != nil {
		return err
	}
	newSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return errSupplyOverflow
	}
	if err := f.writeU256(supplyKey, newSupply); err != nil {
		return err
	}

	balanceKey := f.storageVar(balancesVar, to)
	balance, err := f.readU256(balanceKey)
	if err != nil {
		return err
	}
	if err := f.writeU256(balanceKey, new(uint256.Int).Add(balance, amount)); err != nil {
		return err
	}
	return f.emit([]*felt.Felt{transferEvent}, append([]*felt.Felt{new(felt.Felt), to}, u256Result(amount)...))
}
