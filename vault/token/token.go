// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package token

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/slot"
)

var (
	slotSupply     = slot.NameToSlot("claim-token-supply")
	slotBalances   = slot.NameToSlot("claim-token-balances")
	slotAllowances = slot.NameToSlot("claim-token-allowances")
)

// allowanceKey joins owner and spender into one mapping key.
type allowanceKey struct {
	owner   hub.Address
	spender hub.Address
}

func (k allowanceKey) Bytes() []byte {
	return append(k.owner.Bytes(), k.spender.Bytes()...)
}

// Token is the claim-token ledger: the fungible receipt representing a
// proportional share of total vault value. The vault facade is the sole
// mint/burn authority; supply is the denominator of the exchange rate and is
// never negative.
type Token struct {
	supply     *slot.Uint256
	balances   *slot.Mapping[hub.Address, *big.Int]
	allowances *slot.Mapping[allowanceKey, *big.Int]
}

func New(sctx *slot.Context) *Token {
	return &Token{
		supply:     slot.NewUint256(sctx, slotSupply),
		balances:   slot.NewMapping[hub.Address, *big.Int](sctx, slotBalances),
		allowances: slot.NewMapping[allowanceKey, *big.Int](sctx, slotAllowances),
	}
}

// TotalSupply returns the total amount of claim tokens outstanding.
func (t *Token) TotalSupply() (*big.Int, error) {
	return t.supply.Get()
}

// BalanceOf returns the claim-token balance of an account.
func (t *Token) BalanceOf(addr hub.Address) (*big.Int, error) {
	bal, err := t.balances.Get(addr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get token balance")
	}
	return bal, nil
}

func (t *Token) setBalance(addr hub.Address, bal *big.Int) error {
	if err := t.balances.Set(addr, bal); err != nil {
		return errors.Wrap(err, "failed to set token balance")
	}
	return nil
}

// Mint creates amount tokens for addr, growing the supply.
func (t *Token) Mint(addr hub.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	bal, err := t.BalanceOf(addr)
	if err != nil {
		return err
	}
	if err := t.setBalance(addr, bal.Add(bal, amount)); err != nil {
		return err
	}
	return t.supply.Add(amount)
}

// Burn destroys amount tokens held by addr, shrinking the supply.
// Returns false without mutation if the balance is insufficient.
func (t *Token) Burn(addr hub.Address, amount *big.Int) (bool, error) {
	bal, err := t.BalanceOf(addr)
	if err != nil {
		return false, err
	}
	if bal.Cmp(amount) < 0 {
		return false, nil
	}
	if err := t.setBalance(addr, bal.Sub(bal, amount)); err != nil {
		return false, err
	}
	return true, t.supply.Sub(amount)
}

// Transfer moves amount from one account to another.
// Returns false without mutation if the sender balance is insufficient.
func (t *Token) Transfer(from, to hub.Address, amount *big.Int) (bool, error) {
	if amount.Sign() == 0 {
		return true, nil
	}
	fromBal, err := t.BalanceOf(from)
	if err != nil {
		return false, err
	}
	if fromBal.Cmp(amount) < 0 {
		return false, nil
	}
	toBal, err := t.BalanceOf(to)
	if err != nil {
		return false, err
	}
	if err := t.setBalance(from, fromBal.Sub(fromBal, amount)); err != nil {
		return false, err
	}
	return true, t.setBalance(to, toBal.Add(toBal, amount))
}

// Allowance returns the remaining allowance of spender over owner's tokens.
func (t *Token) Allowance(owner, spender hub.Address) (*big.Int, error) {
	a, err := t.allowances.Get(allowanceKey{owner, spender})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get allowance")
	}
	return a, nil
}

// Approve sets the allowance of spender over owner's tokens.
func (t *Token) Approve(owner, spender hub.Address, amount *big.Int) error {
	if err := t.allowances.Set(allowanceKey{owner, spender}, amount); err != nil {
		return errors.Wrap(err, "failed to set allowance")
	}
	return nil
}

// TransferFrom moves amount from `from` to `to`, spending spender's allowance.
// Returns false without mutation if either balance or allowance falls short.
func (t *Token) TransferFrom(spender, from, to hub.Address, amount *big.Int) (bool, error) {
	remaining, err := t.Allowance(from, spender)
	if err != nil {
		return false, err
	}
	if remaining.Cmp(amount) < 0 {
		return false, nil
	}
	ok, err := t.Transfer(from, to, amount)
	if !ok || err != nil {
		return ok, err
	}
	return true, t.Approve(from, spender, remaining.Sub(remaining, amount))
}
