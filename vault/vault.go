// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vault

import (
	"math/big"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/log"
	"github.com/stakehub/stakehub/remote"
	"github.com/stakehub/stakehub/reverts"
	"github.com/stakehub/stakehub/slot"
	"github.com/stakehub/stakehub/state"
	"github.com/stakehub/stakehub/vault/admission"
	"github.com/stakehub/stakehub/vault/auth"
	"github.com/stakehub/stakehub/vault/delegation"
	"github.com/stakehub/stakehub/vault/oracle"
	"github.com/stakehub/stakehub/vault/rate"
	"github.com/stakehub/stakehub/vault/reserve"
	"github.com/stakehub/stakehub/vault/settlement"
	"github.com/stakehub/stakehub/vault/token"
	"github.com/stakehub/stakehub/vault/transfer"
)

var (
	logger = log.WithContext("pkg", "vault")

	ErrClaimTransferDenied = reverts.New("claim token balance or allowance too low")
)

// Config fixes the identities a vault instance is bound to.
type Config struct {
	// VaultAddress is the local account holding custody funds and all
	// structured storage.
	VaultAddress hub.Address
	// RemoteAccount is the vault's account on the remote staking layer.
	RemoteAccount hub.Address
	// Asset identifies the base asset on the remote spot ledger.
	Asset uint32
}

// Vault is the façade over the service decomposition. Every mutating entry
// point runs all-or-nothing: a checkpoint is taken up front and every journaled
// write since is rolled back if any step fails.
type Vault struct {
	cfg    Config
	state  *state.State
	sctx   *slot.Context
	bridge remote.Bridge

	auth       *auth.Authority
	token      *token.Token
	reserve    *reserve.Service
	oracle     *oracle.Oracle
	delegation *delegation.Service
	transfer   *transfer.Service
	admission  *admission.Service
	settlement *settlement.Service
}

// New wires the full service graph over one state and one remote pair.
func New(st *state.State, reader remote.Reader, bridge remote.Bridge, cfg Config) *Vault {
	sctx := slot.NewContext(cfg.VaultAddress, st)

	rsv := reserve.New(sctx)
	tok := token.New(sctx)
	orc := oracle.New(sctx, reader, rsv, cfg.RemoteAccount, cfg.Asset)
	dlg := delegation.New(sctx, reader, bridge, cfg.RemoteAccount)
	trf := transfer.New(sctx, bridge, dlg, cfg.RemoteAccount, cfg.Asset)
	adm := admission.New(sctx, tok, orc, trf)
	stl := settlement.New(sctx, tok, orc, rsv, trf, dlg, bridge, cfg.RemoteAccount, cfg.Asset)

	return &Vault{
		cfg:    cfg,
		state:  st,
		sctx:   sctx,
		bridge: bridge,

		auth:       auth.New(sctx),
		token:      tok,
		reserve:    rsv,
		oracle:     orc,
		delegation: dlg,
		transfer:   trf,
		admission:  adm,
		settlement: stl,
	}
}

// atomic runs fn against a fresh checkpoint and reverts every write on error.
func (v *Vault) atomic(fn func() error) error {
	cp := v.state.NewCheckpoint()
	if err := fn(); err != nil {
		v.state.RevertTo(cp)
		return err
	}
	return nil
}

// guarded is atomic plus the pause gate shared by user-facing operations.
func (v *Vault) guarded(fn func() error) error {
	return v.atomic(func() error {
		if err := v.auth.RequireNotPaused(); err != nil {
			return err
		}
		return fn()
	})
}

//
// Genesis
//

// InitParams seeds the vault's governance and economic parameters once.
type InitParams struct {
	Owner               hub.Address
	DefaultValidator    hub.Address
	AgentName           string
	Capacity            *big.Int
	MinimumDeposit      *big.Int
	MinimumStakeBalance *big.Int
	DefaultAccountLimit *big.Int
	BatchCooldown       uint64
	ClaimDelay          uint64
}

// Initialize sets up a fresh vault: owner role, parameters and the remote
// agent registration. Must run exactly once, before any other entry point.
func (v *Vault) Initialize(p InitParams) error {
	return v.atomic(func() error {
		if err := v.auth.Grant(p.Owner, auth.RoleOwner); err != nil {
			return err
		}
		if err := v.transfer.SetDefaultValidator(p.DefaultValidator); err != nil {
			return err
		}
		if err := v.admission.SetCapacity(p.Capacity); err != nil {
			return err
		}
		if err := v.admission.SetMinimumDeposit(p.MinimumDeposit); err != nil {
			return err
		}
		if err := v.admission.SetDefaultAccountLimit(p.DefaultAccountLimit); err != nil {
			return err
		}
		if err := v.settlement.SetMinimumStakeBalance(p.MinimumStakeBalance); err != nil {
			return err
		}
		if err := v.settlement.SetCooldown(p.BatchCooldown); err != nil {
			return err
		}
		if err := v.settlement.SetClaimDelay(p.ClaimDelay); err != nil {
			return err
		}
		if p.AgentName != "" {
			if err := v.bridge.Submit(remote.RegisterAgent{Agent: v.cfg.RemoteAccount, Name: p.AgentName}); err != nil {
				return err
			}
		}
		logger.Info("vault initialized", "owner", p.Owner, "validator", p.DefaultValidator)
		return nil
	})
}

//
// User operations
//

// Deposit admits base-asset value from the caller and mints claim tokens.
func (v *Vault) Deposit(caller hub.Address, amount *big.Int, blockNum uint32) (receipt *admission.Receipt, err error) {
	err = v.guarded(func() error {
		receipt, err = v.admission.Deposit(caller, amount, blockNum)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// QueueWithdraw escrows claim tokens into the withdrawal queue.
func (v *Vault) QueueWithdraw(caller hub.Address, amount *big.Int, now uint64) (id uint64, err error) {
	err = v.guarded(func() error {
		id, err = v.settlement.Queue(caller, amount, now)
		return err
	})
	return id, err
}

// CancelWithdraw returns the escrow of a still-unassigned request.
func (v *Vault) CancelWithdraw(caller hub.Address, id uint64, now uint64) error {
	return v.guarded(func() error {
		return v.settlement.Cancel(caller, id, now)
	})
}

// ClaimWithdraw pays out an assigned request to a remote destination.
func (v *Vault) ClaimWithdraw(caller hub.Address, id uint64, destination hub.Address, now uint64) (payout *big.Int, err error) {
	err = v.guarded(func() error {
		payout, err = v.settlement.Claim(caller, id, destination, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// ProcessBatch settles one withdrawal batch. Permissionless; the cooldown is
// the only rate limit.
func (v *Vault) ProcessBatch(blockNum uint32, now uint64) (index uint32, err error) {
	err = v.guarded(func() error {
		index, err = v.settlement.Process(blockNum, now)
		return err
	})
	return index, err
}

//
// Claim token surface
//

// TransferClaim moves claim tokens between accounts.
func (v *Vault) TransferClaim(caller, to hub.Address, amount *big.Int) error {
	return v.guarded(func() error {
		ok, err := v.token.Transfer(caller, to, amount)
		if err != nil {
			return err
		}
		if !ok {
			return settlement.ErrInsufficientClaim
		}
		return nil
	})
}

// ApproveClaim sets a spender allowance for the caller's claim tokens.
func (v *Vault) ApproveClaim(caller, spender hub.Address, amount *big.Int) error {
	return v.guarded(func() error {
		return v.token.Approve(caller, spender, amount)
	})
}

// TransferClaimFrom spends an allowance to move claim tokens.
func (v *Vault) TransferClaimFrom(caller, from, to hub.Address, amount *big.Int) error {
	return v.guarded(func() error {
		ok, err := v.token.TransferFrom(caller, from, to, amount)
		if err != nil {
			return err
		}
		if !ok {
			return ErrClaimTransferDenied
		}
		return nil
	})
}

//
// Operator / manager operations
//

// TransferToRemote moves custody funds to the remote staking account.
// Pass nil to move everything.
func (v *Vault) TransferToRemote(caller hub.Address, amount *big.Int, blockNum uint32) (moved *big.Int, err error) {
	err = v.guarded(func() error {
		if err := v.auth.RequireOperator(caller); err != nil {
			return err
		}
		moved, err = v.transfer.ToRemote(amount, blockNum)
		return err
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// Redelegate moves delegated stake between validators.
func (v *Vault) Redelegate(caller, from, to hub.Address, amount uint64, now uint64) error {
	return v.guarded(func() error {
		if err := v.auth.RequireOperator(caller); err != nil {
			return err
		}
		return v.delegation.Redelegate(from, to, amount, now)
	})
}

// ApplySlash retroactively reprices a settled batch after a slashing event.
// Owner-only: it devalues queued withdrawals, so no delegated role may do it.
func (v *Vault) ApplySlash(caller hub.Address, batchIndex uint32, newRate *big.Int) error {
	return v.atomic(func() error {
		if err := v.auth.RequireOwner(caller); err != nil {
			return err
		}
		return v.settlement.ApplySlash(batchIndex, newRate)
	})
}

// SetDefaultValidator changes the delegation target for future transfers.
func (v *Vault) SetDefaultValidator(caller, validator hub.Address) error {
	return v.atomic(func() error {
		if err := v.auth.RequireManager(caller); err != nil {
			return err
		}
		return v.transfer.SetDefaultValidator(validator)
	})
}

// SetCapacity updates the vault deposit capacity; zero means unbounded.
func (v *Vault) SetCapacity(caller hub.Address, capacity *big.Int) error {
	return v.atomic(func() error {
		if err := v.auth.RequireManager(caller); err != nil {
			return err
		}
		return v.admission.SetCapacity(capacity)
	})
}

// SetMinimumDeposit updates the minimum accepted deposit.
func (v *Vault) SetMinimumDeposit(caller hub.Address, min *big.Int) error {
	return v.atomic(func() error {
		if err := v.auth.RequireManager(caller); err != nil {
			return err
		}
		return v.admission.SetMinimumDeposit(min)
	})
}

// SetDefaultAccountLimit updates the default per-account deposit ceiling.
func (v *Vault) SetDefaultAccountLimit(caller hub.Address, limit *big.Int) error {
	return v.atomic(func() error {
		if err := v.auth.RequireManager(caller); err != nil {
			return err
		}
		return v.admission.SetDefaultAccountLimit(limit)
	})
}

// SetAccountLimit sets a whitelist override ceiling for one account.
func (v *Vault) SetAccountLimit(caller, account hub.Address, limit *big.Int) error {
	return v.atomic(func() error {
		if err := v.auth.RequireManager(caller); err != nil {
			return err
		}
		return v.admission.SetAccountLimit(account, limit)
	})
}

// SetMinimumStakeBalance updates the floor settlement must leave staked.
// Owner-only: raising it throttles every queued withdrawal.
func (v *Vault) SetMinimumStakeBalance(caller hub.Address, min *big.Int) error {
	return v.atomic(func() error {
		if err := v.auth.RequireOwner(caller); err != nil {
			return err
		}
		return v.settlement.SetMinimumStakeBalance(min)
	})
}

// SetBatchCooldown updates the minimum interval between settlement batches.
func (v *Vault) SetBatchCooldown(caller hub.Address, cooldown uint64) error {
	return v.atomic(func() error {
		if err := v.auth.RequireManager(caller); err != nil {
			return err
		}
		return v.settlement.SetCooldown(cooldown)
	})
}

// SetClaimDelay updates the waiting period between settlement and claim.
func (v *Vault) SetClaimDelay(caller hub.Address, delay uint64) error {
	return v.atomic(func() error {
		if err := v.auth.RequireManager(caller); err != nil {
			return err
		}
		return v.settlement.SetClaimDelay(delay)
	})
}

// SetPaused flips the vault-wide pause flag.
func (v *Vault) SetPaused(caller hub.Address, paused bool) error {
	return v.atomic(func() error {
		if err := v.auth.RequireManager(caller); err != nil {
			return err
		}
		return v.auth.SetPaused(paused)
	})
}

// GrantRole adds roles to an address. Owner only.
func (v *Vault) GrantRole(caller, addr hub.Address, role auth.Role) error {
	return v.atomic(func() error {
		if err := v.auth.RequireOwner(caller); err != nil {
			return err
		}
		return v.auth.Grant(addr, role)
	})
}

// RevokeRole removes roles from an address. Owner only.
func (v *Vault) RevokeRole(caller, addr hub.Address, role auth.Role) error {
	return v.atomic(func() error {
		if err := v.auth.RequireOwner(caller); err != nil {
			return err
		}
		return v.auth.Revoke(addr, role)
	})
}

//
// Read surface
//

// ExchangeRate returns the current claim-token to base-asset exchange rate.
func (v *Vault) ExchangeRate() (*big.Int, error) {
	balance, err := v.oracle.TotalBalance()
	if err != nil {
		return nil, err
	}
	supply, err := v.token.TotalSupply()
	if err != nil {
		return nil, err
	}
	return rate.Rate(balance, supply), nil
}

// TotalBalance returns the liability-adjusted total vault balance.
func (v *Vault) TotalBalance() (*big.Int, error) {
	return v.oracle.TotalBalance()
}

// TotalSupply returns the claim-token supply.
func (v *Vault) TotalSupply() (*big.Int, error) {
	return v.token.TotalSupply()
}

// ClaimBalanceOf returns addr's claim-token balance.
func (v *Vault) ClaimBalanceOf(addr hub.Address) (*big.Int, error) {
	return v.token.BalanceOf(addr)
}

// Reserved returns the reserved-for-withdrawal accumulator.
func (v *Vault) Reserved() (*big.Int, error) {
	return v.reserve.Get()
}

// GetWithdraw returns the withdrawal request with the given id.
func (v *Vault) GetWithdraw(id uint64) (*settlement.Request, error) {
	return v.settlement.GetWithdraw(id)
}

// GetBatch returns the settlement batch with the given index.
func (v *Vault) GetBatch(index uint32) (*settlement.Batch, error) {
	return v.settlement.GetBatch(index)
}

// Paused returns the pause flag.
func (v *Vault) Paused() (bool, error) {
	return v.auth.Paused()
}

// IsOwner reports whether addr holds the owner role.
func (v *Vault) IsOwner(addr hub.Address) (bool, error) {
	return v.auth.IsOwner(addr)
}

// Settlement exposes the settlement service's read surface.
func (v *Vault) Settlement() *settlement.Service { return v.settlement }

// Admission exposes the admission service's read surface.
func (v *Vault) Admission() *admission.Service { return v.admission }

// Transfer exposes the transfer scheduler's read surface.
func (v *Vault) Transfer() *transfer.Service { return v.transfer }

// Delegation exposes the delegation ledger's read surface.
func (v *Vault) Delegation() *delegation.Service { return v.delegation }

// Oracle exposes the balance oracle.
func (v *Vault) Oracle() *oracle.Oracle { return v.oracle }

// Commit flushes journaled state into the backing store.
func (v *Vault) Commit() error {
	return v.state.Commit()
}
