// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genesis

import (
	"math/big"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/stakehub/stakehub/hub"
	"github.com/stakehub/stakehub/vault"
)

// Config is the genesis document a fresh vault is initialized from.
// Big amounts are decimal strings in 18-decimal base units.
type Config struct {
	VaultAddress  string `yaml:"vaultAddress"`
	RemoteAccount string `yaml:"remoteAccount"`
	Asset         uint32 `yaml:"asset"`

	Owner            string `yaml:"owner"`
	DefaultValidator string `yaml:"defaultValidator"`
	AgentName        string `yaml:"agentName"`

	Capacity            string `yaml:"capacity"`
	MinimumDeposit      string `yaml:"minimumDeposit"`
	MinimumStakeBalance string `yaml:"minimumStakeBalance"`
	DefaultAccountLimit string `yaml:"defaultAccountLimit"`

	BatchCooldown uint64 `yaml:"batchCooldown"`
	ClaimDelay    uint64 `yaml:"claimDelay"`
}

// LoadFile reads and validates a genesis document.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read genesis file")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse genesis file")
	}
	if cfg.Owner == "" {
		return nil, errors.New("genesis: owner is required")
	}
	if cfg.DefaultValidator == "" {
		return nil, errors.New("genesis: defaultValidator is required")
	}
	return &cfg, nil
}

// Default returns a config with production-shaped timing parameters and
// unbounded capacity; identities still have to be filled in.
func Default() *Config {
	return &Config{
		Asset:         0,
		BatchCooldown: hub.DefaultBatchCooldown,
		ClaimDelay:    hub.DefaultClaimDelay,
	}
}

func parseAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errors.Errorf("genesis: invalid amount for %s: %q", field, s)
	}
	return v, nil
}

func parseAddress(field, s string) (hub.Address, error) {
	if s == "" {
		return hub.Address{}, nil
	}
	addr, err := hub.ParseAddress(s)
	if err != nil {
		return hub.Address{}, errors.Wrapf(err, "genesis: invalid address for %s", field)
	}
	return addr, nil
}

// VaultConfig converts the identity fields.
func (c *Config) VaultConfig() (vault.Config, error) {
	vaultAddr, err := parseAddress("vaultAddress", c.VaultAddress)
	if err != nil {
		return vault.Config{}, err
	}
	remoteAccount, err := parseAddress("remoteAccount", c.RemoteAccount)
	if err != nil {
		return vault.Config{}, err
	}
	return vault.Config{
		VaultAddress:  vaultAddr,
		RemoteAccount: remoteAccount,
		Asset:         c.Asset,
	}, nil
}

// InitParams converts the governance and economic fields.
func (c *Config) InitParams() (vault.InitParams, error) {
	owner, err := parseAddress("owner", c.Owner)
	if err != nil {
		return vault.InitParams{}, err
	}
	validator, err := parseAddress("defaultValidator", c.DefaultValidator)
	if err != nil {
		return vault.InitParams{}, err
	}
	capacity, err := parseAmount("capacity", c.Capacity)
	if err != nil {
		return vault.InitParams{}, err
	}
	minDeposit, err := parseAmount("minimumDeposit", c.MinimumDeposit)
	if err != nil {
		return vault.InitParams{}, err
	}
	minStake, err := parseAmount("minimumStakeBalance", c.MinimumStakeBalance)
	if err != nil {
		return vault.InitParams{}, err
	}
	accountLimit, err := parseAmount("defaultAccountLimit", c.DefaultAccountLimit)
	if err != nil {
		return vault.InitParams{}, err
	}
	return vault.InitParams{
		Owner:               owner,
		DefaultValidator:    validator,
		AgentName:           c.AgentName,
		Capacity:            capacity,
		MinimumDeposit:      minDeposit,
		MinimumStakeBalance: minStake,
		DefaultAccountLimit: accountLimit,
		BatchCooldown:       c.BatchCooldown,
		ClaimDelay:          c.ClaimDelay,
	}, nil
}
