// Copyright (c) 2025 The StakeHub developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package remote

import (
	"reflect"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/stakehub/stakehub/hub"
)

// ActionKind discriminates bridge write-actions.
type ActionKind uint8

const (
	KindDelegate ActionKind = iota + 1
	KindUndelegate
	KindStakeDeposit
	KindStakeWithdraw
	KindSpotSend
	KindRegisterAgent
)

func (k ActionKind) String() string {
	switch k {
	case KindDelegate:
		return "delegate"
	case KindUndelegate:
		return "undelegate"
	case KindStakeDeposit:
		return "stakeDeposit"
	case KindStakeWithdraw:
		return "stakeWithdraw"
	case KindSpotSend:
		return "spotSend"
	case KindRegisterAgent:
		return "registerAgent"
	}
	return "unknown"
}

// Action is one fire-and-forget remote write. The bridge gives no synchronous
// confirmation of remote-side success; the core never assumes one.
type Action interface {
	Kind() ActionKind
}

// Delegate stakes amount with a validator.
type Delegate struct {
	Validator hub.Address
	Amount    uint64
}

func (Delegate) Kind() ActionKind { return KindDelegate }

// Undelegate removes amount from a validator.
type Undelegate struct {
	Validator hub.Address
	Amount    uint64
}

func (Undelegate) Kind() ActionKind { return KindUndelegate }

// StakeDeposit moves spot funds into the staking account.
type StakeDeposit struct {
	Amount uint64
}

func (StakeDeposit) Kind() ActionKind { return KindStakeDeposit }

// StakeWithdraw moves staking funds back to spot.
type StakeWithdraw struct {
	Amount uint64
}

func (StakeWithdraw) Kind() ActionKind { return KindStakeWithdraw }

// SpotSend transfers spot funds to another remote account.
type SpotSend struct {
	Destination hub.Address
	Asset       uint32
	Amount      uint64
}

func (SpotSend) Kind() ActionKind { return KindSpotSend }

// RegisterAgent registers an agent wallet on the remote layer.
type RegisterAgent struct {
	Agent hub.Address
	Name  string
}

func (RegisterAgent) Kind() ActionKind { return KindRegisterAgent }

// EncodeAction encodes an action into its wire form: one kind byte followed
// by the RLP encoded payload.
func EncodeAction(action Action) ([]byte, error) {
	payload, err := rlp.EncodeToBytes(action)
	if err != nil {
		return nil, errors.Wrap(err, "encode action payload")
	}
	return append([]byte{byte(action.Kind())}, payload...), nil
}

// DecodeAction decodes the wire form produced by EncodeAction.
func DecodeAction(data []byte) (Action, error) {
	if len(data) < 1 {
		return nil, errors.New("action too short")
	}
	payload := data[1:]

	var into any
	switch ActionKind(data[0]) {
	case KindDelegate:
		into = new(Delegate)
	case KindUndelegate:
		into = new(Undelegate)
	case KindStakeDeposit:
		into = new(StakeDeposit)
	case KindStakeWithdraw:
		into = new(StakeWithdraw)
	case KindSpotSend:
		into = new(SpotSend)
	case KindRegisterAgent:
		into = new(RegisterAgent)
	default:
		return nil, errors.Errorf("unknown action kind %d", data[0])
	}
	if err := rlp.DecodeBytes(payload, into); err != nil {
		return nil, errors.Wrap(err, "decode action payload")
	}
	// deref so the result compares equal to the value it was encoded from
	return reflect.ValueOf(into).Elem().Interface().(Action), nil
}

// Bridge submits write-actions toward the remote layer. One-way: Submit
// returning nil only means the action was accepted for delivery.
type Bridge interface {
	Submit(action Action) error
}
