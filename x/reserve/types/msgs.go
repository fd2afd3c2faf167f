package types

import (
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// MsgBuy purchases newly issued tokens along the bonding curve.
type MsgBuy struct {
	Buyer   string      `json:"buyer"`
	Payment sdkmath.Int `json:"payment"`
}

func (m MsgBuy) ValidateBasic() error {
	if strings.TrimSpace(m.Buyer) == "" {
		return fmt.Errorf("buyer address cannot be empty")
	}
	if err := requirePositive("payment", m.Payment); err != nil {
		return err
	}
	return nil
}

// MsgStake moves unstaked balance into the rebasing staking pool. Sponsor is
// optional and only honored on the account's first stake.
type MsgStake struct {
	Account string      `json:"account"`
	Amount  sdkmath.Int `json:"amount"`
	Sponsor string      `json:"sponsor,omitempty"`
}

func (m MsgStake) ValidateBasic() error {
	if strings.TrimSpace(m.Account) == "" {
		return fmt.Errorf("account address cannot be empty")
	}
	if err := requirePositive("stake amount", m.Amount); err != nil {
		return err
	}
	if strings.TrimSpace(m.Sponsor) == strings.TrimSpace(m.Account) && m.Sponsor != "" {
		return fmt.Errorf("account cannot sponsor itself")
	}
	return nil
}

// MsgRequestUnstake opens (or supersedes) the account's cooldown entry.
type MsgRequestUnstake struct {
	Account string      `json:"account"`
	Amount  sdkmath.Int `json:"amount"`
}

func (m MsgRequestUnstake) ValidateBasic() error {
	if strings.TrimSpace(m.Account) == "" {
		return fmt.Errorf("account address cannot be empty")
	}
	return requirePositive("unstake amount", m.Amount)
}

// MsgExecuteUnstake settles a matured unstake request.
type MsgExecuteUnstake struct {
	Account string `json:"account"`
}

func (m MsgExecuteUnstake) ValidateBasic() error {
	if strings.TrimSpace(m.Account) == "" {
		return fmt.Errorf("account address cannot be empty")
	}
	return nil
}

// MsgCancelUnstake discards the outstanding request and returns the amount to
// active staking.
type MsgCancelUnstake struct {
	Account string `json:"account"`
}

func (m MsgCancelUnstake) ValidateBasic() error {
	if strings.TrimSpace(m.Account) == "" {
		return fmt.Errorf("account address cannot be empty")
	}
	return nil
}

// MsgClaimRewards realizes pending rewards into unstaked balance.
type MsgClaimRewards struct {
	Account string `json:"account"`
}

func (m MsgClaimRewards) ValidateBasic() error {
	if strings.TrimSpace(m.Account) == "" {
		return fmt.Errorf("account address cannot be empty")
	}
	return nil
}

// MsgCompound folds pending rewards into rebasing principal.
type MsgCompound struct {
	Account string `json:"account"`
}

func (m MsgCompound) ValidateBasic() error {
	if strings.TrimSpace(m.Account) == "" {
		return fmt.Errorf("account address cannot be empty")
	}
	return nil
}

// MsgRebaseTick advances the epoch and applies the per-tick rebase. Privileged:
// only the module authority may tick.
type MsgRebaseTick struct {
	Authority string `json:"authority"`
}

func (m MsgRebaseTick) ValidateBasic() error {
	if strings.TrimSpace(m.Authority) == "" {
		return fmt.Errorf("authority address cannot be empty")
	}
	return nil
}

// MsgTransfer moves unstaked balance between accounts, applying the transfer
// tax.
type MsgTransfer struct {
	From   string      `json:"from"`
	To     string      `json:"to"`
	Amount sdkmath.Int `json:"amount"`
}

func (m MsgTransfer) ValidateBasic() error {
	if strings.TrimSpace(m.From) == "" || strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("transfer endpoints cannot be empty")
	}
	if strings.TrimSpace(m.From) == strings.TrimSpace(m.To) {
		return fmt.Errorf("self transfer is not allowed")
	}
	return requirePositive("transfer amount", m.Amount)
}

// MsgPurchaseBond buys tokens at a fixed discount off the current curve
// price. The purchase vests linearly; vested tokens are claimed into the
// rebasing stake with MsgClaimBond.
type MsgPurchaseBond struct {
	Account string      `json:"account"`
	Payment sdkmath.Int `json:"payment"`
}

func (m MsgPurchaseBond) ValidateBasic() error {
	if strings.TrimSpace(m.Account) == "" {
		return fmt.Errorf("account address cannot be empty")
	}
	return requirePositive("bond payment", m.Payment)
}

// MsgClaimBond mints the vested portion of the account's bond as staked
// principal.
type MsgClaimBond struct {
	Account string `json:"account"`
}

func (m MsgClaimBond) ValidateBasic() error {
	if strings.TrimSpace(m.Account) == "" {
		return fmt.Errorf("account address cannot be empty")
	}
	return nil
}

// MsgDepositTreasury injects external value (yield accrual, donations) into
// the treasury ledger.
type MsgDepositTreasury struct {
	Depositor string      `json:"depositor"`
	Kind      AssetKind   `json:"kind"`
	Amount    sdkmath.Int `json:"amount"`
}

func (m MsgDepositTreasury) ValidateBasic() error {
	if strings.TrimSpace(m.Depositor) == "" {
		return fmt.Errorf("depositor address cannot be empty")
	}
	if !ValidAssetKind(m.Kind) {
		return fmt.Errorf("unknown asset kind %q", m.Kind)
	}
	return requirePositive("deposit amount", m.Amount)
}

func requirePositive(name string, v sdkmath.Int) error {
	if v.IsNil() || !v.IsPositive() {
		return fmt.Errorf("%s must be positive: %w", name, ErrInvalidAmount)
	}
	return nil
}
