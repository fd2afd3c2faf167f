package keeper

import (
	"context"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dcrypto25/Echo/x/reserve/types"
)

// ---------------------------------------------------------------------------
// PROTOCOL BONDS
// ---------------------------------------------------------------------------
//
// Bonds sell freshly minted tokens at a fixed discount off the live curve
// price. Proceeds go straight to the treasury as stable reserves; the token
// amount is fixed at purchase and vests linearly in epochs. Claims mint the
// vested portion directly as rebasing principal, so a bonded position starts
// compounding the moment it vests. One vesting bond per account.
// ---------------------------------------------------------------------------

// GetBond loads the account's vesting bond, if any.
func (k Keeper) GetBond(ctx context.Context, account string) (types.BondPosition, bool, error) {
	raw, err := k.Bonds.Get(ctx, account)
	if err != nil {
		return types.BondPosition{}, false, nil
	}
	var bond types.BondPosition
	if err := json.Unmarshal([]byte(raw), &bond); err != nil {
		return types.BondPosition{}, false, fmt.Errorf("decode bond for %s: %w", account, err)
	}
	return bond, true, nil
}

func (k Keeper) setBond(ctx context.Context, bond types.BondPosition) error {
	raw, err := json.Marshal(bond)
	if err != nil {
		return err
	}
	return k.Bonds.Set(ctx, bond.Account, string(raw))
}

// BondPrice quotes the current discounted purchase price.
func (k Keeper) BondPrice(ctx context.Context) (sdkmath.Int, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	price, err := k.CurrentPrice(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return k.math.SafeBpsMultiply(price, types.BpsBase-params.BondDiscountBps)
}

// MsgPurchaseBond opens a vesting bond at the discounted price. The payment
// is treated as stable value and deposited to the treasury in full; the
// token amount is locked until claimed.
func (k Keeper) MsgPurchaseBond(ctx context.Context, msg types.MsgPurchaseBond) (types.BondResult, error) {
	if err := msg.ValidateBasic(); err != nil {
		return types.BondResult{}, err
	}

	existing, found, err := k.GetBond(ctx, msg.Account)
	if err != nil {
		return types.BondResult{}, err
	}
	if found && existing.ClaimedAmount.LT(existing.TotalAmount) {
		return types.BondResult{}, fmt.Errorf("account %s has %s unclaimed: %w",
			msg.Account, existing.TotalAmount.Sub(existing.ClaimedAmount), types.ErrBondOutstanding)
	}

	params, err := k.GetParams(ctx)
	if err != nil {
		return types.BondResult{}, err
	}
	price, err := k.BondPrice(ctx)
	if err != nil {
		return types.BondResult{}, err
	}
	tokens, err := k.math.SafeMulDiv(msg.Payment, types.WadScale, price)
	if err != nil {
		return types.BondResult{}, err
	}
	if !tokens.IsPositive() {
		return types.BondResult{}, fmt.Errorf("payment %s buys no tokens at price %s: %w",
			msg.Payment, price, types.ErrInvalidAmount)
	}

	if err := k.Deposit(ctx, types.AssetStable, msg.Payment); err != nil {
		return types.BondResult{}, err
	}

	epoch := k.CurrentEpoch(ctx)
	bond := types.BondPosition{
		Account:       msg.Account,
		TotalAmount:   tokens,
		ClaimedAmount: sdkmath.ZeroInt(),
		StartEpoch:    epoch,
		VestEndEpoch:  epoch + params.BondVestingDays*params.TicksPerDay,
	}
	if err := k.setBond(ctx, bond); err != nil {
		return types.BondResult{}, err
	}

	sdkCtx, _ := contextNow(ctx)
	emitEventIfPossible(sdkCtx, sdk.NewEvent(
		"reserve_bond_purchased",
		sdk.NewAttribute("account", msg.Account),
		sdk.NewAttribute("payment", msg.Payment.String()),
		sdk.NewAttribute("tokens", tokens.String()),
		sdk.NewAttribute("bond_price", price.String()),
	))
	return types.BondResult{
		TokensBonded: tokens,
		BondPrice:    price,
		VestEndEpoch: bond.VestEndEpoch,
	}, nil
}

// MsgClaimBond mints the newly vested portion of the bond as rebasing
// principal on the claimer's stake position. A fully claimed bond is removed,
// freeing the account for a new purchase. Claiming with nothing vested is a
// no-op, not an error.
func (k Keeper) MsgClaimBond(ctx context.Context, msg types.MsgClaimBond) (sdkmath.Int, error) {
	if err := msg.ValidateBasic(); err != nil {
		return sdkmath.ZeroInt(), err
	}

	bond, found, err := k.GetBond(ctx, msg.Account)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !found {
		return sdkmath.ZeroInt(), fmt.Errorf("account %s: %w", msg.Account, types.ErrNoBond)
	}

	claimable, err := k.vestedUnclaimed(bond, k.CurrentEpoch(ctx))
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !claimable.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}

	rebase, err := k.GetRebaseState(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	rebase, err = k.creditStakedPrincipal(ctx, msg.Account, claimable, rebase)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := k.setRebaseState(ctx, rebase); err != nil {
		return sdkmath.ZeroInt(), err
	}

	supply, err := k.GetSupply(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	supply.TotalMinted = supply.TotalMinted.Add(claimable)
	supply.Staked = supply.Staked.Add(claimable)
	if err := k.setSupply(ctx, supply); err != nil {
		return sdkmath.ZeroInt(), err
	}

	bond.ClaimedAmount = bond.ClaimedAmount.Add(claimable)
	if bond.ClaimedAmount.GTE(bond.TotalAmount) {
		if err := k.Bonds.Remove(ctx, msg.Account); err != nil {
			return sdkmath.ZeroInt(), err
		}
	} else if err := k.setBond(ctx, bond); err != nil {
		return sdkmath.ZeroInt(), err
	}

	sdkCtx, _ := contextNow(ctx)
	emitEventIfPossible(sdkCtx, sdk.NewEvent(
		"reserve_bond_claimed",
		sdk.NewAttribute("account", msg.Account),
		sdk.NewAttribute("amount", claimable.String()),
	))
	return claimable, nil
}

// ClaimableBond previews the vested, unclaimed portion without writing state.
func (k Keeper) ClaimableBond(ctx context.Context, account string) (sdkmath.Int, error) {
	bond, found, err := k.GetBond(ctx, account)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !found {
		return sdkmath.ZeroInt(), nil
	}
	return k.vestedUnclaimed(bond, k.CurrentEpoch(ctx))
}

// vestedUnclaimed evaluates the linear vesting schedule at an epoch.
func (k Keeper) vestedUnclaimed(bond types.BondPosition, epoch int64) (sdkmath.Int, error) {
	vested := bond.TotalAmount
	if epoch < bond.VestEndEpoch {
		elapsed := epoch - bond.StartEpoch
		if elapsed <= 0 {
			return sdkmath.ZeroInt(), nil
		}
		var err error
		vested, err = k.math.SafeMulDiv(bond.TotalAmount,
			sdkmath.NewInt(elapsed), sdkmath.NewInt(bond.VestEndEpoch-bond.StartEpoch))
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
	}
	unclaimed := vested.Sub(bond.ClaimedAmount)
	if unclaimed.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("bond for %s claimed %s of %s vested: %w",
			bond.Account, bond.ClaimedAmount, vested, types.ErrUnderflow)
	}
	return unclaimed, nil
}
