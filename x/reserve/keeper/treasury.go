package keeper

import (
	"context"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dcrypto25/Echo/x/reserve/types"
)

// RunwayInfinite is the sentinel returned when the daily burn rate is zero.
const RunwayInfinite int64 = -1

// GetAsset returns the treasury holding for a kind, zeroed when unset.
func (k Keeper) GetAsset(ctx context.Context, kind types.AssetKind) (types.Asset, error) {
	raw, err := k.Assets.Get(ctx, string(kind))
	if err != nil {
		return types.Asset{Kind: kind, Quantity: sdkmath.ZeroInt()}, nil
	}
	var asset types.Asset
	if err := json.Unmarshal([]byte(raw), &asset); err != nil {
		return types.Asset{}, fmt.Errorf("decode asset %s: %w", kind, err)
	}
	return asset, nil
}

func (k Keeper) setAsset(ctx context.Context, asset types.Asset) error {
	if asset.Quantity.IsNegative() {
		return fmt.Errorf("refusing to persist negative %s holding: %w", asset.Kind, types.ErrUnderflow)
	}
	raw, err := json.Marshal(asset)
	if err != nil {
		return err
	}
	return k.Assets.Set(ctx, string(asset.Kind), string(raw))
}

// Deposit increases a treasury holding. Used by bonding-curve proceeds,
// transfer-tax revenue, unstake penalties and external yield accrual.
func (k Keeper) Deposit(ctx context.Context, kind types.AssetKind, amount sdkmath.Int) error {
	if !types.ValidAssetKind(kind) {
		return fmt.Errorf("unknown asset kind %q", kind)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("deposit of %s: %w", amount, types.ErrInvalidAmount)
	}
	asset, err := k.GetAsset(ctx, kind)
	if err != nil {
		return err
	}
	asset.Quantity = asset.Quantity.Add(amount)
	return k.setAsset(ctx, asset)
}

// Withdraw decreases a treasury holding. Used for redemption payouts and
// insurance draws.
func (k Keeper) Withdraw(ctx context.Context, kind types.AssetKind, amount sdkmath.Int) error {
	if !types.ValidAssetKind(kind) {
		return fmt.Errorf("unknown asset kind %q", kind)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("withdrawal of %s: %w", amount, types.ErrInvalidAmount)
	}
	asset, err := k.GetAsset(ctx, kind)
	if err != nil {
		return err
	}
	if asset.Quantity.LT(amount) {
		return fmt.Errorf("treasury holds %s %s, requested %s: %w",
			asset.Quantity, kind, amount, types.ErrInsufficientReserves)
	}
	asset.Quantity = asset.Quantity.Sub(amount)
	return k.setAsset(ctx, asset)
}

// MsgDepositTreasury is the external value-injection path ("treasury received
// amount X of asset Y"): yield accrual, donations.
func (k Keeper) MsgDepositTreasury(ctx context.Context, msg types.MsgDepositTreasury) error {
	if err := msg.ValidateBasic(); err != nil {
		return err
	}
	if err := k.Deposit(ctx, msg.Kind, msg.Amount); err != nil {
		return err
	}

	sdkCtx, _ := contextNow(ctx)
	emitEventIfPossible(sdkCtx, sdk.NewEvent(
		"reserve_treasury_deposit",
		sdk.NewAttribute("depositor", msg.Depositor),
		sdk.NewAttribute("kind", string(msg.Kind)),
		sdk.NewAttribute("amount", msg.Amount.String()),
	))
	return nil
}

// TotalTreasuryValue sums all holdings. Native, stable and yield positions
// are recorded in treasury value units; protocol-token holdings are valued
// at the reference price.
func (k Keeper) TotalTreasuryValue(ctx context.Context, referencePrice sdkmath.Int) (sdkmath.Int, error) {
	total := sdkmath.ZeroInt()
	for _, kind := range []types.AssetKind{types.AssetNative, types.AssetStable, types.AssetYieldBearing} {
		asset, err := k.GetAsset(ctx, kind)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		total = total.Add(asset.Quantity)
	}

	protocol, err := k.GetAsset(ctx, types.AssetProtocolToken)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	protocolValue, err := k.math.MulWad(protocol.Quantity, referencePrice)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return total.Add(protocolValue), nil
}

// LiquidTreasuryValue sums only spendable reserves: native and stable.
// Yield positions are locked and the protocol's own tokens cannot fund
// runway, so both are excluded.
func (k Keeper) LiquidTreasuryValue(ctx context.Context) (sdkmath.Int, error) {
	total := sdkmath.ZeroInt()
	for _, kind := range []types.AssetKind{types.AssetNative, types.AssetStable} {
		asset, err := k.GetAsset(ctx, kind)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		total = total.Add(asset.Quantity)
	}
	return total, nil
}

// BackingRatioBps computes treasury value over circulating value in basis
// points. Always a pure function of the current ledger and supply; never
// cached across a mutating operation. Zero circulating supply reports zero.
func (k Keeper) BackingRatioBps(ctx context.Context, circulating, referencePrice sdkmath.Int) (int64, error) {
	if circulating.IsNil() || circulating.IsNegative() {
		return 0, fmt.Errorf("circulating supply %s: %w", circulating, types.ErrInvalidAmount)
	}
	circulatingValue, err := k.math.MulWad(circulating, referencePrice)
	if err != nil {
		return 0, err
	}
	if circulatingValue.IsZero() {
		return 0, nil
	}

	total, err := k.TotalTreasuryValue(ctx, referencePrice)
	if err != nil {
		return 0, err
	}
	ratio, err := k.math.SafeMulDiv(total, sdkmath.NewInt(types.BpsBase), circulatingValue)
	if err != nil {
		return 0, err
	}
	if !ratio.IsInt64() {
		return 0, fmt.Errorf("backing ratio %s bps exceeds representable range: %w", ratio, types.ErrOverflow)
	}
	return ratio.Int64(), nil
}

// RunwayDays estimates days until liquid reserves are exhausted at the given
// daily burn rate. A zero burn rate yields the RunwayInfinite sentinel.
func (k Keeper) RunwayDays(ctx context.Context, burnRatePerDay sdkmath.Int) (int64, error) {
	if burnRatePerDay.IsNil() || burnRatePerDay.IsNegative() {
		return 0, fmt.Errorf("burn rate %s: %w", burnRatePerDay, types.ErrInvalidAmount)
	}
	if burnRatePerDay.IsZero() {
		return RunwayInfinite, nil
	}
	liquid, err := k.LiquidTreasuryValue(ctx)
	if err != nil {
		return 0, err
	}
	days := liquid.Quo(burnRatePerDay)
	if !days.IsInt64() {
		return RunwayInfinite, nil
	}
	return days.Int64(), nil
}

// ShouldExecuteBuyback recommends a buyback when backing has slipped below
// the trigger and liquid reserves can fund the minimum budget.
func (k Keeper) ShouldExecuteBuyback(ctx context.Context) (bool, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return false, err
	}
	supply, err := k.GetSupply(ctx)
	if err != nil {
		return false, err
	}
	backing, err := k.BackingRatioBps(ctx, supply.Circulating(), params.ReferencePrice)
	if err != nil {
		return false, err
	}
	if backing >= params.BuybackTriggerBps {
		return false, nil
	}
	liquid, err := k.LiquidTreasuryValue(ctx)
	if err != nil {
		return false, err
	}
	return liquid.GTE(params.BuybackMinLiquid), nil
}
