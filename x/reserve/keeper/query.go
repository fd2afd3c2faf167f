package keeper

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/dcrypto25/Echo/x/reserve/types"
)

// Read-only surface not covered by the engine files. Each query takes a
// consistent snapshot through the store; none writes state.

// TotalSold reports cumulative bonding-curve issuance.
func (k Keeper) TotalSold(ctx context.Context) (sdkmath.Int, error) {
	curve, err := k.GetCurveState(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return curve.UnitsSold, nil
}

// GetBackingRatio reports the current backing ratio in bps against live
// supply and treasury state.
func (k Keeper) GetBackingRatio(ctx context.Context) (int64, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return 0, err
	}
	supply, err := k.GetSupply(ctx)
	if err != nil {
		return 0, err
	}
	return k.BackingRatioBps(ctx, supply.Circulating(), params.ReferencePrice)
}

// GetRunway reports days of liquid reserves at the given daily burn rate.
func (k Keeper) GetRunway(ctx context.Context, burnRatePerDay sdkmath.Int) (int64, error) {
	return k.RunwayDays(ctx, burnRatePerDay)
}

// GetUnstakeStatus reports the account's pending request, if any.
func (k Keeper) GetUnstakeStatus(ctx context.Context, account string) (types.UnstakeRequest, bool, error) {
	return k.GetUnstakeRequest(ctx, account)
}
