package keeper

import (
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dcrypto25/Echo/x/reserve/types"
)

// RegisterInvariants registers all module invariants with the invariant registry.
func RegisterInvariants(ir sdk.InvariantRegistry, k Keeper) {
	ir.RegisterRoute(types.ModuleName, "supply-consistency", SupplyConsistencyInvariant(k))
	ir.RegisterRoute(types.ModuleName, "curve-bounds", CurveBoundsInvariant(k))
	ir.RegisterRoute(types.ModuleName, "position-consistency", PositionConsistencyInvariant(k))
	ir.RegisterRoute(types.ModuleName, "request-consistency", RequestConsistencyInvariant(k))
	ir.RegisterRoute(types.ModuleName, "share-accounting", ShareAccountingInvariant(k))
	ir.RegisterRoute(types.ModuleName, "bond-consistency", BondConsistencyInvariant(k))
}

// AllInvariants runs all invariants of the reserve module.
func AllInvariants(k Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		invariants := []sdk.Invariant{
			SupplyConsistencyInvariant(k),
			CurveBoundsInvariant(k),
			PositionConsistencyInvariant(k),
			RequestConsistencyInvariant(k),
			ShareAccountingInvariant(k),
			BondConsistencyInvariant(k),
		}

		for _, inv := range invariants {
			if msg, broken := inv(ctx); broken {
				return msg, broken
			}
		}
		return "", false
	}
}

// SupplyConsistencyInvariant checks that the supply counters are mutually
// consistent: all non-negative, burned and treasury custody within total
// minted, and staked tokens within circulating supply.
func SupplyConsistencyInvariant(k Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		supply, err := k.GetSupply(ctx)
		if err != nil {
			return sdk.FormatInvariant(types.ModuleName, "supply-consistency",
				fmt.Sprintf("INVARIANT BROKEN: cannot load supply: %v\n", err)), true
		}

		var msg string
		broken := false
		if err := supply.Validate(); err != nil {
			msg += fmt.Sprintf("INVARIANT BROKEN: supply counters invalid: %v\n", err)
			broken = true
		}
		if supply.Staked.GT(supply.Circulating()) {
			msg += fmt.Sprintf("INVARIANT BROKEN: staked %s exceeds circulating %s\n",
				supply.Staked, supply.Circulating())
			broken = true
		}

		if broken {
			return sdk.FormatInvariant(types.ModuleName, "supply-consistency", msg), true
		}
		return "", false
	}
}

// CurveBoundsInvariant checks that cumulative curve issuance never exceeds
// the cap and that recorded proceeds are non-negative.
func CurveBoundsInvariant(k Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		params, err := k.GetParams(ctx)
		if err != nil {
			return "", false // engine not initialized yet
		}
		curve, err := k.GetCurveState(ctx)
		if err != nil {
			return sdk.FormatInvariant(types.ModuleName, "curve-bounds",
				fmt.Sprintf("INVARIANT BROKEN: cannot load curve state: %v\n", err)), true
		}

		var msg string
		broken := false
		if curve.UnitsSold.IsNegative() {
			msg += fmt.Sprintf("INVARIANT BROKEN: units sold %s is negative\n", curve.UnitsSold)
			broken = true
		}
		if curve.UnitsSold.GT(params.CurveCap) {
			msg += fmt.Sprintf("INVARIANT BROKEN: units sold %s exceeds cap %s\n",
				curve.UnitsSold, params.CurveCap)
			broken = true
		}
		if curve.ProceedsDeposited.IsNegative() {
			msg += fmt.Sprintf("INVARIANT BROKEN: proceeds %s is negative\n", curve.ProceedsDeposited)
			broken = true
		}

		if broken {
			return sdk.FormatInvariant(types.ModuleName, "curve-bounds", msg), true
		}
		return "", false
	}
}

// PositionConsistencyInvariant checks every stake position: non-negative
// amounts, a key matching the stored account, and a touch index no newer
// than the global index.
func PositionConsistencyInvariant(k Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		rebase, err := k.GetRebaseState(ctx)
		if err != nil {
			return sdk.FormatInvariant(types.ModuleName, "position-consistency",
				fmt.Sprintf("INVARIANT BROKEN: cannot load rebase state: %v\n", err)), true
		}

		var msg string
		broken := false
		_ = k.Positions.Walk(ctx, nil, func(account, raw string) (bool, error) {
			var pos types.StakePosition
			if err := json.Unmarshal([]byte(raw), &pos); err != nil {
				msg += fmt.Sprintf("INVARIANT BROKEN: position %s does not decode: %v\n", account, err)
				broken = true
				return false, nil
			}
			if pos.Account != account {
				msg += fmt.Sprintf("INVARIANT BROKEN: position key %s != stored account %s\n",
					account, pos.Account)
				broken = true
			}
			if pos.Principal.IsNegative() || pos.PendingRewards.IsNegative() {
				msg += fmt.Sprintf("INVARIANT BROKEN: position %s has negative fields (principal=%s pending=%s)\n",
					account, pos.Principal, pos.PendingRewards)
				broken = true
			}
			if !pos.IndexAtLastTouch.IsPositive() {
				msg += fmt.Sprintf("INVARIANT BROKEN: position %s has non-positive touch index %s\n",
					account, pos.IndexAtLastTouch)
				broken = true
			}
			if pos.IndexAtLastTouch.GT(rebase.Index) {
				msg += fmt.Sprintf("INVARIANT BROKEN: position %s touched at index %s beyond global %s\n",
					account, pos.IndexAtLastTouch, rebase.Index)
				broken = true
			}
			return false, nil
		})

		if broken {
			return sdk.FormatInvariant(types.ModuleName, "position-consistency", msg), true
		}
		return "", false
	}
}

// RequestConsistencyInvariant checks every pending unstake request: positive
// amount, a penalty within the configured maximum, a cooldown that ends at
// or after the request epoch, and a backing position for the account.
func RequestConsistencyInvariant(k Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		params, err := k.GetParams(ctx)
		if err != nil {
			return "", false
		}

		var msg string
		broken := false
		_ = k.Requests.Walk(ctx, nil, func(account, raw string) (bool, error) {
			var req types.UnstakeRequest
			if err := json.Unmarshal([]byte(raw), &req); err != nil {
				msg += fmt.Sprintf("INVARIANT BROKEN: request %s does not decode: %v\n", account, err)
				broken = true
				return false, nil
			}
			if req.Account != account {
				msg += fmt.Sprintf("INVARIANT BROKEN: request key %s != stored account %s\n",
					account, req.Account)
				broken = true
			}
			if !req.Amount.IsPositive() {
				msg += fmt.Sprintf("INVARIANT BROKEN: request %s has non-positive amount %s\n",
					account, req.Amount)
				broken = true
			}
			if req.PenaltyBps < 0 || req.PenaltyBps > params.MaxPenaltyBps {
				msg += fmt.Sprintf("INVARIANT BROKEN: request %s penalty %d outside [0, %d]\n",
					account, req.PenaltyBps, params.MaxPenaltyBps)
				broken = true
			}
			if req.CooldownEndEpoch < req.RequestEpoch {
				msg += fmt.Sprintf("INVARIANT BROKEN: request %s matures at %d before request epoch %d\n",
					account, req.CooldownEndEpoch, req.RequestEpoch)
				broken = true
			}
			if has, _ := k.Positions.Has(ctx, account); !has {
				msg += fmt.Sprintf("INVARIANT BROKEN: request %s has no backing position\n", account)
				broken = true
			}
			return false, nil
		})

		if broken {
			return sdk.FormatInvariant(types.ModuleName, "request-consistency", msg), true
		}
		return "", false
	}
}

// BondConsistencyInvariant checks every vesting bond: key matches the stored
// account, amounts are non-negative, claims never exceed the bond total, and
// the vesting window is non-empty.
func BondConsistencyInvariant(k Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		var msg string
		broken := false
		_ = k.Bonds.Walk(ctx, nil, func(account, raw string) (bool, error) {
			var bond types.BondPosition
			if err := json.Unmarshal([]byte(raw), &bond); err != nil {
				msg += fmt.Sprintf("INVARIANT BROKEN: bond %s does not decode: %v\n", account, err)
				broken = true
				return false, nil
			}
			if bond.Account != account {
				msg += fmt.Sprintf("INVARIANT BROKEN: bond key %s != stored account %s\n",
					account, bond.Account)
				broken = true
			}
			if !bond.TotalAmount.IsPositive() || bond.ClaimedAmount.IsNegative() {
				msg += fmt.Sprintf("INVARIANT BROKEN: bond %s amounts invalid (total=%s claimed=%s)\n",
					account, bond.TotalAmount, bond.ClaimedAmount)
				broken = true
			}
			if bond.ClaimedAmount.GT(bond.TotalAmount) {
				msg += fmt.Sprintf("INVARIANT BROKEN: bond %s claimed %s exceeds total %s\n",
					account, bond.ClaimedAmount, bond.TotalAmount)
				broken = true
			}
			if bond.VestEndEpoch <= bond.StartEpoch {
				msg += fmt.Sprintf("INVARIANT BROKEN: bond %s vests over empty window [%d, %d]\n",
					account, bond.StartEpoch, bond.VestEndEpoch)
				broken = true
			}
			return false, nil
		})

		if broken {
			return sdk.FormatInvariant(types.ModuleName, "bond-consistency", msg), true
		}
		return "", false
	}
}

// ShareAccountingInvariant recomputes total shares from all positions and
// compares against the rebase state. Each position contributes at most one
// wei of flooring dust, so the tolerance scales with the position count.
func ShareAccountingInvariant(k Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		rebase, err := k.GetRebaseState(ctx)
		if err != nil {
			return sdk.FormatInvariant(types.ModuleName, "share-accounting",
				fmt.Sprintf("INVARIANT BROKEN: cannot load rebase state: %v\n", err)), true
		}

		sum := sdkmath.ZeroInt()
		count := int64(0)
		decodeFailed := false
		_ = k.Positions.Walk(ctx, nil, func(account, raw string) (bool, error) {
			var pos types.StakePosition
			if err := json.Unmarshal([]byte(raw), &pos); err != nil {
				decodeFailed = true
				return true, nil
			}
			if pos.IndexAtLastTouch.IsPositive() {
				sum = sum.Add(pos.Principal.Mul(types.WadScale).Quo(pos.IndexAtLastTouch))
			}
			count++
			return false, nil
		})
		if decodeFailed {
			return "", false // position-consistency reports decode failures
		}

		diff := rebase.TotalShares.Sub(sum).Abs()
		if diff.GT(sdkmath.NewInt(count + 1)) {
			msg := fmt.Sprintf("INVARIANT BROKEN: total shares %s != recomputed %s (diff %s, %d positions)\n",
				rebase.TotalShares, sum, diff, count)
			return sdk.FormatInvariant(types.ModuleName, "share-accounting", msg), true
		}
		return "", false
	}
}
