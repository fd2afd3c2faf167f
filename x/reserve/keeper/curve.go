package keeper

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dcrypto25/Echo/x/reserve/types"
)

// ---------------------------------------------------------------------------
// BONDING CURVE
// ---------------------------------------------------------------------------
//
// Primary issuance follows p(s) = p0 + k*s^2 with k calibrated at launch so
// that p(0) = LaunchPrice and p(CurveCap) = CapPrice. A purchase of payment A
// issues delta = s2 - s1 tokens where the price integral over [s1, s2] equals
// A exactly:
//
//	A = p0*delta + (k/3)*(s2^3 - s1^3)
//
// The cubic is solved for s2 with Newton iteration seeded from the linear
// approximation A / p(s1). The integrand is convex and increasing, so the
// seed lands above the root and the iteration descends monotonically onto it.
// ---------------------------------------------------------------------------

// curveCoefficient derives k (1e18-scaled price units per token^2) from the
// configured calibration.
func (k Keeper) curveCoefficient(params types.Params) (sdkmath.Int, error) {
	capSquared, err := k.math.MulWad(params.CurveCap, params.CurveCap)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return k.math.SafeMulDiv(params.CapPrice.Sub(params.LaunchPrice), types.WadScale, capSquared)
}

// curvePriceAt evaluates p(s) = p0 + k*s^2 at a 1e18-scaled supply point.
func (k Keeper) curvePriceAt(params types.Params, coefficient, s sdkmath.Int) (sdkmath.Int, error) {
	sSquared, err := k.math.MulWad(s, s)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	term, err := k.math.MulWad(coefficient, sSquared)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return params.LaunchPrice.Add(term), nil
}

// curveCost evaluates the price integral between two supply points:
// p0*(s2-s1) + (k/3)*(s2^3 - s1^3), all 1e18 scaled.
func (k Keeper) curveCost(params types.Params, coefficient, s1, s2 sdkmath.Int) (sdkmath.Int, error) {
	delta, err := k.math.SafeSub(s2, s1)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	linear, err := k.math.MulWad(params.LaunchPrice, delta)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	cube1, err := k.wadCube(s1)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	cube2, err := k.wadCube(s2)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	cubic, err := k.math.SafeMulDiv(coefficient, cube2.Sub(cube1), types.WadScale.MulRaw(3))
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return linear.Add(cubic), nil
}

func (k Keeper) wadCube(s sdkmath.Int) (sdkmath.Int, error) {
	sSquared, err := k.math.MulWad(s, s)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return k.math.MulWad(sSquared, s)
}

// solveCurvePurchase finds s2 such that curveCost(s1, s2) == payment to
// fixed-point precision, within the configured iteration budget. The caller
// guarantees payment < curveCost(s1, cap).
func (k Keeper) solveCurvePurchase(
	params types.Params,
	coefficient, s1, payment sdkmath.Int,
) (sdkmath.Int, error) {
	priceAtStart, err := k.curvePriceAt(params, coefficient, s1)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	seedDelta, err := k.math.DivWad(payment, priceAtStart)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	s2 := s1.Add(seedDelta)
	if s2.GT(params.CurveCap) {
		s2 = params.CurveCap
	}

	for i := 0; i < params.SolverIterationBudget; i++ {
		cost, err := k.curveCost(params, coefficient, s1, s2)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		diff := cost.Sub(payment)
		if diff.IsZero() {
			return s2, nil
		}

		price, err := k.curvePriceAt(params, coefficient, s2)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		step, err := k.math.SafeMulDiv(diff.Abs(), types.WadScale, price)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if step.IsZero() {
			// Within one token-wei of the root. Land on the conservative
			// side so the buyer is never overcharged.
			if diff.IsPositive() {
				s2 = s2.SubRaw(1)
			}
			return s2, nil
		}

		if diff.IsPositive() {
			s2 = s2.Sub(step)
			if s2.LT(s1) {
				s2 = s1
			}
		} else {
			s2 = s2.Add(step)
			if s2.GT(params.CurveCap) {
				s2 = params.CurveCap
			}
		}
	}

	// Exhausting the budget on well-formed inputs is a calibration bug, not
	// an operational state. The transaction is rejected with nothing written.
	return sdkmath.ZeroInt(), fmt.Errorf(
		"no root after %d iterations (s1=%s payment=%s): %w",
		params.SolverIterationBudget, s1, payment, types.ErrConvergence,
	)
}

// MsgBuy purchases newly issued tokens along the bonding curve. The accepted
// portion of the payment is deposited to the treasury exactly; any payment
// beyond the cap-reaching cost is returned as a refund. Conservation of
// payment is a hard invariant: used + refund == payment.
func (k Keeper) MsgBuy(ctx context.Context, msg types.MsgBuy) (types.BuyResult, error) {
	if err := msg.ValidateBasic(); err != nil {
		return types.BuyResult{}, err
	}

	params, err := k.GetParams(ctx)
	if err != nil {
		return types.BuyResult{}, err
	}
	curve, err := k.GetCurveState(ctx)
	if err != nil {
		return types.BuyResult{}, err
	}
	if curve.UnitsSold.GTE(params.CurveCap) {
		return types.BuyResult{}, fmt.Errorf("sold %s of cap %s: %w",
			curve.UnitsSold, params.CurveCap, types.ErrCurveSoldOut)
	}

	coefficient, err := k.curveCoefficient(params)
	if err != nil {
		return types.BuyResult{}, err
	}

	costToCap, err := k.curveCost(params, coefficient, curve.UnitsSold, params.CurveCap)
	if err != nil {
		return types.BuyResult{}, err
	}

	var s2, used, refund sdkmath.Int
	if msg.Payment.GTE(costToCap) {
		s2 = params.CurveCap
		used = costToCap
		refund = msg.Payment.Sub(costToCap)
	} else {
		s2, err = k.solveCurvePurchase(params, coefficient, curve.UnitsSold, msg.Payment)
		if err != nil {
			return types.BuyResult{}, err
		}
		used = msg.Payment
		refund = sdkmath.ZeroInt()
	}

	issued := s2.Sub(curve.UnitsSold)
	if !issued.IsPositive() {
		return types.BuyResult{}, fmt.Errorf("payment %s issues no tokens: %w",
			msg.Payment, types.ErrInvalidAmount)
	}

	supply, err := k.GetSupply(ctx)
	if err != nil {
		return types.BuyResult{}, err
	}
	if supply.TreasuryHeld.LT(issued) {
		return types.BuyResult{}, fmt.Errorf("curve inventory %s below issuance %s: %w",
			supply.TreasuryHeld, issued, types.ErrInsufficientReserves)
	}

	// Settle: proceeds to treasury, inventory to the buyer, curve advanced.
	if err := k.Deposit(ctx, types.AssetNative, used); err != nil {
		return types.BuyResult{}, err
	}
	supply.TreasuryHeld = supply.TreasuryHeld.Sub(issued)
	if err := k.setSupply(ctx, supply); err != nil {
		return types.BuyResult{}, err
	}
	curve.UnitsSold = s2
	curve.ProceedsDeposited = curve.ProceedsDeposited.Add(used)
	if err := k.setCurveState(ctx, curve); err != nil {
		return types.BuyResult{}, err
	}
	if err := k.addBalance(ctx, msg.Buyer, issued); err != nil {
		return types.BuyResult{}, err
	}

	priceAfter, err := k.curvePriceAt(params, coefficient, s2)
	if err != nil {
		return types.BuyResult{}, err
	}

	sdkCtx, _ := contextNow(ctx)
	emitEventIfPossible(sdkCtx, sdk.NewEvent(
		"reserve_curve_buy",
		sdk.NewAttribute("buyer", msg.Buyer),
		sdk.NewAttribute("payment_used", used.String()),
		sdk.NewAttribute("refund", refund.String()),
		sdk.NewAttribute("tokens_issued", issued.String()),
		sdk.NewAttribute("units_sold", s2.String()),
	))

	return types.BuyResult{
		TokensIssued: issued,
		PaymentUsed:  used,
		Refund:       refund,
		PriceAfter:   priceAfter,
	}, nil
}

// CurrentPrice returns p(unitsSold) for display purposes.
func (k Keeper) CurrentPrice(ctx context.Context) (sdkmath.Int, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	curve, err := k.GetCurveState(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	coefficient, err := k.curveCoefficient(params)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return k.curvePriceAt(params, coefficient, curve.UnitsSold)
}
