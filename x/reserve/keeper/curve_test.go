package keeper_test

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/dcrypto25/Echo/x/reserve/types"
)

func TestBuy_LaunchPriceGovernsFirstPurchase(t *testing.T) {
	k, ctx := setupEngine(t)

	// A $3 purchase at the launch price of $0.0003 buys just under 10,000
	// tokens; the rising price shaves a little off the linear estimate.
	res := buyTokens(t, k, ctx, "echo1alice", wad(3))

	linear := wad(10_000)
	require.True(t, res.TokensIssued.LTE(linear))
	require.True(t, res.TokensIssued.GT(linear.MulRaw(99).QuoRaw(100)),
		"issued %s, expected within 1%% of %s", res.TokensIssued, linear)
	require.True(t, res.Refund.IsZero())
	require.True(t, res.PaymentUsed.Equal(wad(3)))
}

func TestBuy_ConservationOfPayment(t *testing.T) {
	k, ctx := setupEngine(t)

	payments := []sdkmath.Int{
		sdkmath.NewInt(1),
		wad(1),
		wad(137),
		wad(5_000),
		wad(50_000), // beyond the cap cost
	}
	for _, payment := range payments {
		res, err := k.MsgBuy(ctx, types.MsgBuy{Buyer: "echo1alice", Payment: payment})
		if err != nil {
			continue // cap already reached by a prior purchase
		}
		require.True(t, res.PaymentUsed.Add(res.Refund).Equal(payment),
			"used %s + refund %s != payment %s", res.PaymentUsed, res.Refund, payment)
	}

	curve, err := k.GetCurveState(ctx)
	require.NoError(t, err)
	asset, err := k.GetAsset(ctx, types.AssetNative)
	require.NoError(t, err)
	require.True(t, asset.Quantity.Equal(curve.ProceedsDeposited),
		"every accepted unit must land in the treasury")
}

func TestBuy_SuccessivePurchasesPayRisingPrices(t *testing.T) {
	k, ctx := setupEngine(t)

	prev := sdkmath.ZeroInt()
	for i := 0; i < 5; i++ {
		res := buyTokens(t, k, ctx, "echo1alice", wad(1_000))
		if i > 0 {
			require.True(t, res.TokensIssued.LT(prev),
				"equal payments must issue strictly fewer tokens as supply grows")
		}
		prev = res.TokensIssued
	}
}

func TestBuy_QuarterSupplyCalibration(t *testing.T) {
	k, ctx := setupEngine(t)

	// Closed-form cost of the first 250,000 tokens: $75 linear plus
	// $206.7708... from the quadratic term.
	cost := wad(75).Add(mustNewIntFromString(t, "206770833333333333333"))
	res := buyTokens(t, k, ctx, "echo1alice", cost)

	sold, err := k.TotalSold(ctx)
	require.NoError(t, err)
	tolerance := sdkmath.NewInt(1_000_000_000) // 1e9 of 2.5e23, relative 4e-15
	require.True(t, sold.Sub(wad(250_000)).Abs().LTE(tolerance),
		"sold %s, want 250000 tokens", sold)
	require.True(t, res.Refund.IsZero())

	// p(250000) = 0.0003 + k*250000^2 = $0.00278125 exactly.
	price, err := k.CurrentPrice(ctx)
	require.NoError(t, err)
	expected := sdkmath.NewInt(2_781_250_000_000_000)
	require.True(t, price.Sub(expected).Abs().LTE(sdkmath.NewInt(100)),
		"price %s, want %s", price, expected)
}

func TestBuy_CapClampRefundsExcess(t *testing.T) {
	k, ctx := setupEngine(t)

	// Full curve cost is about $13,533; pay $20,000 and expect change.
	res := buyTokens(t, k, ctx, "echo1alice", wad(20_000))
	require.True(t, res.Refund.IsPositive())
	require.True(t, res.PaymentUsed.Add(res.Refund).Equal(wad(20_000)))

	sold, err := k.TotalSold(ctx)
	require.NoError(t, err)
	params, err := k.GetParams(ctx)
	require.NoError(t, err)
	require.True(t, sold.Equal(params.CurveCap))

	price, err := k.CurrentPrice(ctx)
	require.NoError(t, err)
	require.True(t, price.Equal(params.CapPrice))

	_, err = k.MsgBuy(ctx, types.MsgBuy{Buyer: "echo1bob", Payment: wad(1)})
	require.ErrorIs(t, err, types.ErrCurveSoldOut)
}

func TestBuy_InventoryMovesFromCustodyToBuyer(t *testing.T) {
	k, ctx := setupEngine(t)

	before, err := k.GetSupply(ctx)
	require.NoError(t, err)

	res := buyTokens(t, k, ctx, "echo1alice", wad(50))

	after, err := k.GetSupply(ctx)
	require.NoError(t, err)
	require.True(t, before.TreasuryHeld.Sub(after.TreasuryHeld).Equal(res.TokensIssued))
	require.True(t, after.TotalMinted.Equal(before.TotalMinted), "buys issue from custody, not mint")

	balance, err := k.GetBalance(ctx, "echo1alice")
	require.NoError(t, err)
	require.True(t, balance.Equal(res.TokensIssued))
}

func TestBuy_RejectsNonPositivePayment(t *testing.T) {
	k, ctx := setupEngine(t)

	_, err := k.MsgBuy(ctx, types.MsgBuy{Buyer: "echo1alice", Payment: sdkmath.ZeroInt()})
	require.ErrorIs(t, err, types.ErrInvalidAmount)

	_, err = k.MsgBuy(ctx, types.MsgBuy{Buyer: "", Payment: wad(1)})
	require.Error(t, err)
}

func mustNewIntFromString(t *testing.T, s string) sdkmath.Int {
	t.Helper()
	v, ok := sdkmath.NewIntFromString(s)
	require.True(t, ok)
	return v
}
