package keeper_test

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/dcrypto25/Echo/x/reserve/types"
)

func TestStake_MovesBalanceIntoPosition(t *testing.T) {
	k, ctx := setupEngine(t)
	res := buyTokens(t, k, ctx, "echo1alice", wad(100))

	require.NoError(t, k.MsgStake(ctx, types.MsgStake{Account: "echo1alice", Amount: wad(10_000)}))

	balance, err := k.GetBalance(ctx, "echo1alice")
	require.NoError(t, err)
	require.True(t, balance.Equal(res.TokensIssued.Sub(wad(10_000))))

	staked, err := k.GetStakedBalance(ctx, "echo1alice")
	require.NoError(t, err)
	require.True(t, staked.Equal(wad(10_000)))

	supply, err := k.GetSupply(ctx)
	require.NoError(t, err)
	require.True(t, supply.Staked.Equal(wad(10_000)))
}

func TestStake_RejectsInsufficientBalance(t *testing.T) {
	k, ctx := setupEngine(t)
	buyTokens(t, k, ctx, "echo1alice", wad(1))

	err := k.MsgStake(ctx, types.MsgStake{Account: "echo1alice", Amount: wad(10_000)})
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
}

func TestRebaseTick_RequiresAuthority(t *testing.T) {
	k, ctx := setupEngine(t)

	err := k.MsgRebaseTick(ctx, types.MsgRebaseTick{Authority: "echo1mallory"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "authority")
}

func TestRebaseTick_BelowFloorAdvancesEpochWithoutEmission(t *testing.T) {
	k, ctx := setupEngine(t)
	buyTokens(t, k, ctx, "echo1alice", wad(100))
	require.NoError(t, k.MsgStake(ctx, types.MsgStake{Account: "echo1alice", Amount: wad(10_000)}))

	// Early-curve proceeds back only a sliver of circulating value, far
	// below the 80% emission floor.
	backing, err := k.GetBackingRatio(ctx)
	require.NoError(t, err)
	require.Less(t, backing, int64(8_000))

	require.NoError(t, k.MsgRebaseTick(ctx, types.MsgRebaseTick{Authority: testAuthority}))

	state, err := k.GetRebaseState(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), state.Epoch)
	require.Equal(t, int64(0), state.LastApyBps)
	require.True(t, state.Index.Equal(types.WadScale), "no emission below the floor")

	pending, err := k.GetPendingRewards(ctx, "echo1alice")
	require.NoError(t, err)
	require.True(t, pending.IsZero())
}

func TestRebaseTick_MintsAgainstStakedSupply(t *testing.T) {
	k, ctx := setupEngine(t)
	buyTokens(t, k, ctx, "echo1alice", wad(100))
	require.NoError(t, k.MsgStake(ctx, types.MsgStake{Account: "echo1alice", Amount: wad(10_000)}))
	setBackingBps(t, k, ctx, 10_000)

	before, err := k.GetSupply(ctx)
	require.NoError(t, err)

	require.NoError(t, k.MsgRebaseTick(ctx, types.MsgRebaseTick{Authority: testAuthority}))

	state, err := k.GetRebaseState(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(500_000), state.LastApyBps, "full backing pins APY at the base rate")
	require.True(t, state.Index.GT(types.WadScale))

	after, err := k.GetSupply(ctx)
	require.NoError(t, err)
	minted := after.TotalMinted.Sub(before.TotalMinted)

	// (1+50)^(1/1095)-1 is roughly 36 bps per tick.
	require.True(t, minted.GT(wad(10_000).MulRaw(30).QuoRaw(10_000)))
	require.True(t, minted.LT(wad(10_000).MulRaw(40).QuoRaw(10_000)))
	require.True(t, after.Staked.Sub(before.Staked).Equal(minted), "emission lands on staked supply")

	pending, err := k.GetPendingRewards(ctx, "echo1alice")
	require.NoError(t, err)
	require.True(t, pending.Sub(minted).Abs().LTE(sdkmath.NewInt(2)),
		"sole staker accrues the full emission, %s vs %s", pending, minted)
}

func TestRebaseTick_ApyIsQuadraticInBacking(t *testing.T) {
	k, ctx := setupEngine(t)
	buyTokens(t, k, ctx, "echo1alice", wad(100))
	require.NoError(t, k.MsgStake(ctx, types.MsgStake{Account: "echo1alice", Amount: wad(10_000)}))
	setBackingBps(t, k, ctx, 9_000)

	require.NoError(t, k.MsgRebaseTick(ctx, types.MsgRebaseTick{Authority: testAuthority}))

	state, err := k.GetRebaseState(ctx)
	require.NoError(t, err)
	// 500000 * 0.9^2 = 405000, within flooring of the bps arithmetic.
	require.InDelta(t, 405_000, state.LastApyBps, 100)
}

func TestRebaseTick_ApyClampsAtCeilingUnderExtremeBacking(t *testing.T) {
	k, ctx := setupEngine(t)
	buyTokens(t, k, ctx, "echo1alice", wad(100))
	require.NoError(t, k.MsgStake(ctx, types.MsgStake{Account: "echo1alice", Amount: wad(10_000)}))

	// A treasury worth tens of thousands of times the circulating value
	// drives the quadratic far past int64 range; the rate must read as the
	// ceiling, not wrap.
	require.NoError(t, k.MsgDepositTreasury(ctx, types.MsgDepositTreasury{
		Depositor: "echo1whale", Kind: types.AssetStable, Amount: wad(900_000_000_000),
	}))

	params, err := k.GetParams(ctx)
	require.NoError(t, err)

	apy, err := k.CurrentApyBps(ctx)
	require.NoError(t, err)
	require.Equal(t, params.MaxApyBps, apy)

	require.NoError(t, k.MsgRebaseTick(ctx, types.MsgRebaseTick{Authority: testAuthority}))
	state, err := k.GetRebaseState(ctx)
	require.NoError(t, err)
	require.Equal(t, params.MaxApyBps, state.LastApyBps)
	require.True(t, state.Index.GT(types.WadScale), "the tick emits at the ceiling rate")
}

func TestClaimRewards_MovesAccruedToBalance(t *testing.T) {
	k, ctx := setupEngine(t)
	buyTokens(t, k, ctx, "echo1alice", wad(100))
	require.NoError(t, k.MsgStake(ctx, types.MsgStake{Account: "echo1alice", Amount: wad(10_000)}))
	setBackingBps(t, k, ctx, 10_000)
	require.NoError(t, k.MsgRebaseTick(ctx, types.MsgRebaseTick{Authority: testAuthority}))

	balanceBefore, err := k.GetBalance(ctx, "echo1alice")
	require.NoError(t, err)

	claimed, err := k.MsgClaimRewards(ctx, types.MsgClaimRewards{Account: "echo1alice"})
	require.NoError(t, err)
	require.True(t, claimed.IsPositive())

	balanceAfter, err := k.GetBalance(ctx, "echo1alice")
	require.NoError(t, err)
	require.True(t, balanceAfter.Sub(balanceBefore).Equal(claimed))

	pending, err := k.GetPendingRewards(ctx, "echo1alice")
	require.NoError(t, err)
	require.True(t, pending.IsZero())

	// Claiming again without a new tick yields nothing.
	again, err := k.MsgClaimRewards(ctx, types.MsgClaimRewards{Account: "echo1alice"})
	require.NoError(t, err)
	require.True(t, again.IsZero())
}

func TestCompound_FoldsRewardsIntoPrincipal(t *testing.T) {
	k, ctx := setupEngine(t)
	buyTokens(t, k, ctx, "echo1alice", wad(100))
	require.NoError(t, k.MsgStake(ctx, types.MsgStake{Account: "echo1alice", Amount: wad(10_000)}))
	setBackingBps(t, k, ctx, 10_000)
	require.NoError(t, k.MsgRebaseTick(ctx, types.MsgRebaseTick{Authority: testAuthority}))

	compounded, err := k.MsgCompound(ctx, types.MsgCompound{Account: "echo1alice"})
	require.NoError(t, err)
	require.True(t, compounded.IsPositive())

	staked, err := k.GetStakedBalance(ctx, "echo1alice")
	require.NoError(t, err)
	require.True(t, staked.Equal(wad(10_000).Add(compounded)))

	pending, err := k.GetPendingRewards(ctx, "echo1alice")
	require.NoError(t, err)
	require.True(t, pending.IsZero())
}

func TestRewards_SplitProRataAcrossStakers(t *testing.T) {
	k, ctx := setupEngine(t)
	buyTokens(t, k, ctx, "echo1alice", wad(100))
	buyTokens(t, k, ctx, "echo1bob", wad(100))
	require.NoError(t, k.MsgStake(ctx, types.MsgStake{Account: "echo1alice", Amount: wad(30_000)}))
	require.NoError(t, k.MsgStake(ctx, types.MsgStake{Account: "echo1bob", Amount: wad(10_000)}))
	setBackingBps(t, k, ctx, 10_000)

	require.NoError(t, k.MsgRebaseTick(ctx, types.MsgRebaseTick{Authority: testAuthority}))

	alice, err := k.GetPendingRewards(ctx, "echo1alice")
	require.NoError(t, err)
	bob, err := k.GetPendingRewards(ctx, "echo1bob")
	require.NoError(t, err)

	require.True(t, alice.Sub(bob.MulRaw(3)).Abs().LTE(sdkmath.NewInt(4)),
		"3x the stake earns 3x the emission, got %s vs %s", alice, bob)
}

func TestClaim_FailsWithoutPosition(t *testing.T) {
	k, ctx := setupEngine(t)

	_, err := k.MsgClaimRewards(ctx, types.MsgClaimRewards{Account: "echo1nobody"})
	require.ErrorIs(t, err, types.ErrNoPosition)
}
