package keeper_test

import (
	"testing"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/dcrypto25/Echo/x/reserve/keeper"
	"github.com/dcrypto25/Echo/x/reserve/types"
)

// stakeForUnstake buys and stakes a round position for the account.
func stakeForUnstake(t *testing.T, k keeper.Keeper, ctx sdk.Context, account string) {
	t.Helper()
	buyTokens(t, k, ctx, account, wad(100))
	require.NoError(t, k.MsgStake(ctx, types.MsgStake{Account: account, Amount: wad(50_000)}))
}

func advanceEpochs(t *testing.T, k keeper.Keeper, ctx sdk.Context, n int64) {
	t.Helper()
	for i := int64(0); i < n; i++ {
		require.NoError(t, k.MsgRebaseTick(ctx, types.MsgRebaseTick{Authority: testAuthority}))
	}
}

func TestCalculateUnstakePenalty_WorkedExample(t *testing.T) {
	k, ctx := setupEngine(t)
	stakeForUnstake(t, k, ctx, "echo1alice")
	setBackingBps(t, k, ctx, 10_000)

	// Deficit 2000 bps of a 7000 bps range: 7500 * (2000/7000)^2 = 612 bps.
	quote, err := k.CalculateUnstakePenalty(ctx, wad(10_000))
	require.NoError(t, err)
	require.Equal(t, int64(612), quote.PenaltyBps)
	require.True(t, quote.PenaltyAmount.Equal(wad(10_000).MulRaw(612).QuoRaw(10_000)))
	require.Equal(t, int64(2), quote.CooldownDays)
}

func TestCalculateUnstakePenalty_FreeExitAboveThreshold(t *testing.T) {
	k, ctx := setupEngine(t)
	stakeForUnstake(t, k, ctx, "echo1alice")
	setBackingBps(t, k, ctx, 12_000)

	quote, err := k.CalculateUnstakePenalty(ctx, wad(10_000))
	require.NoError(t, err)
	require.Equal(t, int64(0), quote.PenaltyBps)
	require.True(t, quote.PenaltyAmount.IsZero())
	require.Equal(t, int64(1), quote.CooldownDays)
}

func TestCalculateUnstakePenalty_ClampsAtCrisisFloor(t *testing.T) {
	k, ctx := setupEngine(t)
	stakeForUnstake(t, k, ctx, "echo1alice")

	// Early-curve backing sits far below threshold-range, pinning both
	// curves at their maxima.
	quote, err := k.CalculateUnstakePenalty(ctx, wad(10_000))
	require.NoError(t, err)
	require.Equal(t, int64(7_500), quote.PenaltyBps)
	require.Equal(t, int64(7), quote.CooldownDays)
}

func TestRequestUnstake_SnapshotsTermsAndStopsEarning(t *testing.T) {
	k, ctx := setupEngine(t)
	stakeForUnstake(t, k, ctx, "echo1alice")
	setBackingBps(t, k, ctx, 10_000)

	req, err := k.MsgRequestUnstake(ctx, types.MsgRequestUnstake{Account: "echo1alice", Amount: wad(10_000)})
	require.NoError(t, err)
	require.Equal(t, int64(612), req.PenaltyBps)
	require.Equal(t, req.RequestEpoch+6, req.CooldownEndEpoch, "2 days at 3 ticks per day")

	staked, err := k.GetStakedBalance(ctx, "echo1alice")
	require.NoError(t, err)
	require.True(t, staked.Equal(wad(40_000)), "cooldown amount leaves the earning position")

	// Later backing moves never touch the snapshot.
	setBackingBps(t, k, ctx, 12_000)
	stored, found, err := k.GetUnstakeStatus(ctx, "echo1alice")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(612), stored.PenaltyBps)
}

func TestRequestUnstake_SupersedesPriorRequest(t *testing.T) {
	k, ctx := setupEngine(t)
	stakeForUnstake(t, k, ctx, "echo1alice")
	setBackingBps(t, k, ctx, 10_000)

	_, err := k.MsgRequestUnstake(ctx, types.MsgRequestUnstake{Account: "echo1alice", Amount: wad(10_000)})
	require.NoError(t, err)

	// The replacement restores the prior amount first, so the full
	// principal is available to the new request.
	req, err := k.MsgRequestUnstake(ctx, types.MsgRequestUnstake{Account: "echo1alice", Amount: wad(50_000)})
	require.NoError(t, err)
	require.True(t, req.Amount.Equal(wad(50_000)))

	staked, err := k.GetStakedBalance(ctx, "echo1alice")
	require.NoError(t, err)
	require.True(t, staked.IsZero())
}

func TestRequestUnstake_RejectsBeyondPrincipal(t *testing.T) {
	k, ctx := setupEngine(t)
	stakeForUnstake(t, k, ctx, "echo1alice")

	_, err := k.MsgRequestUnstake(ctx, types.MsgRequestUnstake{Account: "echo1alice", Amount: wad(50_001)})
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
}

func TestExecuteUnstake_EnforcesCooldown(t *testing.T) {
	k, ctx := setupEngine(t)
	stakeForUnstake(t, k, ctx, "echo1alice")
	setBackingBps(t, k, ctx, 10_000)

	_, err := k.MsgRequestUnstake(ctx, types.MsgRequestUnstake{Account: "echo1alice", Amount: wad(1_000)})
	require.NoError(t, err)

	_, err = k.MsgExecuteUnstake(ctx, types.MsgExecuteUnstake{Account: "echo1alice"})
	require.ErrorIs(t, err, types.ErrCooldownNotElapsed)

	advanceEpochs(t, k, ctx, 5)
	_, err = k.MsgExecuteUnstake(ctx, types.MsgExecuteUnstake{Account: "echo1alice"})
	require.ErrorIs(t, err, types.ErrCooldownNotElapsed)
}

func TestExecuteUnstake_SettlesWithSnapshotPenalty(t *testing.T) {
	k, ctx := setupEngine(t)
	stakeForUnstake(t, k, ctx, "echo1alice")
	setBackingBps(t, k, ctx, 10_000)

	_, err := k.MsgRequestUnstake(ctx, types.MsgRequestUnstake{Account: "echo1alice", Amount: wad(1_000)})
	require.NoError(t, err)
	advanceEpochs(t, k, ctx, 6)

	balanceBefore, err := k.GetBalance(ctx, "echo1alice")
	require.NoError(t, err)
	protocolBefore, err := k.GetAsset(ctx, types.AssetProtocolToken)
	require.NoError(t, err)

	res, err := k.MsgExecuteUnstake(ctx, types.MsgExecuteUnstake{Account: "echo1alice"})
	require.NoError(t, err)

	expectedPenalty := wad(1_000).MulRaw(612).QuoRaw(10_000)
	require.True(t, res.GrossAmount.Equal(wad(1_000)))
	require.True(t, res.PenaltyAmount.Equal(expectedPenalty))
	require.True(t, res.NetAmount.Equal(wad(1_000).Sub(expectedPenalty)))

	balanceAfter, err := k.GetBalance(ctx, "echo1alice")
	require.NoError(t, err)
	require.True(t, balanceAfter.Sub(balanceBefore).Equal(res.NetAmount))

	protocolAfter, err := k.GetAsset(ctx, types.AssetProtocolToken)
	require.NoError(t, err)
	require.True(t, protocolAfter.Quantity.Sub(protocolBefore.Quantity).Equal(expectedPenalty),
		"penalty is retained as treasury protocol-token holdings")

	_, found, err := k.GetUnstakeStatus(ctx, "echo1alice")
	require.NoError(t, err)
	require.False(t, found)

	_, err = k.MsgExecuteUnstake(ctx, types.MsgExecuteUnstake{Account: "echo1alice"})
	require.ErrorIs(t, err, types.ErrNoUnstakeRequest)
}

func TestExecuteUnstake_RespectsDailyWindow(t *testing.T) {
	k, ctx := setupEngine(t)
	stakeForUnstake(t, k, ctx, "echo1alice")
	setBackingBps(t, k, ctx, 12_000)

	// 2% of circulating is far below a near-total exit.
	_, err := k.MsgRequestUnstake(ctx, types.MsgRequestUnstake{Account: "echo1alice", Amount: wad(50_000)})
	require.NoError(t, err)
	advanceEpochs(t, k, ctx, 3)

	_, err = k.MsgExecuteUnstake(ctx, types.MsgExecuteUnstake{Account: "echo1alice"})
	require.ErrorIs(t, err, types.ErrQueueCapacityExceeded)

	// The failed draw leaves the request intact for a later window.
	_, found, err := k.GetUnstakeStatus(ctx, "echo1alice")
	require.NoError(t, err)
	require.True(t, found)
}

func TestExecuteUnstake_WindowCapacityResetsNextDay(t *testing.T) {
	k, ctx := setupEngine(t)
	stakeForUnstake(t, k, ctx, "echo1alice")
	stakeForUnstake(t, k, ctx, "echo1bob")
	setBackingBps(t, k, ctx, 12_000)

	// Two 3,000 exits against a daily cap near 4,700 (2% of circulating):
	// the first draws most of the window, the second waits for the next day.
	_, err := k.MsgRequestUnstake(ctx, types.MsgRequestUnstake{Account: "echo1alice", Amount: wad(3_000)})
	require.NoError(t, err)
	_, err = k.MsgRequestUnstake(ctx, types.MsgRequestUnstake{Account: "echo1bob", Amount: wad(3_000)})
	require.NoError(t, err)
	advanceEpochs(t, k, ctx, 3)

	_, err = k.MsgExecuteUnstake(ctx, types.MsgExecuteUnstake{Account: "echo1alice"})
	require.NoError(t, err)
	_, err = k.MsgExecuteUnstake(ctx, types.MsgExecuteUnstake{Account: "echo1bob"})
	require.ErrorIs(t, err, types.ErrQueueCapacityExceeded)

	advanceEpochs(t, k, ctx, 3)
	_, err = k.MsgExecuteUnstake(ctx, types.MsgExecuteUnstake{Account: "echo1bob"})
	require.NoError(t, err)
}

func TestCancelUnstake_RestoresPosition(t *testing.T) {
	k, ctx := setupEngine(t)
	stakeForUnstake(t, k, ctx, "echo1alice")
	setBackingBps(t, k, ctx, 10_000)

	_, err := k.MsgRequestUnstake(ctx, types.MsgRequestUnstake{Account: "echo1alice", Amount: wad(10_000)})
	require.NoError(t, err)

	require.NoError(t, k.MsgCancelUnstake(ctx, types.MsgCancelUnstake{Account: "echo1alice"}))

	staked, err := k.GetStakedBalance(ctx, "echo1alice")
	require.NoError(t, err)
	require.True(t, staked.Equal(wad(50_000)))

	err = k.MsgCancelUnstake(ctx, types.MsgCancelUnstake{Account: "echo1alice"})
	require.ErrorIs(t, err, types.ErrNoUnstakeRequest)
}
