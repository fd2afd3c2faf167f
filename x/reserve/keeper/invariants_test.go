package keeper_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dcrypto25/Echo/x/reserve/keeper"
	"github.com/dcrypto25/Echo/x/reserve/types"
)

func TestInvariants_HoldAcrossFullLifecycle(t *testing.T) {
	k, ctx := setupEngine(t)

	check := func(stage string) {
		msg, broken := keeper.AllInvariants(k)(ctx)
		require.False(t, broken, "after %s: %s", stage, msg)
	}

	check("genesis")

	buyTokens(t, k, ctx, "echo1alice", wad(200))
	buyTokens(t, k, ctx, "echo1bob", wad(100))
	check("curve purchases")

	require.NoError(t, k.MsgStake(ctx, types.MsgStake{
		Account: "echo1alice", Amount: wad(50_000), Sponsor: "echo1bob",
	}))
	require.NoError(t, k.MsgStake(ctx, types.MsgStake{
		Account: "echo1bob", Amount: wad(20_000),
	}))
	check("staking")

	setBackingBps(t, k, ctx, 10_000)
	for i := 0; i < 5; i++ {
		require.NoError(t, k.MsgRebaseTick(ctx, types.MsgRebaseTick{Authority: testAuthority}))
	}
	check("rebase ticks")

	_, err := k.MsgClaimRewards(ctx, types.MsgClaimRewards{Account: "echo1alice"})
	require.NoError(t, err)
	_, err = k.MsgCompound(ctx, types.MsgCompound{Account: "echo1bob"})
	require.NoError(t, err)
	check("claims and compounds")

	_, err = k.MsgPurchaseBond(ctx, types.MsgPurchaseBond{Account: "echo1carol", Payment: wad(50)})
	require.NoError(t, err)
	check("bond purchase")

	_, err = k.MsgRequestUnstake(ctx, types.MsgRequestUnstake{Account: "echo1alice", Amount: wad(1_000)})
	require.NoError(t, err)
	check("unstake request")

	for i := 0; i < 6; i++ {
		require.NoError(t, k.MsgRebaseTick(ctx, types.MsgRebaseTick{Authority: testAuthority}))
	}
	_, err = k.MsgExecuteUnstake(ctx, types.MsgExecuteUnstake{Account: "echo1alice"})
	require.NoError(t, err)
	check("unstake execution")

	_, err = k.MsgClaimBond(ctx, types.MsgClaimBond{Account: "echo1carol"})
	require.NoError(t, err)
	check("bond claim")

	require.NoError(t, k.MsgTransfer(ctx, types.MsgTransfer{
		From: "echo1alice", To: "echo1carol", Amount: wad(100),
	}))
	check("taxed transfer")
}
