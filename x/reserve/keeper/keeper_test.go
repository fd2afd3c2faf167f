package keeper_test

import (
	"testing"
	"time"

	"cosmossdk.io/log"
	sdkmath "cosmossdk.io/math"
	storemetrics "cosmossdk.io/store/metrics"
	"cosmossdk.io/store/rootmulti"
	storetypes "cosmossdk.io/store/types"
	tmproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/runtime"
	"github.com/cosmos/cosmos-sdk/std"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/dcrypto25/Echo/x/reserve/keeper"
	"github.com/dcrypto25/Echo/x/reserve/types"
)

const testAuthority = "echo1gov"

func setupKeeper(t *testing.T) (keeper.Keeper, sdk.Context) {
	t.Helper()

	storeKey := storetypes.NewKVStoreKey(types.StoreKey)
	db := dbm.NewMemDB()
	cms := rootmulti.NewStore(db, log.NewNopLogger(), storemetrics.NoOpMetrics{})
	cms.MountStoreWithDB(storeKey, storetypes.StoreTypeIAVL, nil)
	require.NoError(t, cms.LoadLatestVersion())

	header := tmproto.Header{
		ChainID: "echo-test-1",
		Height:  100,
		Time:    time.Unix(1_770_100_000, 0).UTC(),
	}
	ctx := sdk.NewContext(cms, header, false, log.NewNopLogger())

	reg := codectypes.NewInterfaceRegistry()
	std.RegisterInterfaces(reg)
	cdc := codec.NewProtoCodec(reg)

	k := keeper.NewKeeper(
		cdc,
		runtime.NewKVStoreService(storeKey),
		log.NewNopLogger(),
		testAuthority,
	)

	return k, ctx
}

// setupEngine initializes genesis state on top of a fresh keeper.
func setupEngine(t *testing.T) (keeper.Keeper, sdk.Context) {
	t.Helper()
	k, ctx := setupKeeper(t)
	require.NoError(t, k.InitGenesis(ctx, types.DefaultGenesis()))
	return k, ctx
}

// wad converts whole tokens (or dollars) to the 1e18 fixed-point scale.
func wad(n int64) sdkmath.Int {
	return sdkmath.NewInt(n).Mul(types.WadScale)
}

// buyTokens funds an account through the bonding curve.
func buyTokens(t *testing.T, k keeper.Keeper, ctx sdk.Context, buyer string, payment sdkmath.Int) types.BuyResult {
	t.Helper()
	res, err := k.MsgBuy(ctx, types.MsgBuy{Buyer: buyer, Payment: payment})
	require.NoError(t, err)
	return res
}

// setBackingBps deposits stable reserves until the backing ratio reports the
// target, computed against current circulating supply.
func setBackingBps(t *testing.T, k keeper.Keeper, ctx sdk.Context, targetBps int64) {
	t.Helper()
	params, err := k.GetParams(ctx)
	require.NoError(t, err)
	supply, err := k.GetSupply(ctx)
	require.NoError(t, err)

	circValue := supply.Circulating().Mul(params.ReferencePrice).Quo(types.WadScale)
	target := circValue.MulRaw(targetBps).QuoRaw(types.BpsBase)
	current, err := k.TotalTreasuryValue(ctx, params.ReferencePrice)
	require.NoError(t, err)
	require.True(t, target.GTE(current), "cannot lower backing by depositing")

	if diff := target.Sub(current); diff.IsPositive() {
		require.NoError(t, k.Deposit(ctx, types.AssetStable, diff))
	}

	backing, err := k.GetBackingRatio(ctx)
	require.NoError(t, err)
	require.InDelta(t, targetBps, backing, 1)
}

func TestInitGenesis_SeedsCurveCustody(t *testing.T) {
	k, ctx := setupEngine(t)

	supply, err := k.GetSupply(ctx)
	require.NoError(t, err)
	params, err := k.GetParams(ctx)
	require.NoError(t, err)

	require.True(t, supply.TotalMinted.Equal(params.CurveCap))
	require.True(t, supply.TreasuryHeld.Equal(params.CurveCap))
	require.True(t, supply.Staked.IsZero())
	require.True(t, supply.Circulating().IsZero())
}

func TestInitGenesis_RejectsInvalidState(t *testing.T) {
	k, ctx := setupKeeper(t)

	genesis := types.DefaultGenesis()
	genesis.LaunchSupply = genesis.Params.CurveCap.SubRaw(1)
	require.Error(t, k.InitGenesis(ctx, genesis))
}

func TestExportGenesis_RoundTripsAtLaunch(t *testing.T) {
	k, ctx := setupEngine(t)

	exported, err := k.ExportGenesis(ctx)
	require.NoError(t, err)
	require.True(t, exported.LaunchSupply.Equal(types.DefaultGenesis().LaunchSupply))
}

func TestExportGenesis_ReconstructsAfterActivity(t *testing.T) {
	k, ctx := setupEngine(t)

	buyTokens(t, k, ctx, "echo1alice", wad(100))
	require.NoError(t, k.MsgStake(ctx, types.MsgStake{Account: "echo1alice", Amount: wad(1000)}))
	require.NoError(t, k.MsgTransfer(ctx, types.MsgTransfer{
		From: "echo1alice", To: "echo1bob", Amount: wad(500),
	}))

	exported, err := k.ExportGenesis(ctx)
	require.NoError(t, err)
	require.True(t, exported.LaunchSupply.Equal(types.DefaultGenesis().LaunchSupply),
		"launch supply should be recoverable from custody, retained tokens and curve sales")
}

func TestSetParams_RequiresAuthority(t *testing.T) {
	k, ctx := setupEngine(t)

	params, err := k.GetParams(ctx)
	require.NoError(t, err)
	params.BaseTaxBps = 500

	require.Error(t, k.SetParams(ctx, "echo1mallory", params))
	require.NoError(t, k.SetParams(ctx, testAuthority, params))

	reloaded, err := k.GetParams(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(500), reloaded.BaseTaxBps)
}

func TestGetParams_FailsBeforeGenesis(t *testing.T) {
	k, ctx := setupKeeper(t)

	_, err := k.GetParams(ctx)
	require.Error(t, err)
}
