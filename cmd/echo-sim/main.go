package main

import (
	"fmt"
	"math/rand"
	"os"
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
	"github.com/spf13/cobra"

	"github.com/dcrypto25/Echo/x/reserve/keeper"
	"github.com/dcrypto25/Echo/x/reserve/types"
)

const simAuthority = "echo1sim-authority"

type simConfig struct {
	Epochs      int64
	Accounts    int
	Seed        int64
	MaxBuy      int64 // dollars per purchase
	StableDrift int64 // max stable deposit per day, dollars
}

func main() {
	cfg := simConfig{}

	rootCmd := &cobra.Command{
		Use:   "echo-sim",
		Short: "Run a randomized ECHO reserve-engine simulation against an in-memory store",
		Long: `echo-sim drives the full reserve engine (bonding curve, treasury,
rebase staking, unstake cooldowns, referrals) with randomized traffic and
prints protocol health per epoch: spot price, backing ratio, APY, runway
and supply composition. State lives in a memdb; nothing touches disk.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Epochs < 1 {
				return fmt.Errorf("--epochs must be >= 1")
			}
			if cfg.Accounts < 2 {
				return fmt.Errorf("--accounts must be >= 2")
			}
			return runSimulation(cfg)
		},
	}

	rootCmd.Flags().Int64Var(&cfg.Epochs, "epochs", 90, "Rebase epochs to simulate (3 per day)")
	rootCmd.Flags().IntVar(&cfg.Accounts, "accounts", 25, "Number of simulated accounts")
	rootCmd.Flags().Int64Var(&cfg.Seed, "seed", time.Now().UnixNano(), "PRNG seed for reproducible runs")
	rootCmd.Flags().Int64Var(&cfg.MaxBuy, "max-buy", 500, "Largest single purchase in dollars")
	rootCmd.Flags().Int64Var(&cfg.StableDrift, "stable-drift", 2000, "Max daily stable-reserve inflow in dollars")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "simulation failed: %v\n", err)
		os.Exit(1)
	}
}

func newSimKeeper(logger log.Logger) (keeper.Keeper, sdk.Context, error) {
	storeKey := storetypes.NewKVStoreKey(types.StoreKey)
	db := dbm.NewMemDB()
	cms := rootmulti.NewStore(db, log.NewNopLogger(), storemetrics.NoOpMetrics{})
	cms.MountStoreWithDB(storeKey, storetypes.StoreTypeIAVL, nil)
	if err := cms.LoadLatestVersion(); err != nil {
		return keeper.Keeper{}, sdk.Context{}, err
	}

	header := tmproto.Header{
		ChainID: "echo-sim-1",
		Height:  1,
		Time:    time.Now().UTC(),
	}
	ctx := sdk.NewContext(cms, header, false, log.NewNopLogger())

	reg := codectypes.NewInterfaceRegistry()
	std.RegisterInterfaces(reg)
	cdc := codec.NewProtoCodec(reg)

	k := keeper.NewKeeper(cdc, runtime.NewKVStoreService(storeKey), logger, simAuthority)
	return k, ctx, nil
}

func runSimulation(cfg simConfig) error {
	logger := log.NewLogger(os.Stdout)
	rng := rand.New(rand.NewSource(cfg.Seed))

	k, ctx, err := newSimKeeper(logger)
	if err != nil {
		return err
	}
	if err := k.InitGenesis(ctx, types.DefaultGenesis()); err != nil {
		return err
	}

	accounts := make([]string, cfg.Accounts)
	for i := range accounts {
		accounts[i] = fmt.Sprintf("echo1sim%03d", i)
	}

	logger.Info("simulation starting",
		"epochs", cfg.Epochs, "accounts", cfg.Accounts, "seed", cfg.Seed)

	for epoch := int64(0); epoch < cfg.Epochs; epoch++ {
		simulateTraffic(k, ctx, rng, accounts, cfg)

		if err := k.MsgRebaseTick(ctx, types.MsgRebaseTick{Authority: simAuthority}); err != nil {
			return fmt.Errorf("epoch %d tick: %w", epoch, err)
		}
		if err := reportHealth(k, ctx, logger, epoch); err != nil {
			return err
		}
	}

	logger.Info("simulation complete")
	return nil
}

func simulateTraffic(k keeper.Keeper, ctx sdk.Context, rng *rand.Rand, accounts []string, cfg simConfig) {
	// A few purchases per epoch; each failure (sold-out curve, dust amounts)
	// is a legitimate protocol answer, not a simulation error.
	for i := 0; i < 1+rng.Intn(4); i++ {
		buyer := accounts[rng.Intn(len(accounts))]
		payment := dollars(1 + rng.Int63n(cfg.MaxBuy))
		_, _ = k.MsgBuy(ctx, types.MsgBuy{Buyer: buyer, Payment: payment})
	}

	// Stake roughly half of a random account's balance, sometimes under a
	// random sponsor.
	for i := 0; i < 1+rng.Intn(3); i++ {
		account := accounts[rng.Intn(len(accounts))]
		balance, err := k.GetBalance(ctx, account)
		if err != nil || balance.IsZero() {
			continue
		}
		sponsor := ""
		if rng.Intn(3) == 0 {
			sponsor = accounts[rng.Intn(len(accounts))]
			if sponsor == account {
				sponsor = ""
			}
		}
		_ = k.MsgStake(ctx, types.MsgStake{
			Account: account,
			Amount:  balance.QuoRaw(2).AddRaw(1),
			Sponsor: sponsor,
		})
	}

	// Occasional exits: request, execute matured ones, rarely cancel.
	if rng.Intn(3) == 0 {
		account := accounts[rng.Intn(len(accounts))]
		staked, err := k.GetStakedBalance(ctx, account)
		if err == nil && staked.IsPositive() {
			_, _ = k.MsgRequestUnstake(ctx, types.MsgRequestUnstake{
				Account: account,
				Amount:  staked.QuoRaw(4).AddRaw(1),
			})
		}
	}
	for _, account := range accounts {
		if _, found, _ := k.GetUnstakeStatus(ctx, account); !found {
			continue
		}
		if rng.Intn(10) == 0 {
			_ = k.MsgCancelUnstake(ctx, types.MsgCancelUnstake{Account: account})
			continue
		}
		_, _ = k.MsgExecuteUnstake(ctx, types.MsgExecuteUnstake{Account: account})
	}

	// Reward handling: claim or compound.
	account := accounts[rng.Intn(len(accounts))]
	if rng.Intn(2) == 0 {
		_, _ = k.MsgClaimRewards(ctx, types.MsgClaimRewards{Account: account})
	} else {
		_, _ = k.MsgCompound(ctx, types.MsgCompound{Account: account})
	}

	// Discounted bond purchases, plus claims as vesting matures.
	if rng.Intn(4) == 0 {
		bonder := accounts[rng.Intn(len(accounts))]
		_, _ = k.MsgPurchaseBond(ctx, types.MsgPurchaseBond{
			Account: bonder,
			Payment: dollars(1 + rng.Int63n(cfg.MaxBuy)),
		})
	}
	for _, acct := range accounts {
		if claimable, err := k.ClaimableBond(ctx, acct); err == nil && claimable.IsPositive() {
			_, _ = k.MsgClaimBond(ctx, types.MsgClaimBond{Account: acct})
		}
	}

	// External treasury inflows (yield accrual, donations) arrive on a
	// daily-ish cadence and keep the backing ratio moving.
	if rng.Intn(3) == 0 && cfg.StableDrift > 0 {
		_ = k.Deposit(ctx, types.AssetStable, dollars(rng.Int63n(cfg.StableDrift)+1))
	}
}

func reportHealth(k keeper.Keeper, ctx sdk.Context, logger log.Logger, epoch int64) error {
	price, err := k.CurrentPrice(ctx)
	if err != nil {
		return err
	}
	backing, err := k.GetBackingRatio(ctx)
	if err != nil {
		return err
	}
	state, err := k.GetRebaseState(ctx)
	if err != nil {
		return err
	}
	supply, err := k.GetSupply(ctx)
	if err != nil {
		return err
	}
	sold, err := k.TotalSold(ctx)
	if err != nil {
		return err
	}
	runway, err := k.RunwayDays(ctx, dollars(100))
	if err != nil {
		return err
	}
	buyback, err := k.ShouldExecuteBuyback(ctx)
	if err != nil {
		return err
	}

	logger.Info("epoch health",
		"epoch", epoch,
		"price_usd", formatWad(price),
		"backing_bps", backing,
		"apy_bps", state.LastApyBps,
		"runway_days", runway,
		"sold", formatWad(sold),
		"circulating", formatWad(supply.Circulating()),
		"staked", formatWad(supply.Staked),
		"buyback_recommended", buyback,
	)
	return nil
}

func dollars(n int64) sdkmath.Int {
	return sdkmath.NewInt(n).Mul(types.WadScale)
}

// formatWad renders a 1e18-scaled quantity with six decimal places.
func formatWad(v sdkmath.Int) string {
	micro := v.Quo(sdkmath.NewIntWithDecimal(1, 12))
	return fmt.Sprintf("%s.%06d",
		micro.Quo(sdkmath.NewInt(1_000_000)),
		micro.Mod(sdkmath.NewInt(1_000_000)).Int64())
}
