package keeper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cosmossdk.io/collections"
	"cosmossdk.io/core/store"
	"cosmossdk.io/log"
	sdkmath "cosmossdk.io/math"
	"github.com/cosmos/cosmos-sdk/codec"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dcrypto25/Echo/x/reserve/types"
)

// Keeper is the reserve economic engine: bonding-curve issuance, treasury
// accounting, the rebase/staking engine, the unstake cooldown state machine
// and the referral distributor.
//
// All mutating operations run under a single sdk.Context per block, which
// serializes read-modify-write sequences over the shared treasury, supply,
// curve and queue state. Failed operations write nothing: every command
// loads state, validates fully, and only then persists.
type Keeper struct {
	cdc          codec.Codec
	storeService store.KVStoreService
	logger       log.Logger
	authority    string

	Params    collections.Item[string]
	Assets    collections.Map[string, string]
	Supply    collections.Item[string]
	Curve     collections.Item[string]
	Rebase    collections.Item[string]
	Positions collections.Map[string, string]
	Requests  collections.Map[string, string]
	Queue     collections.Item[string]
	Referrals collections.Map[string, string]
	Balances  collections.Map[string, string]
	Bonds     collections.Map[string, string]

	math *SafeMath
}

// NewKeeper creates a new reserve keeper.
func NewKeeper(
	cdc codec.Codec,
	storeService store.KVStoreService,
	logger log.Logger,
	authority string,
) Keeper {
	sb := collections.NewSchemaBuilder(storeService)

	return Keeper{
		cdc:          cdc,
		storeService: storeService,
		logger:       logger.With("module", "x/"+types.ModuleName),
		authority:    authority,
		Params: collections.NewItem(
			sb,
			collections.NewPrefix(types.ParamsKey),
			"params",
			collections.StringValue,
		),
		Assets: collections.NewMap(
			sb,
			collections.NewPrefix(types.AssetKeyPrefix),
			"assets",
			collections.StringKey,
			collections.StringValue,
		),
		Supply: collections.NewItem(
			sb,
			collections.NewPrefix(types.SupplyKey),
			"supply",
			collections.StringValue,
		),
		Curve: collections.NewItem(
			sb,
			collections.NewPrefix(types.CurveStateKey),
			"curve_state",
			collections.StringValue,
		),
		Rebase: collections.NewItem(
			sb,
			collections.NewPrefix(types.RebaseStateKey),
			"rebase_state",
			collections.StringValue,
		),
		Positions: collections.NewMap(
			sb,
			collections.NewPrefix(types.PositionKeyPrefix),
			"positions",
			collections.StringKey,
			collections.StringValue,
		),
		Requests: collections.NewMap(
			sb,
			collections.NewPrefix(types.UnstakeRequestKeyPrefix),
			"unstake_requests",
			collections.StringKey,
			collections.StringValue,
		),
		Queue: collections.NewItem(
			sb,
			collections.NewPrefix(types.RedemptionQueueKey),
			"redemption_queue",
			collections.StringValue,
		),
		Referrals: collections.NewMap(
			sb,
			collections.NewPrefix(types.ReferralNodeKeyPrefix),
			"referral_nodes",
			collections.StringKey,
			collections.StringValue,
		),
		Balances: collections.NewMap(
			sb,
			collections.NewPrefix(types.BalanceKeyPrefix),
			"balances",
			collections.StringKey,
			collections.StringValue,
		),
		Bonds: collections.NewMap(
			sb,
			collections.NewPrefix(types.BondKeyPrefix),
			"bonds",
			collections.StringKey,
			collections.StringValue,
		),
		math: NewSafeMath(),
	}
}

// GetAuthority returns the keeper authority address.
func (k Keeper) GetAuthority() string {
	return k.authority
}

// Logger returns the module logger.
func (k Keeper) Logger() log.Logger {
	return k.logger
}

// GetParams loads the engine parameter set.
func (k Keeper) GetParams(ctx context.Context) (types.Params, error) {
	raw, err := k.Params.Get(ctx)
	if err != nil {
		return types.Params{}, fmt.Errorf("engine params are not initialized")
	}
	var params types.Params
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return types.Params{}, fmt.Errorf("decode params: %w", err)
	}
	return params, nil
}

// SetParams validates and stores the parameter set. Only the authority may
// update live parameters.
func (k Keeper) SetParams(ctx context.Context, requester string, params types.Params) error {
	if strings.TrimSpace(requester) != strings.TrimSpace(k.authority) {
		return fmt.Errorf("unauthorized params update")
	}
	if err := params.Validate(); err != nil {
		return err
	}
	return k.setParams(ctx, params)
}

func (k Keeper) setParams(ctx context.Context, params types.Params) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return k.Params.Set(ctx, string(raw))
}

// ---------------------------------------------------------------------------
// State accessors. Collections hold JSON payloads keyed by account or asset
// kind; each record type gets a typed load/store pair.
// ---------------------------------------------------------------------------

// GetSupply loads the supply counters, zeroed when unset.
func (k Keeper) GetSupply(ctx context.Context) (types.SupplyState, error) {
	raw, err := k.Supply.Get(ctx)
	if err != nil {
		return types.SupplyState{
			TotalMinted:  sdkmath.ZeroInt(),
			Burned:       sdkmath.ZeroInt(),
			Staked:       sdkmath.ZeroInt(),
			TreasuryHeld: sdkmath.ZeroInt(),
		}, nil
	}
	var supply types.SupplyState
	if err := json.Unmarshal([]byte(raw), &supply); err != nil {
		return types.SupplyState{}, fmt.Errorf("decode supply state: %w", err)
	}
	return supply, nil
}

func (k Keeper) setSupply(ctx context.Context, supply types.SupplyState) error {
	if err := supply.Validate(); err != nil {
		return fmt.Errorf("refusing to persist inconsistent supply: %w", err)
	}
	raw, err := json.Marshal(supply)
	if err != nil {
		return err
	}
	return k.Supply.Set(ctx, string(raw))
}

// GetCurveState loads cumulative curve sales, zeroed when unset.
func (k Keeper) GetCurveState(ctx context.Context) (types.CurveState, error) {
	raw, err := k.Curve.Get(ctx)
	if err != nil {
		return types.CurveState{
			UnitsSold:         sdkmath.ZeroInt(),
			ProceedsDeposited: sdkmath.ZeroInt(),
		}, nil
	}
	var state types.CurveState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return types.CurveState{}, fmt.Errorf("decode curve state: %w", err)
	}
	return state, nil
}

func (k Keeper) setCurveState(ctx context.Context, state types.CurveState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return k.Curve.Set(ctx, string(raw))
}

// GetRebaseState loads the global index state; a fresh engine starts at unit
// index, epoch zero.
func (k Keeper) GetRebaseState(ctx context.Context) (types.RebaseState, error) {
	raw, err := k.Rebase.Get(ctx)
	if err != nil {
		return types.RebaseState{
			Index:       types.WadScale,
			Epoch:       0,
			TotalShares: sdkmath.ZeroInt(),
			LastApyBps:  0,
		}, nil
	}
	var state types.RebaseState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return types.RebaseState{}, fmt.Errorf("decode rebase state: %w", err)
	}
	return state, nil
}

func (k Keeper) setRebaseState(ctx context.Context, state types.RebaseState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return k.Rebase.Set(ctx, string(raw))
}

// CurrentEpoch returns the rebase epoch counter.
func (k Keeper) CurrentEpoch(ctx context.Context) int64 {
	state, err := k.GetRebaseState(ctx)
	if err != nil {
		return 0
	}
	return state.Epoch
}

// GetPosition loads an account's stake position.
func (k Keeper) GetPosition(ctx context.Context, account string) (types.StakePosition, bool, error) {
	raw, err := k.Positions.Get(ctx, account)
	if err != nil {
		return types.StakePosition{}, false, nil
	}
	var pos types.StakePosition
	if err := json.Unmarshal([]byte(raw), &pos); err != nil {
		return types.StakePosition{}, false, fmt.Errorf("decode position for %s: %w", account, err)
	}
	return pos, true, nil
}

func (k Keeper) setPosition(ctx context.Context, pos types.StakePosition) error {
	raw, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	return k.Positions.Set(ctx, pos.Account, string(raw))
}

func (k Keeper) removePosition(ctx context.Context, account string) error {
	return k.Positions.Remove(ctx, account)
}

// GetUnstakeRequest loads the account's outstanding request, if any.
func (k Keeper) GetUnstakeRequest(ctx context.Context, account string) (types.UnstakeRequest, bool, error) {
	raw, err := k.Requests.Get(ctx, account)
	if err != nil {
		return types.UnstakeRequest{}, false, nil
	}
	var req types.UnstakeRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return types.UnstakeRequest{}, false, fmt.Errorf("decode unstake request for %s: %w", account, err)
	}
	return req, true, nil
}

func (k Keeper) setUnstakeRequest(ctx context.Context, req types.UnstakeRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return k.Requests.Set(ctx, req.Account, string(raw))
}

// GetRedemptionQueue loads the daily window counters, zeroed when unset.
func (k Keeper) GetRedemptionQueue(ctx context.Context) (types.RedemptionQueue, error) {
	raw, err := k.Queue.Get(ctx)
	if err != nil {
		return types.RedemptionQueue{
			DailyCapacityRemaining: sdkmath.ZeroInt(),
			WindowStartEpoch:       -1,
		}, nil
	}
	var queue types.RedemptionQueue
	if err := json.Unmarshal([]byte(raw), &queue); err != nil {
		return types.RedemptionQueue{}, fmt.Errorf("decode redemption queue: %w", err)
	}
	return queue, nil
}

func (k Keeper) setRedemptionQueue(ctx context.Context, queue types.RedemptionQueue) error {
	raw, err := json.Marshal(queue)
	if err != nil {
		return err
	}
	return k.Queue.Set(ctx, string(raw))
}

// GetReferralNode loads an account's referral node.
func (k Keeper) GetReferralNode(ctx context.Context, account string) (types.ReferralNode, bool, error) {
	raw, err := k.Referrals.Get(ctx, account)
	if err != nil {
		return types.ReferralNode{}, false, nil
	}
	var node types.ReferralNode
	if err := json.Unmarshal([]byte(raw), &node); err != nil {
		return types.ReferralNode{}, false, fmt.Errorf("decode referral node for %s: %w", account, err)
	}
	return node, true, nil
}

func (k Keeper) setReferralNode(ctx context.Context, node types.ReferralNode) error {
	raw, err := json.Marshal(node)
	if err != nil {
		return err
	}
	return k.Referrals.Set(ctx, node.Account, string(raw))
}

// GetBalance returns the account's unstaked circulating balance.
func (k Keeper) GetBalance(ctx context.Context, account string) (sdkmath.Int, error) {
	raw, err := k.Balances.Get(ctx, account)
	if err != nil {
		return sdkmath.ZeroInt(), nil
	}
	var balance sdkmath.Int
	if err := json.Unmarshal([]byte(raw), &balance); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("decode balance for %s: %w", account, err)
	}
	return balance, nil
}

func (k Keeper) setBalance(ctx context.Context, account string, balance sdkmath.Int) error {
	if balance.IsNegative() {
		return fmt.Errorf("refusing to persist negative balance for %s: %w", account, types.ErrUnderflow)
	}
	raw, err := json.Marshal(balance)
	if err != nil {
		return err
	}
	return k.Balances.Set(ctx, account, string(raw))
}

func (k Keeper) addBalance(ctx context.Context, account string, delta sdkmath.Int) error {
	balance, err := k.GetBalance(ctx, account)
	if err != nil {
		return err
	}
	return k.setBalance(ctx, account, balance.Add(delta))
}

func (k Keeper) subBalance(ctx context.Context, account string, delta sdkmath.Int) error {
	balance, err := k.GetBalance(ctx, account)
	if err != nil {
		return err
	}
	if balance.LT(delta) {
		return fmt.Errorf("account %s holds %s, needs %s: %w",
			account, balance, delta, types.ErrInsufficientBalance)
	}
	return k.setBalance(ctx, account, balance.Sub(delta))
}

// ---------------------------------------------------------------------------
// Context helpers, shared by all operations.
// ---------------------------------------------------------------------------

func unwrapSDKContext(ctx context.Context) (sdk.Context, bool) {
	if ctx == nil {
		return sdk.Context{}, false
	}
	if sdkCtx, ok := ctx.(sdk.Context); ok {
		return sdkCtx, true
	}
	if val := ctx.Value(sdk.SdkContextKey); val != nil {
		if sdkCtx, ok := val.(sdk.Context); ok {
			return sdkCtx, true
		}
	}
	return sdk.Context{}, false
}

func contextNow(ctx context.Context) (sdk.Context, time.Time) {
	if sdkCtx, ok := unwrapSDKContext(ctx); ok {
		return sdkCtx, sdkCtx.BlockTime()
	}
	return sdk.Context{}, time.Now().UTC()
}

func emitEventIfPossible(ctx sdk.Context, event sdk.Event) {
	if em := ctx.EventManager(); em != nil {
		em.EmitEvent(event)
	}
}
