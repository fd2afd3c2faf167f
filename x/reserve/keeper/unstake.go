package keeper

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dcrypto25/Echo/x/reserve/types"
)

// ---------------------------------------------------------------------------
// UNSTAKE PENALTY AND COOLDOWN
// ---------------------------------------------------------------------------
//
// Exits are throttled by three mechanisms sized off the backing ratio at
// request time: a quadratic penalty on the amount, a linear cooldown before
// execution, and a daily redemption window capping aggregate exits. Penalty
// and cooldown are snapshotted when the request is made; later backing moves
// never change an in-flight request.
// ---------------------------------------------------------------------------

// penaltyBpsForBacking evaluates the quadratic exit penalty. Above the
// threshold exits are free; below it the penalty grows with the square of the
// deficit, reaching MaxPenaltyBps when backing hits threshold - range.
func penaltyBpsForBacking(params types.Params, backingBps int64) int64 {
	deficit := params.PenaltyThresholdBps - backingBps
	if deficit <= 0 {
		return 0
	}
	if deficit > params.PenaltyRangeBps {
		deficit = params.PenaltyRangeBps
	}
	return params.MaxPenaltyBps * deficit / params.PenaltyRangeBps * deficit / params.PenaltyRangeBps
}

// cooldownDaysForBacking interpolates the cooldown linearly between the
// configured band over the same deficit range as the penalty.
func cooldownDaysForBacking(params types.Params, backingBps int64) int64 {
	deficit := params.PenaltyThresholdBps - backingBps
	if deficit <= 0 {
		return params.CooldownMinDays
	}
	if deficit > params.PenaltyRangeBps {
		deficit = params.PenaltyRangeBps
	}
	span := params.CooldownMaxDays - params.CooldownMinDays
	return params.CooldownMinDays + span*deficit/params.PenaltyRangeBps
}

// CalculateUnstakePenalty quotes the penalty and cooldown an unstake request
// would snapshot at the current backing ratio, without writing state.
func (k Keeper) CalculateUnstakePenalty(ctx context.Context, amount sdkmath.Int) (types.PenaltyQuote, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return types.PenaltyQuote{}, fmt.Errorf("quote amount %s: %w", amount, types.ErrInvalidAmount)
	}
	params, err := k.GetParams(ctx)
	if err != nil {
		return types.PenaltyQuote{}, err
	}
	supply, err := k.GetSupply(ctx)
	if err != nil {
		return types.PenaltyQuote{}, err
	}
	backing, err := k.BackingRatioBps(ctx, supply.Circulating(), params.ReferencePrice)
	if err != nil {
		return types.PenaltyQuote{}, err
	}

	bps := penaltyBpsForBacking(params, backing)
	penalty, err := k.math.SafeBpsMultiply(amount, bps)
	if err != nil {
		return types.PenaltyQuote{}, err
	}
	return types.PenaltyQuote{
		PenaltyBps:    bps,
		PenaltyAmount: penalty,
		CooldownDays:  cooldownDaysForBacking(params, backing),
	}, nil
}

// MsgRequestUnstake moves part of a staking position into cooldown. The
// amount stops earning immediately. A new request supersedes any pending one:
// the prior amount is restored to the position first and the full request is
// re-quoted at current conditions.
func (k Keeper) MsgRequestUnstake(ctx context.Context, msg types.MsgRequestUnstake) (types.UnstakeRequest, error) {
	if err := msg.ValidateBasic(); err != nil {
		return types.UnstakeRequest{}, err
	}

	params, err := k.GetParams(ctx)
	if err != nil {
		return types.UnstakeRequest{}, err
	}
	pos, rebase, err := k.touchPosition(ctx, msg.Account)
	if err != nil {
		return types.UnstakeRequest{}, err
	}

	prior, hadPrior, err := k.GetUnstakeRequest(ctx, msg.Account)
	if err != nil {
		return types.UnstakeRequest{}, err
	}
	if hadPrior {
		pos, rebase, err = k.restoreToPosition(pos, rebase, prior.Amount)
		if err != nil {
			return types.UnstakeRequest{}, err
		}
	}

	if pos.Principal.LT(msg.Amount) {
		return types.UnstakeRequest{}, fmt.Errorf("principal %s below requested %s: %w",
			pos.Principal, msg.Amount, types.ErrInsufficientBalance)
	}

	supply, err := k.GetSupply(ctx)
	if err != nil {
		return types.UnstakeRequest{}, err
	}
	backing, err := k.BackingRatioBps(ctx, supply.Circulating(), params.ReferencePrice)
	if err != nil {
		return types.UnstakeRequest{}, err
	}

	removedShares, err := k.math.SafeMulDiv(msg.Amount, types.WadScale, rebase.Index)
	if err != nil {
		return types.UnstakeRequest{}, err
	}
	pos.Principal = pos.Principal.Sub(msg.Amount)
	rebase.TotalShares = rebase.TotalShares.Sub(removedShares)
	if rebase.TotalShares.IsNegative() {
		rebase.TotalShares = sdkmath.ZeroInt()
	}

	cooldownEpochs := cooldownDaysForBacking(params, backing) * params.TicksPerDay
	request := types.UnstakeRequest{
		Account:          msg.Account,
		Amount:           msg.Amount,
		RequestEpoch:     rebase.Epoch,
		CooldownEndEpoch: rebase.Epoch + cooldownEpochs,
		PenaltyBps:       penaltyBpsForBacking(params, backing),
	}

	if err := k.persistTouch(ctx, pos, rebase); err != nil {
		return types.UnstakeRequest{}, err
	}
	if err := k.setUnstakeRequest(ctx, request); err != nil {
		return types.UnstakeRequest{}, err
	}

	sdkCtx, _ := contextNow(ctx)
	emitEventIfPossible(sdkCtx, sdk.NewEvent(
		"reserve_unstake_requested",
		sdk.NewAttribute("account", msg.Account),
		sdk.NewAttribute("amount", msg.Amount.String()),
		sdk.NewAttribute("penalty_bps", fmt.Sprintf("%d", request.PenaltyBps)),
		sdk.NewAttribute("cooldown_end_epoch", fmt.Sprintf("%d", request.CooldownEndEpoch)),
		sdk.NewAttribute("superseded", fmt.Sprintf("%t", hadPrior)),
	))
	return request, nil
}

// MsgExecuteUnstake settles a matured request. The snapshotted penalty is
// retained by the treasury as protocol-token holdings; the remainder returns
// to the account's liquid balance. Execution draws from the daily redemption
// window and fails without consuming the request when the window is empty.
func (k Keeper) MsgExecuteUnstake(ctx context.Context, msg types.MsgExecuteUnstake) (types.UnstakeResult, error) {
	if err := msg.ValidateBasic(); err != nil {
		return types.UnstakeResult{}, err
	}

	request, found, err := k.GetUnstakeRequest(ctx, msg.Account)
	if err != nil {
		return types.UnstakeResult{}, err
	}
	if !found {
		return types.UnstakeResult{}, fmt.Errorf("account %s: %w", msg.Account, types.ErrNoUnstakeRequest)
	}

	rebase, err := k.GetRebaseState(ctx)
	if err != nil {
		return types.UnstakeResult{}, err
	}
	if rebase.Epoch < request.CooldownEndEpoch {
		return types.UnstakeResult{}, fmt.Errorf("epoch %d, matures at %d: %w",
			rebase.Epoch, request.CooldownEndEpoch, types.ErrCooldownNotElapsed)
	}

	if err := k.drawRedemptionWindow(ctx, rebase.Epoch, request.Amount); err != nil {
		return types.UnstakeResult{}, err
	}

	penalty, err := k.math.SafeBpsMultiply(request.Amount, request.PenaltyBps)
	if err != nil {
		return types.UnstakeResult{}, err
	}
	net := request.Amount.Sub(penalty)

	supply, err := k.GetSupply(ctx)
	if err != nil {
		return types.UnstakeResult{}, err
	}
	supply.Staked, err = k.math.SafeSub(supply.Staked, request.Amount)
	if err != nil {
		return types.UnstakeResult{}, err
	}
	if penalty.IsPositive() {
		// Penalty tokens move to treasury custody rather than being burned,
		// backing the remaining supply.
		supply.TreasuryHeld = supply.TreasuryHeld.Add(penalty)
		if err := k.Deposit(ctx, types.AssetProtocolToken, penalty); err != nil {
			return types.UnstakeResult{}, err
		}
	}
	if err := k.setSupply(ctx, supply); err != nil {
		return types.UnstakeResult{}, err
	}
	if err := k.addBalance(ctx, msg.Account, net); err != nil {
		return types.UnstakeResult{}, err
	}
	if err := k.Requests.Remove(ctx, msg.Account); err != nil {
		return types.UnstakeResult{}, err
	}

	// A fully drained position has nothing left to track.
	pos, posFound, err := k.GetPosition(ctx, msg.Account)
	if err != nil {
		return types.UnstakeResult{}, err
	}
	if posFound && pos.Principal.IsZero() && pos.PendingRewards.IsZero() {
		if err := k.removePosition(ctx, msg.Account); err != nil {
			return types.UnstakeResult{}, err
		}
	}

	sdkCtx, _ := contextNow(ctx)
	emitEventIfPossible(sdkCtx, sdk.NewEvent(
		"reserve_unstake_executed",
		sdk.NewAttribute("account", msg.Account),
		sdk.NewAttribute("gross", request.Amount.String()),
		sdk.NewAttribute("penalty", penalty.String()),
		sdk.NewAttribute("net", net.String()),
	))
	return types.UnstakeResult{
		GrossAmount:   request.Amount,
		PenaltyAmount: penalty,
		NetAmount:     net,
	}, nil
}

// MsgCancelUnstake abandons a pending request and restores the amount to the
// staking position at the current index. Growth that would have accrued
// during the cooldown is forfeited.
func (k Keeper) MsgCancelUnstake(ctx context.Context, msg types.MsgCancelUnstake) error {
	if err := msg.ValidateBasic(); err != nil {
		return err
	}

	request, found, err := k.GetUnstakeRequest(ctx, msg.Account)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("account %s: %w", msg.Account, types.ErrNoUnstakeRequest)
	}

	pos, rebase, err := k.touchPosition(ctx, msg.Account)
	if err != nil {
		return err
	}
	pos, rebase, err = k.restoreToPosition(pos, rebase, request.Amount)
	if err != nil {
		return err
	}

	if err := k.persistTouch(ctx, pos, rebase); err != nil {
		return err
	}
	if err := k.Requests.Remove(ctx, msg.Account); err != nil {
		return err
	}

	sdkCtx, _ := contextNow(ctx)
	emitEventIfPossible(sdkCtx, sdk.NewEvent(
		"reserve_unstake_cancelled",
		sdk.NewAttribute("account", msg.Account),
		sdk.NewAttribute("amount", request.Amount.String()),
	))
	return nil
}

// restoreToPosition returns a cooldown amount to earning status at the
// current index.
func (k Keeper) restoreToPosition(
	pos types.StakePosition, rebase types.RebaseState, amount sdkmath.Int,
) (types.StakePosition, types.RebaseState, error) {
	shares, err := k.math.SafeMulDiv(amount, types.WadScale, rebase.Index)
	if err != nil {
		return pos, rebase, err
	}
	pos.Principal = pos.Principal.Add(amount)
	rebase.TotalShares = rebase.TotalShares.Add(shares)
	return pos, rebase, nil
}

// drawRedemptionWindow consumes daily redemption capacity, resetting the
// window when the epoch has rolled into a new day. Capacity is sized off
// circulating supply at reset time.
func (k Keeper) drawRedemptionWindow(ctx context.Context, epoch int64, amount sdkmath.Int) error {
	params, err := k.GetParams(ctx)
	if err != nil {
		return err
	}
	queue, err := k.GetRedemptionQueue(ctx)
	if err != nil {
		return err
	}

	windowStart := epoch - epoch%params.TicksPerDay
	if queue.WindowStartEpoch != windowStart {
		supply, err := k.GetSupply(ctx)
		if err != nil {
			return err
		}
		capacity, err := k.math.SafeBpsMultiply(supply.Circulating(), params.DailyRedemptionCapBps)
		if err != nil {
			return err
		}
		queue = types.RedemptionQueue{
			DailyCapacityRemaining: capacity,
			WindowStartEpoch:       windowStart,
		}
	}

	if queue.DailyCapacityRemaining.LT(amount) {
		return fmt.Errorf("window has %s remaining, need %s: %w",
			queue.DailyCapacityRemaining, amount, types.ErrQueueCapacityExceeded)
	}
	queue.DailyCapacityRemaining = queue.DailyCapacityRemaining.Sub(amount)
	return k.setRedemptionQueue(ctx, queue)
}
