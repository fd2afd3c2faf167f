package keeper

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dcrypto25/Echo/x/reserve/types"
)

// ---------------------------------------------------------------------------
// REBASE AND STAKING ENGINE
// ---------------------------------------------------------------------------
//
// Staking rewards compound through a global index. A position of principal P
// stamped at index i is worth P*index/i at any later index; the difference is
// folded into PendingRewards whenever the position is touched. The engine
// also tracks total shares (sum of P*1e18/i across positions), so the tokens
// minted by a tick are exactly shares * (newIndex - index) / 1e18 and match
// what positions will later accrue.
// ---------------------------------------------------------------------------

// CurrentApyBps evaluates the backing-dependent emission rate:
// min(MaxApyBps, BaseApyBps * (backing/10000)^2), and zero when backing sits
// below the rebase floor.
func (k Keeper) CurrentApyBps(ctx context.Context) (int64, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return 0, err
	}
	supply, err := k.GetSupply(ctx)
	if err != nil {
		return 0, err
	}
	backing, err := k.BackingRatioBps(ctx, supply.Circulating(), params.ReferencePrice)
	if err != nil {
		return 0, err
	}
	return apyForBacking(params, backing), nil
}

func apyForBacking(params types.Params, backingBps int64) int64 {
	if backingBps < params.MinBackingForRebaseBps {
		return 0
	}
	// big.Int intermediates: extreme backing ratios overflow an int64
	// quadratic and must clamp to the ceiling, not wrap.
	ratio := big.NewInt(backingBps)
	base := big.NewInt(types.BpsBase)
	scaled := big.NewInt(params.BaseApyBps)
	scaled.Mul(scaled, ratio).Quo(scaled, base)
	scaled.Mul(scaled, ratio).Quo(scaled, base)
	if !scaled.IsInt64() || scaled.Int64() > params.MaxApyBps {
		return params.MaxApyBps
	}
	return scaled.Int64()
}

// tickGrowthWad converts an annual rate in bps to the per-tick compounding
// factor (1+apy)^(1/ticksPerYear), 1e18 scaled.
func (k Keeper) tickGrowthWad(apyBps, ticksPerYear int64) (sdkmath.Int, error) {
	annual, err := k.math.SafeBpsMultiply(types.WadScale, apyBps)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return k.math.RootWad(types.WadScale.Add(annual), ticksPerYear)
}

// accruePosition folds growth since the last touch into PendingRewards and
// restamps the position at the current index, adjusting total shares to keep
// the share sum consistent. Returns the updated position and rebase state.
func (k Keeper) accruePosition(
	pos types.StakePosition, rebase types.RebaseState,
) (types.StakePosition, types.RebaseState, error) {
	if pos.IndexAtLastTouch.Equal(rebase.Index) {
		return pos, rebase, nil
	}

	value, err := k.math.SafeMulDiv(pos.Principal, rebase.Index, pos.IndexAtLastTouch)
	if err != nil {
		return pos, rebase, err
	}
	growth := value.Sub(pos.Principal)
	if growth.IsNegative() {
		return pos, rebase, fmt.Errorf("index regressed from %s to %s: %w",
			pos.IndexAtLastTouch, rebase.Index, types.ErrUnderflow)
	}

	sharesBefore, err := k.math.SafeMulDiv(pos.Principal, types.WadScale, pos.IndexAtLastTouch)
	if err != nil {
		return pos, rebase, err
	}
	sharesAfter, err := k.math.SafeMulDiv(pos.Principal, types.WadScale, rebase.Index)
	if err != nil {
		return pos, rebase, err
	}

	pos.PendingRewards = pos.PendingRewards.Add(growth)
	pos.IndexAtLastTouch = rebase.Index
	rebase.TotalShares = rebase.TotalShares.Sub(sharesBefore).Add(sharesAfter)
	if rebase.TotalShares.IsNegative() {
		rebase.TotalShares = sdkmath.ZeroInt()
	}
	return pos, rebase, nil
}

// creditStakedPrincipal grants freshly minted tokens directly as rebasing
// principal on the account's position, creating one at the current index if
// none exists. Referral rewards and vested bond payouts both enter staking
// through here; the caller persists the returned rebase state and adds the
// amount to both TotalMinted and Staked.
func (k Keeper) creditStakedPrincipal(
	ctx context.Context, account string, amount sdkmath.Int, rebase types.RebaseState,
) (types.RebaseState, error) {
	pos, found, err := k.GetPosition(ctx, account)
	if err != nil {
		return rebase, err
	}
	if !found {
		pos = types.NewStakePosition(account, rebase.Index)
	} else {
		pos, rebase, err = k.accruePosition(pos, rebase)
		if err != nil {
			return rebase, err
		}
	}

	shares, err := k.math.SafeMulDiv(amount, types.WadScale, rebase.Index)
	if err != nil {
		return rebase, err
	}
	pos.Principal = pos.Principal.Add(amount)
	rebase.TotalShares = rebase.TotalShares.Add(shares)
	return rebase, k.setPosition(ctx, pos)
}

// MsgStake locks tokens from the account's liquid balance into a staking
// position. A sponsor given on the account's first stake binds the referral
// relationship permanently; the stake amount then pays out along the sponsor
// chain.
func (k Keeper) MsgStake(ctx context.Context, msg types.MsgStake) error {
	if err := msg.ValidateBasic(); err != nil {
		return err
	}

	rebase, err := k.GetRebaseState(ctx)
	if err != nil {
		return err
	}

	pos, found, err := k.GetPosition(ctx, msg.Account)
	if err != nil {
		return err
	}
	if !found {
		pos = types.NewStakePosition(msg.Account, rebase.Index)
	} else {
		pos, rebase, err = k.accruePosition(pos, rebase)
		if err != nil {
			return err
		}
	}

	// Check funds before binding the sponsor: referral links are write-once
	// and must not survive a stake that fails.
	balance, err := k.GetBalance(ctx, msg.Account)
	if err != nil {
		return err
	}
	if balance.LT(msg.Amount) {
		return fmt.Errorf("account %s holds %s, needs %s: %w",
			msg.Account, balance, msg.Amount, types.ErrInsufficientBalance)
	}

	if err := k.bindSponsor(ctx, msg.Account, msg.Sponsor); err != nil {
		return err
	}

	if err := k.subBalance(ctx, msg.Account, msg.Amount); err != nil {
		return err
	}

	supply, err := k.GetSupply(ctx)
	if err != nil {
		return err
	}
	supply.Staked = supply.Staked.Add(msg.Amount)

	newShares, err := k.math.SafeMulDiv(msg.Amount, types.WadScale, rebase.Index)
	if err != nil {
		return err
	}
	pos.Principal = pos.Principal.Add(msg.Amount)
	rebase.TotalShares = rebase.TotalShares.Add(newShares)

	if err := k.setSupply(ctx, supply); err != nil {
		return err
	}
	if err := k.setRebaseState(ctx, rebase); err != nil {
		return err
	}
	if err := k.setPosition(ctx, pos); err != nil {
		return err
	}

	if err := k.distributeReferralRewards(ctx, msg.Account, msg.Amount); err != nil {
		return err
	}

	sdkCtx, _ := contextNow(ctx)
	emitEventIfPossible(sdkCtx, sdk.NewEvent(
		"reserve_stake",
		sdk.NewAttribute("account", msg.Account),
		sdk.NewAttribute("amount", msg.Amount.String()),
		sdk.NewAttribute("principal", pos.Principal.String()),
	))
	return nil
}

// MsgRebaseTick advances the rebase epoch. Only the module authority (in
// practice the end-blocker) may drive the clock. A tick below the backing
// floor still advances the epoch, with zero emission.
func (k Keeper) MsgRebaseTick(ctx context.Context, msg types.MsgRebaseTick) error {
	if err := msg.ValidateBasic(); err != nil {
		return err
	}
	if msg.Authority != k.authority {
		return fmt.Errorf("expected authority %s, got %s", k.authority, msg.Authority)
	}

	params, err := k.GetParams(ctx)
	if err != nil {
		return err
	}
	rebase, err := k.GetRebaseState(ctx)
	if err != nil {
		return err
	}
	supply, err := k.GetSupply(ctx)
	if err != nil {
		return err
	}

	backing, err := k.BackingRatioBps(ctx, supply.Circulating(), params.ReferencePrice)
	if err != nil {
		return err
	}
	apy := apyForBacking(params, backing)

	minted := sdkmath.ZeroInt()
	if apy > 0 && rebase.TotalShares.IsPositive() {
		growth, err := k.tickGrowthWad(apy, params.TicksPerYear)
		if err != nil {
			return err
		}
		newIndex, err := k.math.MulWad(rebase.Index, growth)
		if err != nil {
			return err
		}
		if newIndex.LT(rebase.Index) {
			newIndex = rebase.Index
		}
		minted, err = k.math.SafeMulDiv(rebase.TotalShares, newIndex.Sub(rebase.Index), types.WadScale)
		if err != nil {
			return err
		}
		rebase.Index = newIndex
		supply.TotalMinted = supply.TotalMinted.Add(minted)
		supply.Staked = supply.Staked.Add(minted)
	}

	rebase.Epoch++
	rebase.LastApyBps = apy

	if err := k.setRebaseState(ctx, rebase); err != nil {
		return err
	}
	if err := k.setSupply(ctx, supply); err != nil {
		return err
	}

	sdkCtx, _ := contextNow(ctx)
	emitEventIfPossible(sdkCtx, sdk.NewEvent(
		"reserve_rebase_tick",
		sdk.NewAttribute("epoch", fmt.Sprintf("%d", rebase.Epoch)),
		sdk.NewAttribute("backing_bps", fmt.Sprintf("%d", backing)),
		sdk.NewAttribute("apy_bps", fmt.Sprintf("%d", apy)),
		sdk.NewAttribute("minted", minted.String()),
	))
	return nil
}

// MsgClaimRewards moves all accrued rewards from the position to the
// account's liquid balance.
func (k Keeper) MsgClaimRewards(ctx context.Context, msg types.MsgClaimRewards) (sdkmath.Int, error) {
	if err := msg.ValidateBasic(); err != nil {
		return sdkmath.ZeroInt(), err
	}

	pos, rebase, err := k.touchPosition(ctx, msg.Account)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	claimed := pos.PendingRewards
	if !claimed.IsPositive() {
		if err := k.persistTouch(ctx, pos, rebase); err != nil {
			return sdkmath.ZeroInt(), err
		}
		return sdkmath.ZeroInt(), nil
	}
	pos.PendingRewards = sdkmath.ZeroInt()

	supply, err := k.GetSupply(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	supply.Staked, err = k.math.SafeSub(supply.Staked, claimed)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := k.setSupply(ctx, supply); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := k.persistTouch(ctx, pos, rebase); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := k.addBalance(ctx, msg.Account, claimed); err != nil {
		return sdkmath.ZeroInt(), err
	}

	sdkCtx, _ := contextNow(ctx)
	emitEventIfPossible(sdkCtx, sdk.NewEvent(
		"reserve_claim_rewards",
		sdk.NewAttribute("account", msg.Account),
		sdk.NewAttribute("amount", claimed.String()),
	))
	return claimed, nil
}

// MsgCompound converts accrued rewards into additional staked principal.
func (k Keeper) MsgCompound(ctx context.Context, msg types.MsgCompound) (sdkmath.Int, error) {
	if err := msg.ValidateBasic(); err != nil {
		return sdkmath.ZeroInt(), err
	}

	pos, rebase, err := k.touchPosition(ctx, msg.Account)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	compounded := pos.PendingRewards
	if compounded.IsPositive() {
		newShares, err := k.math.SafeMulDiv(compounded, types.WadScale, rebase.Index)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		pos.Principal = pos.Principal.Add(compounded)
		pos.PendingRewards = sdkmath.ZeroInt()
		rebase.TotalShares = rebase.TotalShares.Add(newShares)
	}
	if err := k.persistTouch(ctx, pos, rebase); err != nil {
		return sdkmath.ZeroInt(), err
	}

	sdkCtx, _ := contextNow(ctx)
	emitEventIfPossible(sdkCtx, sdk.NewEvent(
		"reserve_compound",
		sdk.NewAttribute("account", msg.Account),
		sdk.NewAttribute("amount", compounded.String()),
	))
	return compounded, nil
}

// touchPosition loads and accrues an account's position, failing if none
// exists.
func (k Keeper) touchPosition(ctx context.Context, account string) (types.StakePosition, types.RebaseState, error) {
	rebase, err := k.GetRebaseState(ctx)
	if err != nil {
		return types.StakePosition{}, types.RebaseState{}, err
	}
	pos, found, err := k.GetPosition(ctx, account)
	if err != nil {
		return types.StakePosition{}, types.RebaseState{}, err
	}
	if !found {
		return types.StakePosition{}, types.RebaseState{}, fmt.Errorf(
			"account %s: %w", account, types.ErrNoPosition)
	}
	pos, rebase, err = k.accruePosition(pos, rebase)
	if err != nil {
		return types.StakePosition{}, types.RebaseState{}, err
	}
	return pos, rebase, nil
}

func (k Keeper) persistTouch(ctx context.Context, pos types.StakePosition, rebase types.RebaseState) error {
	if err := k.setRebaseState(ctx, rebase); err != nil {
		return err
	}
	return k.setPosition(ctx, pos)
}

// GetStakedBalance reports the account's staked principal. Unclaimed growth
// is reported separately by GetPendingRewards.
func (k Keeper) GetStakedBalance(ctx context.Context, account string) (sdkmath.Int, error) {
	pos, found, err := k.GetPosition(ctx, account)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !found {
		return sdkmath.ZeroInt(), nil
	}
	return pos.Principal, nil
}

// GetPendingRewards reports accrued plus not-yet-accrued rewards without
// writing state.
func (k Keeper) GetPendingRewards(ctx context.Context, account string) (sdkmath.Int, error) {
	pos, found, err := k.GetPosition(ctx, account)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !found {
		return sdkmath.ZeroInt(), nil
	}
	rebase, err := k.GetRebaseState(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	value, err := k.math.SafeMulDiv(pos.Principal, rebase.Index, pos.IndexAtLastTouch)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return pos.PendingRewards.Add(value.Sub(pos.Principal)), nil
}
