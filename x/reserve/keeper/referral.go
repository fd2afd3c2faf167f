package keeper

import (
	"context"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dcrypto25/Echo/x/reserve/types"
)

// ---------------------------------------------------------------------------
// REFERRAL DISTRIBUTOR
// ---------------------------------------------------------------------------
//
// Accounts form a sponsor forest. An account's sponsor is bound on its first
// stake and never changes. Each stake pays freshly minted rewards up the
// sponsor chain per the configured depth schedule; the chain is acyclic by
// construction (binding checks the prospective sponsor's ancestry).
// ---------------------------------------------------------------------------

// chainWalkLimit bounds ancestry walks. Chains are acyclic so the limit only
// guards against corrupted state.
const chainWalkLimit = 1024

// bindSponsor ensures a referral node exists for the account and, when a
// sponsor is named and the account is not yet bound, links it. A sponsor
// passed on later stakes is ignored.
func (k Keeper) bindSponsor(ctx context.Context, account, sponsor string) error {
	node, found, err := k.GetReferralNode(ctx, account)
	if err != nil {
		return err
	}
	if !found {
		node = types.NewReferralNode(account)
	}
	if sponsor == "" || node.Sponsor != "" {
		if !found {
			return k.setReferralNode(ctx, node)
		}
		return nil
	}
	if sponsor == account {
		return fmt.Errorf("account %s cannot sponsor itself: %w", account, types.ErrInvalidAmount)
	}

	// Reject a link that would close a loop through the account.
	cursor := sponsor
	for i := 0; cursor != "" && i < chainWalkLimit; i++ {
		if cursor == account {
			return fmt.Errorf("sponsor chain of %s passes through %s: %w",
				sponsor, account, types.ErrInvalidAmount)
		}
		ancestor, ok, err := k.GetReferralNode(ctx, cursor)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		cursor = ancestor.Sponsor
	}

	sponsorNode, sponsorFound, err := k.GetReferralNode(ctx, sponsor)
	if err != nil {
		return err
	}
	if !sponsorFound {
		sponsorNode = types.NewReferralNode(sponsor)
	}
	sponsorNode.DirectReferralCount++
	if err := k.setReferralNode(ctx, sponsorNode); err != nil {
		return err
	}

	node.Sponsor = sponsor
	if err := k.setReferralNode(ctx, node); err != nil {
		return err
	}

	sdkCtx, _ := contextNow(ctx)
	emitEventIfPossible(sdkCtx, sdk.NewEvent(
		"reserve_referral_bound",
		sdk.NewAttribute("account", account),
		sdk.NewAttribute("sponsor", sponsor),
	))
	return nil
}

// distributeReferralRewards walks the sponsor chain of a staking account and
// mints the scheduled reward at each depth, credited as rebasing principal on
// the ancestor's stake position so it compounds alongside ordinary stakes.
// Direct sponsors additionally accumulate the staked volume. Missing ancestors
// terminate the walk.
func (k Keeper) distributeReferralRewards(ctx context.Context, account string, volume sdkmath.Int) error {
	params, err := k.GetParams(ctx)
	if err != nil {
		return err
	}
	node, found, err := k.GetReferralNode(ctx, account)
	if err != nil {
		return err
	}
	if !found || node.Sponsor == "" {
		return nil
	}
	rebase, err := k.GetRebaseState(ctx)
	if err != nil {
		return err
	}

	totalMinted := sdkmath.ZeroInt()
	cursor := node.Sponsor
	for depth := 1; depth <= params.ReferralMaxDepth && cursor != ""; depth++ {
		ancestor, ok, err := k.GetReferralNode(ctx, cursor)
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		reward, err := k.math.SafeBpsMultiply(volume, params.ReferralRateBps(depth))
		if err != nil {
			return err
		}
		if reward.IsPositive() {
			ancestor.TotalEarned = ancestor.TotalEarned.Add(reward)
			rebase, err = k.creditStakedPrincipal(ctx, ancestor.Account, reward, rebase)
			if err != nil {
				return err
			}
			totalMinted = totalMinted.Add(reward)
		}
		if depth == 1 {
			ancestor.TotalReferralVolume = ancestor.TotalReferralVolume.Add(volume)
		}
		if err := k.setReferralNode(ctx, ancestor); err != nil {
			return err
		}
		cursor = ancestor.Sponsor
	}

	if totalMinted.IsPositive() {
		if err := k.setRebaseState(ctx, rebase); err != nil {
			return err
		}
		supply, err := k.GetSupply(ctx)
		if err != nil {
			return err
		}
		supply.TotalMinted = supply.TotalMinted.Add(totalMinted)
		supply.Staked = supply.Staked.Add(totalMinted)
		if err := k.setSupply(ctx, supply); err != nil {
			return err
		}

		sdkCtx, _ := contextNow(ctx)
		emitEventIfPossible(sdkCtx, sdk.NewEvent(
			"reserve_referral_rewards",
			sdk.NewAttribute("staker", account),
			sdk.NewAttribute("volume", volume.String()),
			sdk.NewAttribute("minted", totalMinted.String()),
		))
	}
	return nil
}

// GetReferralData assembles an account's referral standing, including the
// list of accounts directly sponsored by it.
func (k Keeper) GetReferralData(ctx context.Context, account string) (types.ReferralData, error) {
	node, found, err := k.GetReferralNode(ctx, account)
	if err != nil {
		return types.ReferralData{}, err
	}
	if !found {
		node = types.NewReferralNode(account)
	}
	directs, err := k.GetDirectReferrals(ctx, account)
	if err != nil {
		return types.ReferralData{}, err
	}
	return types.ReferralData{
		Account:             node.Account,
		Sponsor:             node.Sponsor,
		DirectReferralCount: node.DirectReferralCount,
		TotalReferralVolume: node.TotalReferralVolume,
		TotalEarned:         node.TotalEarned,
		DirectReferrals:     directs,
	}, nil
}

// GetDirectReferrals lists accounts whose sponsor is the given account.
func (k Keeper) GetDirectReferrals(ctx context.Context, account string) ([]string, error) {
	var directs []string
	err := k.Referrals.Walk(ctx, nil, func(key, raw string) (bool, error) {
		var node types.ReferralNode
		if err := json.Unmarshal([]byte(raw), &node); err != nil {
			return true, fmt.Errorf("decode referral node for %s: %w", key, err)
		}
		if node.Sponsor == account {
			directs = append(directs, node.Account)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return directs, nil
}
