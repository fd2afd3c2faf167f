package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// AssetKind classifies treasury holdings for valuation and runway purposes.
type AssetKind string

const (
	AssetNative        AssetKind = "native"
	AssetStable        AssetKind = "stable"
	AssetYieldBearing  AssetKind = "yield"
	AssetProtocolToken AssetKind = "protocol"
)

// ValidAssetKind reports whether kind is one of the recognized treasury kinds.
func ValidAssetKind(kind AssetKind) bool {
	switch kind {
	case AssetNative, AssetStable, AssetYieldBearing, AssetProtocolToken:
		return true
	default:
		return false
	}
}

// Asset is a treasury holding. Quantity is 1e18 fixed point and never negative.
type Asset struct {
	Kind     AssetKind   `json:"kind"`
	Quantity sdkmath.Int `json:"quantity"`
}

// SupplyState tracks the global token counters.
//
// Circulating supply is derived: total minted minus burned minus
// treasury-held protocol tokens. Staked never exceeds circulating.
type SupplyState struct {
	TotalMinted  sdkmath.Int `json:"total_minted"`
	Burned       sdkmath.Int `json:"burned"`
	Staked       sdkmath.Int `json:"staked"`
	TreasuryHeld sdkmath.Int `json:"treasury_held"`
}

// Circulating returns total minted minus burned and treasury-held tokens.
func (s SupplyState) Circulating() sdkmath.Int {
	return s.TotalMinted.Sub(s.Burned).Sub(s.TreasuryHeld)
}

// CurveState tracks cumulative bonding-curve sales against the hard cap.
type CurveState struct {
	// UnitsSold is the cumulative supply issued through the curve (1e18 scaled).
	UnitsSold sdkmath.Int `json:"units_sold"`

	// ProceedsDeposited is the exact sum of payments accepted by the curve.
	ProceedsDeposited sdkmath.Int `json:"proceeds_deposited"`
}

// RebaseState holds the global rebasing index and the epoch counter.
// The index starts at 1e18 and only grows; the epoch advances only on an
// explicit rebase tick.
//
// TotalShares is the sum over positions of principal normalized by the index
// at last touch (principal * 1e18 / indexAtLastTouch). Minting
// totalShares * (indexNew - indexOld) / 1e18 per tick keeps global emissions
// exactly equal to the growth every position will lazily accrue.
type RebaseState struct {
	Index       sdkmath.Int `json:"index"`
	Epoch       int64       `json:"epoch"`
	TotalShares sdkmath.Int `json:"total_shares"`
	LastApyBps  int64       `json:"last_apy_bps"`
}

// StakePosition is the per-account staking record. Displayed growth since the
// last touch is principal * (currentIndex / IndexAtLastTouch - 1); touches
// (stake, compound, claim, referral or bond credit) fold that growth into
// PendingRewards and restamp the index.
type StakePosition struct {
	Account          string      `json:"account"`
	Principal        sdkmath.Int `json:"principal"`
	IndexAtLastTouch sdkmath.Int `json:"index_at_last_touch"`
	PendingRewards   sdkmath.Int `json:"pending_rewards"`
}

// UnstakeRequest is the single outstanding cooldown entry for an account.
// Penalty and cooldown are snapshotted at request time and never re-evaluated.
type UnstakeRequest struct {
	Account          string      `json:"account"`
	Amount           sdkmath.Int `json:"amount"`
	RequestEpoch     int64       `json:"request_epoch"`
	CooldownEndEpoch int64       `json:"cooldown_end_epoch"`
	PenaltyBps       int64       `json:"penalty_bps"`
}

// RedemptionQueue limits aggregate unstake execution per day-window.
type RedemptionQueue struct {
	DailyCapacityRemaining sdkmath.Int `json:"daily_capacity_remaining"`
	WindowStartEpoch       int64       `json:"window_start_epoch"`
}

// BondPosition is the single vesting bond per account. The token amount is
// fixed at purchase; it vests linearly in epochs and every claim mints the
// newly vested portion directly as rebasing principal.
type BondPosition struct {
	Account       string      `json:"account"`
	TotalAmount   sdkmath.Int `json:"total_amount"`
	ClaimedAmount sdkmath.Int `json:"claimed_amount"`
	StartEpoch    int64       `json:"start_epoch"`
	VestEndEpoch  int64       `json:"vest_end_epoch"`
}

// ReferralNode is one node of the sponsor forest. Sponsor is bound once, at
// first stake, and is immutable afterwards; cycles are impossible by
// construction.
type ReferralNode struct {
	Account             string      `json:"account"`
	Sponsor             string      `json:"sponsor,omitempty"`
	DirectReferralCount int64       `json:"direct_referral_count"`
	TotalReferralVolume sdkmath.Int `json:"total_referral_volume"`
	TotalEarned         sdkmath.Int `json:"total_earned"`
}

// ReferralLevel maps a sponsor-chain depth to its reward rate.
type ReferralLevel struct {
	Depth   int   `json:"depth"`
	RateBps int64 `json:"rate_bps"`
}

// PenaltyQuote is the snapshot-free preview returned by penalty queries.
type PenaltyQuote struct {
	PenaltyBps    int64       `json:"penalty_bps"`
	PenaltyAmount sdkmath.Int `json:"penalty_amount"`
	CooldownDays  int64       `json:"cooldown_days"`
}

// BuyResult reports the outcome of a bonding-curve purchase.
type BuyResult struct {
	TokensIssued sdkmath.Int `json:"tokens_issued"`
	PaymentUsed  sdkmath.Int `json:"payment_used"`
	Refund       sdkmath.Int `json:"refund"`
	PriceAfter   sdkmath.Int `json:"price_after"`
}

// BondResult reports the outcome of a bond purchase.
type BondResult struct {
	TokensBonded sdkmath.Int `json:"tokens_bonded"`
	BondPrice    sdkmath.Int `json:"bond_price"`
	VestEndEpoch int64       `json:"vest_end_epoch"`
}

// UnstakeResult reports the settled amounts of an executed unstake.
type UnstakeResult struct {
	GrossAmount   sdkmath.Int `json:"gross_amount"`
	PenaltyAmount sdkmath.Int `json:"penalty_amount"`
	NetAmount     sdkmath.Int `json:"net_amount"`
}

// ReferralData is the query view over a referral node.
type ReferralData struct {
	Account             string      `json:"account"`
	Sponsor             string      `json:"sponsor,omitempty"`
	DirectReferralCount int64       `json:"direct_referral_count"`
	TotalReferralVolume sdkmath.Int `json:"total_referral_volume"`
	TotalEarned         sdkmath.Int `json:"total_earned"`
	DirectReferrals     []string    `json:"direct_referrals"`
}

// NewStakePosition returns an empty position stamped at the given index.
func NewStakePosition(account string, index sdkmath.Int) StakePosition {
	return StakePosition{
		Account:          account,
		Principal:        sdkmath.ZeroInt(),
		IndexAtLastTouch: index,
		PendingRewards:   sdkmath.ZeroInt(),
	}
}

// NewReferralNode returns a node with zeroed bookkeeping.
func NewReferralNode(account string) ReferralNode {
	return ReferralNode{
		Account:             account,
		DirectReferralCount: 0,
		TotalReferralVolume: sdkmath.ZeroInt(),
		TotalEarned:         sdkmath.ZeroInt(),
	}
}

// Validate checks internal consistency of the supply counters.
func (s SupplyState) Validate() error {
	for name, v := range map[string]sdkmath.Int{
		"total_minted":  s.TotalMinted,
		"burned":        s.Burned,
		"staked":        s.Staked,
		"treasury_held": s.TreasuryHeld,
	} {
		if v.IsNil() || v.IsNegative() {
			return fmt.Errorf("supply counter %s must be a non-negative integer", name)
		}
	}
	if s.Circulating().IsNegative() {
		return fmt.Errorf("burned plus treasury-held exceeds total minted")
	}
	if s.Staked.GT(s.Circulating()) {
		return fmt.Errorf("staked supply %s exceeds circulating %s", s.Staked, s.Circulating())
	}
	return nil
}
