package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// BpsBase is the basis-point denominator (10000 bps = 100%).
const BpsBase int64 = 10000

// WadScale is the fixed-point scale for all monetary quantities.
var WadScale = sdkmath.NewIntWithDecimal(1, 18)

// Params is the complete engine parameter set. Curve calibration is a
// configuration input, not a hard-coded law; defaults reproduce the launch
// calibration.
type Params struct {
	// Bonding curve calibration: p(s) = p0 + k*s^2 with k derived so that
	// p(0) = LaunchPrice and p(CurveCap) = CapPrice.
	LaunchPrice sdkmath.Int `json:"launch_price"`
	CapPrice    sdkmath.Int `json:"cap_price"`
	CurveCap    sdkmath.Int `json:"curve_cap"`

	// SolverIterationBudget bounds the Newton iterations for a purchase.
	SolverIterationBudget int `json:"solver_iteration_budget"`

	// ReferencePrice values circulating supply and treasury-held protocol
	// tokens when computing the backing ratio.
	ReferencePrice sdkmath.Int `json:"reference_price"`

	// Rebase engine: apyBps = min(MaxApyBps, BaseApyBps*(backing/10000)^2),
	// zero below MinBackingForRebaseBps.
	BaseApyBps             int64 `json:"base_apy_bps"`
	MaxApyBps              int64 `json:"max_apy_bps"`
	MinBackingForRebaseBps int64 `json:"min_backing_for_rebase_bps"`
	TicksPerYear           int64 `json:"ticks_per_year"`
	TicksPerDay            int64 `json:"ticks_per_day"`

	// Unstake penalty and cooldown curves.
	PenaltyThresholdBps int64 `json:"penalty_threshold_bps"`
	PenaltyRangeBps     int64 `json:"penalty_range_bps"`
	MaxPenaltyBps       int64 `json:"max_penalty_bps"`
	CooldownMinDays     int64 `json:"cooldown_min_days"`
	CooldownMaxDays     int64 `json:"cooldown_max_days"`

	// DailyRedemptionCapBps limits aggregate unstake execution per window
	// to a fraction of circulating supply.
	DailyRedemptionCapBps int64 `json:"daily_redemption_cap_bps"`

	// Protocol bonds: purchases priced at BondDiscountBps under the curve
	// price, vesting linearly over BondVestingDays into staked principal.
	BondDiscountBps int64 `json:"bond_discount_bps"`
	BondVestingDays int64 `json:"bond_vesting_days"`

	// Referral reward schedule, depth 1..ReferralMaxDepth.
	ReferralMaxDepth int             `json:"referral_max_depth"`
	ReferralLevels   []ReferralLevel `json:"referral_levels"`

	// Transfer tax band, interpolated against the staking ratio.
	BaseTaxBps int64 `json:"base_tax_bps"`
	MaxTaxBps  int64 `json:"max_tax_bps"`

	// Buyback trigger: backing below BuybackTriggerBps with at least
	// BuybackMinLiquid of spendable reserves recommends a buyback.
	BuybackTriggerBps int64       `json:"buyback_trigger_bps"`
	BuybackMinLiquid  sdkmath.Int `json:"buyback_min_liquid"`
}

// DefaultParams returns the launch calibration.
func DefaultParams() Params {
	return Params{
		LaunchPrice:           wadFromMicro(300),       // $0.0003
		CapPrice:              wadFromMicro(40_000),    // $0.04 at the cap
		CurveCap:              wadFromWhole(1_000_000), // 1M tokens via curve
		SolverIterationBudget: 64,
		ReferencePrice:        wadFromMicro(40_000),

		BaseApyBps:             500_000,   // 5,000% at 100% backing
		MaxApyBps:              3_000_000, // 30,000% ceiling
		MinBackingForRebaseBps: 8_000,     // emissions stop under 80% backing
		TicksPerYear:           1_095,     // 3 rebases per day
		TicksPerDay:            3,

		PenaltyThresholdBps: 12_000, // free exit at 120%+ backing
		PenaltyRangeBps:     7_000,
		MaxPenaltyBps:       7_500, // 75% at the crisis floor
		CooldownMinDays:     1,
		CooldownMaxDays:     7,

		DailyRedemptionCapBps: 200, // 2% of circulating per day

		BondDiscountBps: 500, // fixed 5% under the curve price
		BondVestingDays: 5,

		ReferralMaxDepth: 10,
		ReferralLevels:   DefaultReferralLevels(),

		BaseTaxBps: 400,
		MaxTaxBps:  1_500,

		BuybackTriggerBps: 9_000,
		BuybackMinLiquid:  wadFromWhole(1_000),
	}
}

// DefaultReferralLevels is the launch schedule: 4% direct, 2% at depth two,
// 1% for depths three through ten (14% total).
func DefaultReferralLevels() []ReferralLevel {
	levels := []ReferralLevel{
		{Depth: 1, RateBps: 400},
		{Depth: 2, RateBps: 200},
	}
	for d := 3; d <= 10; d++ {
		levels = append(levels, ReferralLevel{Depth: d, RateBps: 100})
	}
	return levels
}

// Validate checks that the parameter set is well-formed.
func (p Params) Validate() error {
	if p.LaunchPrice.IsNil() || !p.LaunchPrice.IsPositive() {
		return fmt.Errorf("launch price must be positive")
	}
	if p.CapPrice.IsNil() || p.CapPrice.LTE(p.LaunchPrice) {
		return fmt.Errorf("cap price must exceed launch price")
	}
	if p.CurveCap.IsNil() || !p.CurveCap.IsPositive() {
		return fmt.Errorf("curve cap must be positive")
	}
	if p.SolverIterationBudget < 8 || p.SolverIterationBudget > 256 {
		return fmt.Errorf("solver iteration budget must be in [8, 256], got %d", p.SolverIterationBudget)
	}
	if p.ReferencePrice.IsNil() || !p.ReferencePrice.IsPositive() {
		return fmt.Errorf("reference price must be positive")
	}
	if p.BaseApyBps <= 0 || p.MaxApyBps < p.BaseApyBps {
		return fmt.Errorf("apy band [%d, %d] is invalid", p.BaseApyBps, p.MaxApyBps)
	}
	if p.MinBackingForRebaseBps < 0 || p.MinBackingForRebaseBps > p.PenaltyThresholdBps {
		return fmt.Errorf("rebase floor must be in [0, threshold=%d] bps, got %d",
			p.PenaltyThresholdBps, p.MinBackingForRebaseBps)
	}
	if p.TicksPerYear <= 0 || p.TicksPerDay <= 0 {
		return fmt.Errorf("tick cadence must be positive")
	}
	if p.TicksPerDay > p.TicksPerYear {
		return fmt.Errorf("ticks per day %d exceeds ticks per year %d", p.TicksPerDay, p.TicksPerYear)
	}
	if p.PenaltyThresholdBps <= 0 || p.PenaltyRangeBps <= 0 {
		return fmt.Errorf("penalty threshold and range must be positive")
	}
	if p.MaxPenaltyBps < 0 || p.MaxPenaltyBps > BpsBase {
		return fmt.Errorf("max penalty must be in [0, %d] bps, got %d", BpsBase, p.MaxPenaltyBps)
	}
	if p.CooldownMinDays < 0 || p.CooldownMaxDays < p.CooldownMinDays {
		return fmt.Errorf("cooldown band [%d, %d] is invalid", p.CooldownMinDays, p.CooldownMaxDays)
	}
	if p.DailyRedemptionCapBps <= 0 || p.DailyRedemptionCapBps > BpsBase {
		return fmt.Errorf("daily redemption cap must be in (0, %d] bps, got %d", BpsBase, p.DailyRedemptionCapBps)
	}
	if p.BondDiscountBps <= 0 || p.BondDiscountBps >= BpsBase {
		return fmt.Errorf("bond discount must be in (0, %d) bps, got %d", BpsBase, p.BondDiscountBps)
	}
	if p.BondVestingDays <= 0 {
		return fmt.Errorf("bond vesting days must be positive, got %d", p.BondVestingDays)
	}
	if p.ReferralMaxDepth <= 0 || p.ReferralMaxDepth > 32 {
		return fmt.Errorf("referral depth must be in [1, 32], got %d", p.ReferralMaxDepth)
	}
	if len(p.ReferralLevels) != p.ReferralMaxDepth {
		return fmt.Errorf("referral schedule has %d levels, want %d", len(p.ReferralLevels), p.ReferralMaxDepth)
	}
	total := int64(0)
	for i, level := range p.ReferralLevels {
		if level.Depth != i+1 {
			return fmt.Errorf("referral schedule depth %d out of order", level.Depth)
		}
		if level.RateBps < 0 || level.RateBps > BpsBase {
			return fmt.Errorf("referral rate at depth %d must be in [0, %d] bps", level.Depth, BpsBase)
		}
		total += level.RateBps
	}
	if total > BpsBase {
		return fmt.Errorf("referral schedule totals %d bps, exceeds %d", total, BpsBase)
	}
	if p.BaseTaxBps < 0 || p.MaxTaxBps < p.BaseTaxBps || p.MaxTaxBps > BpsBase {
		return fmt.Errorf("tax band [%d, %d] is invalid", p.BaseTaxBps, p.MaxTaxBps)
	}
	if p.BuybackTriggerBps < 0 || p.BuybackTriggerBps > 2*BpsBase {
		return fmt.Errorf("buyback trigger must be in [0, %d] bps, got %d", 2*BpsBase, p.BuybackTriggerBps)
	}
	if p.BuybackMinLiquid.IsNil() || p.BuybackMinLiquid.IsNegative() {
		return fmt.Errorf("buyback minimum liquid reserve must be non-negative")
	}
	return nil
}

// ReferralRateBps returns the reward rate for a sponsor-chain depth, or zero
// past the schedule.
func (p Params) ReferralRateBps(depth int) int64 {
	if depth < 1 || depth > len(p.ReferralLevels) {
		return 0
	}
	return p.ReferralLevels[depth-1].RateBps
}

func wadFromWhole(n int64) sdkmath.Int {
	return sdkmath.NewInt(n).Mul(WadScale)
}

// wadFromMicro converts a price expressed in millionths (1 = $0.000001) to wad.
func wadFromMicro(n int64) sdkmath.Int {
	return sdkmath.NewInt(n).Mul(sdkmath.NewIntWithDecimal(1, 12))
}
