package types

const (
	// ModuleName is the reserve economic engine namespace.
	ModuleName = "reserve"

	// StoreKey is the module KV store key.
	StoreKey = ModuleName

	// TreasuryModuleName is the dedicated module account for treasury holdings.
	TreasuryModuleName = "reserve_treasury"
)

var (
	// ParamsKey stores the engine parameter set.
	ParamsKey = []byte{0x01}

	// AssetKeyPrefix stores treasury asset balances by kind.
	AssetKeyPrefix = []byte{0x02}

	// SupplyKey stores the global supply counters.
	SupplyKey = []byte{0x03}

	// CurveStateKey stores cumulative bonding-curve sales.
	CurveStateKey = []byte{0x04}

	// RebaseStateKey stores the global rebasing index and epoch counter.
	RebaseStateKey = []byte{0x05}

	// PositionKeyPrefix stores per-account stake positions.
	PositionKeyPrefix = []byte{0x06}

	// UnstakeRequestKeyPrefix stores the single outstanding request per account.
	UnstakeRequestKeyPrefix = []byte{0x07}

	// RedemptionQueueKey stores the daily redemption window counters.
	RedemptionQueueKey = []byte{0x08}

	// ReferralNodeKeyPrefix stores per-account referral nodes.
	ReferralNodeKeyPrefix = []byte{0x09}

	// BalanceKeyPrefix stores per-account unstaked circulating balances.
	BalanceKeyPrefix = []byte{0x0A}

	// BondKeyPrefix stores the single vesting bond per account.
	BondKeyPrefix = []byte{0x0B}
)
