package keeper

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/dcrypto25/Echo/x/reserve/types"
)

// InitGenesis seeds the engine. The launch supply is minted directly into
// treasury custody as bonding-curve inventory; nothing circulates until the
// curve sells it.
func (k Keeper) InitGenesis(ctx context.Context, genesis types.GenesisState) error {
	if err := genesis.Validate(); err != nil {
		return fmt.Errorf("invalid genesis state: %w", err)
	}
	if err := k.setParams(ctx, genesis.Params); err != nil {
		return err
	}
	supply := types.SupplyState{
		TotalMinted:  genesis.LaunchSupply,
		Burned:       sdkmath.ZeroInt(),
		Staked:       sdkmath.ZeroInt(),
		TreasuryHeld: genesis.LaunchSupply,
	}
	return k.setSupply(ctx, supply)
}

// ExportGenesis reconstructs the launch configuration from live state.
// Treasury custody holds the unsold inventory plus any protocol tokens
// retained since launch (exit penalties, transfer tax), so the original
// launch supply is custody minus retained tokens plus everything sold.
func (k Keeper) ExportGenesis(ctx context.Context) (types.GenesisState, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return types.GenesisState{}, err
	}
	supply, err := k.GetSupply(ctx)
	if err != nil {
		return types.GenesisState{}, err
	}
	curve, err := k.GetCurveState(ctx)
	if err != nil {
		return types.GenesisState{}, err
	}
	retained, err := k.GetAsset(ctx, types.AssetProtocolToken)
	if err != nil {
		return types.GenesisState{}, err
	}

	launch := supply.TreasuryHeld.Sub(retained.Quantity).Add(curve.UnitsSold)
	if launch.IsNegative() {
		return types.GenesisState{}, fmt.Errorf("reconstructed launch supply %s: %w",
			launch, types.ErrUnderflow)
	}
	return types.GenesisState{
		Params:       params,
		LaunchSupply: launch,
	}, nil
}
