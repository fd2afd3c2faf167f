package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// GenesisState seeds the engine at launch. LaunchSupply is minted to the
// bonding curve's custody; no tokens circulate until the curve sells them.
type GenesisState struct {
	Params       Params      `json:"params"`
	LaunchSupply sdkmath.Int `json:"launch_supply"`
}

// DefaultGenesis returns the launch configuration: the full curve cap is the
// only supply that will ever be issued outside of rebase emissions.
func DefaultGenesis() GenesisState {
	params := DefaultParams()
	return GenesisState{
		Params:       params,
		LaunchSupply: params.CurveCap,
	}
}

// Validate checks genesis consistency.
func (g GenesisState) Validate() error {
	if err := g.Params.Validate(); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	if g.LaunchSupply.IsNil() || g.LaunchSupply.IsNegative() {
		return fmt.Errorf("launch supply must be non-negative")
	}
	if g.LaunchSupply.LT(g.Params.CurveCap) {
		return fmt.Errorf("launch supply %s cannot cover curve cap %s", g.LaunchSupply, g.Params.CurveCap)
	}
	return nil
}
