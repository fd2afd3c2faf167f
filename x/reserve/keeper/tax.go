package keeper

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dcrypto25/Echo/x/reserve/types"
)

// GetCurrentTaxRate evaluates the transfer tax in bps. The tax interpolates
// from MaxTaxBps down to BaseTaxBps as the staked share of circulating
// supply rises, so moving tokens instead of staking them is most expensive
// when few others are staked.
func (k Keeper) GetCurrentTaxRate(ctx context.Context) (int64, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return 0, err
	}
	supply, err := k.GetSupply(ctx)
	if err != nil {
		return 0, err
	}

	circulating := supply.Circulating()
	if circulating.IsZero() {
		return params.MaxTaxBps, nil
	}
	ratio, err := k.math.SafeMulDiv(supply.Staked, sdkmath.NewInt(types.BpsBase), circulating)
	if err != nil {
		return 0, err
	}
	stakedBps := types.BpsBase
	if ratio.IsInt64() && ratio.Int64() < types.BpsBase {
		stakedBps = ratio.Int64()
	}
	return params.BaseTaxBps + (params.MaxTaxBps-params.BaseTaxBps)*(types.BpsBase-stakedBps)/types.BpsBase, nil
}

// MsgTransfer moves tokens between liquid balances, applying the transfer
// tax. Half the tax is burned; the other half is retained by the treasury as
// protocol-token reserves.
func (k Keeper) MsgTransfer(ctx context.Context, msg types.MsgTransfer) error {
	if err := msg.ValidateBasic(); err != nil {
		return err
	}

	taxBps, err := k.GetCurrentTaxRate(ctx)
	if err != nil {
		return err
	}
	tax, err := k.math.SafeBpsMultiply(msg.Amount, taxBps)
	if err != nil {
		return err
	}
	burned := tax.QuoRaw(2)
	retained := tax.Sub(burned)
	net := msg.Amount.Sub(tax)

	if err := k.subBalance(ctx, msg.From, msg.Amount); err != nil {
		return err
	}
	if err := k.addBalance(ctx, msg.To, net); err != nil {
		return err
	}

	if tax.IsPositive() {
		supply, err := k.GetSupply(ctx)
		if err != nil {
			return err
		}
		supply.Burned = supply.Burned.Add(burned)
		supply.TreasuryHeld = supply.TreasuryHeld.Add(retained)
		if err := k.setSupply(ctx, supply); err != nil {
			return err
		}
		if retained.IsPositive() {
			if err := k.Deposit(ctx, types.AssetProtocolToken, retained); err != nil {
				return err
			}
		}
	}

	sdkCtx, _ := contextNow(ctx)
	emitEventIfPossible(sdkCtx, sdk.NewEvent(
		"reserve_transfer",
		sdk.NewAttribute("from", msg.From),
		sdk.NewAttribute("to", msg.To),
		sdk.NewAttribute("amount", msg.Amount.String()),
		sdk.NewAttribute("tax_bps", fmt.Sprintf("%d", taxBps)),
		sdk.NewAttribute("burned", burned.String()),
		sdk.NewAttribute("retained", retained.String()),
	))
	return nil
}
