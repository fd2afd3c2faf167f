package types

import "errors"

// Engine error kinds. Queue-capacity and cooldown errors are expected
// operational states the caller retries; arithmetic and convergence errors
// indicate an invariant breach and abort the operation with no state written.
var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientReserves  = errors.New("insufficient treasury reserves")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrNoPosition            = errors.New("no stake position")
	ErrNoUnstakeRequest      = errors.New("no outstanding unstake request")
	ErrCooldownNotElapsed    = errors.New("unstake cooldown has not elapsed")
	ErrQueueCapacityExceeded = errors.New("redemption queue capacity exceeded")
	ErrCurveSoldOut          = errors.New("bonding curve is sold out")
	ErrBondOutstanding       = errors.New("unvested bond outstanding")
	ErrNoBond                = errors.New("no outstanding bond")
	ErrConvergence           = errors.New("bonding curve solver failed to converge")
	ErrUnderflow             = errors.New("arithmetic underflow")
	ErrOverflow              = errors.New("arithmetic overflow")
	ErrDivisionByZero        = errors.New("division by zero")
)
