package pnl

import "errors"

var (
	ErrNoLiquidity         = errors.New("no liquidity in the order book")
	ErrNoMatchingFills     = errors.New("no consecutive fills found")
	ErrUnknownDirection    = errors.New("unknown fill direction")
	ErrInvalidPositionType = errors.New("invalid position type")
	ErrNoPosition          = errors.New("no open position")
)
