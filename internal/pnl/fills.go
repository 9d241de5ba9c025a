package pnl

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Fill is one trade from the account history. Direction is the exchange label
// ("Buy", "Sell", "Open Short", ...) and is compared case-sensitively.
type Fill struct {
	Direction string
	Price     decimal.Decimal
	Size      decimal.Decimal
	Seq       int
}

type Run struct {
	Direction string
	TotalSize decimal.Decimal
	VWAP      decimal.Decimal
	Fills     []Fill
}

// LatestConsecutiveRun returns the most recent unbroken run of fills in
// direction. Leading fills in other directions are skipped; the first
// mismatch after a match ends the run. fills is never modified.
func LatestConsecutiveRun(fills []Fill, direction string, newestFirst bool) (Run, error) {
	labels := make(map[string]struct{}, 4)
	for _, f := range fills {
		labels[f.Direction] = struct{}{}
	}
	if _, ok := labels[direction]; !ok {
		allowed := make([]string, 0, len(labels))
		for label := range labels {
			allowed = append(allowed, label)
		}
		sort.Strings(allowed)
		return Run{}, fmt.Errorf("%w %q, allowed values: %q", ErrUnknownDirection, direction, allowed)
	}

	run := Run{Direction: direction, TotalSize: decimal.Zero}
	notional := decimal.Zero
	started := false
	n := len(fills)
	for i := 0; i < n; i++ {
		f := fills[i]
		if !newestFirst {
			f = fills[n-1-i]
		}
		if f.Direction != direction {
			if started {
				break
			}
			continue
		}
		started = true
		run.TotalSize = run.TotalSize.Add(f.Size)
		notional = notional.Add(f.Price.Mul(f.Size))
		run.Fills = append(run.Fills, f)
	}
	if run.TotalSize.IsZero() {
		return Run{}, fmt.Errorf("%w: %q", ErrNoMatchingFills, direction)
	}
	run.VWAP = notional.Div(run.TotalSize)
	return run, nil
}
