package coordinator

import (
	"fmt"
	"strings"

	"Holdfast/app/services/inventory/internal/domain"
)

// Policy decides what a bulk call does with its successes when an item fails.
type Policy int

const (
	// AllOrNothing undoes every success of the call when any item fails.
	AllOrNothing Policy = iota
	// BestEffort keeps successes and reports failures per item.
	BestEffort
)

func (p Policy) String() string {
	switch p {
	case AllOrNothing:
		return "ALL_OR_NOTHING"
	case BestEffort:
		return "BEST_EFFORT"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy reads a policy name; empty selects def.
func ParsePolicy(s string, def Policy) (Policy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "ALL_OR_NOTHING", "ALLORNOTHING":
		return AllOrNothing, nil
	case "BEST_EFFORT", "BESTEFFORT":
		return BestEffort, nil
	default:
		return def, fmt.Errorf("unknown policy %q", s)
	}
}

type line struct {
	subSku   string
	quantity int64
	err      error
}

// normalize merges repeated skus (summing quantities, keeping first-seen
// order). Each item is checked before it is merged, so one bad item fails its
// whole line even when the sum would be positive.
func normalize(items []domain.Item) []line {
	index := make(map[string]int, len(items))
	lines := make([]line, 0, len(items))
	for _, it := range items {
		var err error
		switch {
		case it.SubSku == "":
			err = fmt.Errorf("%w: empty sub sku", domain.ErrProductNotFound)
		case it.Quantity <= 0:
			err = fmt.Errorf("%w: %s %d", domain.ErrInvalidQuantity, it.SubSku, it.Quantity)
		}
		lines = merge(lines, index, it.SubSku, it.Quantity, err)
	}
	return lines
}

func normalizeAdjustments(adjs []domain.Adjustment) []line {
	index := make(map[string]int, len(adjs))
	lines := make([]line, 0, len(adjs))
	for _, a := range adjs {
		var err error
		switch {
		case a.SubSku == "":
			err = fmt.Errorf("%w: empty sub sku", domain.ErrProductNotFound)
		case a.DeltaQuantity == 0:
			err = fmt.Errorf("%w: %s zero delta", domain.ErrInvalidAdjustment, a.SubSku)
		}
		lines = merge(lines, index, a.SubSku, a.DeltaQuantity, err)
	}
	for i := range lines {
		if lines[i].err == nil && lines[i].quantity == 0 {
			lines[i].err = fmt.Errorf("%w: %s deltas cancel out", domain.ErrInvalidAdjustment, lines[i].subSku)
		}
	}
	return lines
}

// merge folds one item into lines. The first error seen for a sku sticks.
func merge(lines []line, index map[string]int, subSku string, quantity int64, err error) []line {
	i, ok := index[subSku]
	if !ok {
		index[subSku] = len(lines)
		return append(lines, line{subSku: subSku, quantity: quantity, err: err})
	}
	lines[i].quantity += quantity
	if lines[i].err == nil {
		lines[i].err = err
	}
	return lines
}
