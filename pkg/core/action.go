package core

import "fmt"

// ActionKind names the outcome of an engine evaluation
type ActionKind string

const (
	ActionNoOp             ActionKind = "NOOP"
	ActionPlaceHedge       ActionKind = "PLACE_HEDGE"
	ActionCloseBoth        ActionKind = "CLOSE_BOTH"
	ActionPlaceOrder       ActionKind = "PLACE_ORDER"
	ActionCancelAndReplace ActionKind = "CANCEL_AND_REPLACE"
)

// HedgeAction is the decision of one hedge evaluation
type HedgeAction struct {
	Kind     ActionKind
	Order    *MarketOrder
	PipsLoss float64
	Combined float64
	Reason   string
}

func (a HedgeAction) String() string {
	if a.Order != nil {
		return fmt.Sprintf("%s %s", a.Kind, a.Order)
	}
	return fmt.Sprintf("%s (%s)", a.Kind, a.Reason)
}

// EntryAction is the decision of one entry evaluation. A CancelAndReplace without
// an order cancels the stale order and leaves nothing in its place.
type EntryAction struct {
	Kind        ActionKind
	Cancel      *PendingOrder
	Order       *MarketOrder
	Trend       TrendState
	ShortEMA    float64
	LongEMA     float64
	PipDistance float64
	Validated   bool
	Reason      string
}

func (a EntryAction) String() string {
	switch {
	case a.Kind == ActionCancelAndReplace && a.Order != nil:
		return fmt.Sprintf("%s %s -> %s", a.Kind, a.Cancel.ID, a.Order)
	case a.Kind == ActionCancelAndReplace:
		return fmt.Sprintf("%s %s -> none", a.Kind, a.Cancel.ID)
	case a.Order != nil:
		return fmt.Sprintf("%s %s", a.Kind, a.Order)
	default:
		return fmt.Sprintf("%s (%s)", a.Kind, a.Reason)
	}
}
