package core

// TrendState classifies a price history by comparing a short and a long EMA
type TrendState string

const (
	TrendUp       TrendState = "UPTREND"
	TrendDown     TrendState = "DOWNTREND"
	TrendSideways TrendState = "SIDEWAYS"
)

// Direction maps a trend to the side that follows it. Sideways markets have no direction.
func (t TrendState) Direction() (SideType, bool) {
	switch t {
	case TrendUp:
		return SideTypeBuy, true
	case TrendDown:
		return SideTypeSell, true
	default:
		return "", false
	}
}
