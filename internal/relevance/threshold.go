package relevance

// ThresholdPolicy controls adaptive lowering of the relevance threshold.
type ThresholdPolicy struct {
	// Floor is the hard minimum the threshold can be lowered to.
	Floor int
	// LowRatio is the relevant/processed ratio under which lowering kicks in.
	LowRatio float64
	// Window is the number of documents scored between adjustments.
	Window int
}

// DefaultThresholdPolicy mirrors the production defaults.
func DefaultThresholdPolicy() ThresholdPolicy {
	return ThresholdPolicy{Floor: 3, LowRatio: 0.15, Window: 20}
}

// Next returns the threshold to use after a window of scored documents.
// It lowers by one when the window ratio is under LowRatio and never raises.
func (p ThresholdPolicy) Next(current, scored, relevant int) int {
	floor := p.Floor
	if floor <= 0 {
		floor = 1
	}
	if current <= floor {
		return current
	}
	window := p.Window
	if window <= 0 {
		window = 1
	}
	if scored < window {
		return current
	}
	ratio := float64(relevant) / float64(scored)
	if ratio >= p.LowRatio {
		return current
	}
	return current - 1
}
