package strategy

// FillAccount accumulates execution progress for the controller's working
// order across partial fills. Targets are set once at initialize; fills
// are applied additively as delta quantities.
type FillAccount struct {
	FilledQty    int
	FilledAmount float64 // Σ qty×avgPrice across fills

	TargetQty    int     // closing policies target a share count
	TargetAmount float64 // opening policies target a dollar amount
}

// Apply records a fill delta.
func (a *FillAccount) Apply(deltaQty int, avgPrice float64) {
	a.FilledQty += deltaQty
	a.FilledAmount += float64(deltaQty) * avgPrice
}

// Overfilled reports whether the filled progress exceeds the target.
// Overfill is detected and logged, never prevented or unwound.
func (a FillAccount) Overfilled() bool {
	if a.TargetAmount > 0 && a.FilledAmount > a.TargetAmount {
		return true
	}
	return a.TargetQty > 0 && a.FilledQty > a.TargetQty
}
