package domain

// ControlLink is a control attached to a risk, with the residual risk the
// association leaves on that risk.
type ControlLink struct {
	RiskID       string
	Control      Control
	ResidualRisk float64
}

// RiskLink is the mirror association seen from a control.
type RiskLink struct {
	ControlID    string
	Risk         Risk
	ResidualRisk float64
}

// LinkResidual computes the residual risk a single control leaves on a risk
// with the given inherent score. The formula is shared with the server; the
// optimistic value and the reconciled value must agree or rows flicker.
//
// Effectiveness 1 leaves the inherent risk untouched, effectiveness 5 leaves a
// fifth of it. Out-of-scale effectiveness is clamped.
func LinkResidual(inherentRisk float64, effectiveness int) float64 {
	if effectiveness < 1 {
		effectiveness = 1
	}
	if effectiveness > 5 {
		effectiveness = 5
	}
	residual := inherentRisk * float64(6-effectiveness) / 5
	if residual < 1 {
		residual = 1
	}
	return residual
}

// ResidualOverControls reduces the residual risks of all associated controls
// with MIN: the best control dominates residual exposure. A risk with no
// controls keeps its inherent risk exactly. This must stay a MIN, never an
// average.
func ResidualOverControls(inherentRisk float64, links []ControlLink) float64 {
	if len(links) == 0 {
		return inherentRisk
	}
	residual := links[0].ResidualRisk
	for _, link := range links[1:] {
		if link.ResidualRisk < residual {
			residual = link.ResidualRisk
		}
	}
	return residual
}
