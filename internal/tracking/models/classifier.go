package models

// SignalQuality bands a raw signal-strength reading.
type SignalQuality string

const (
	SignalNoSignal  SignalQuality = "NO_SIGNAL"
	SignalWeak      SignalQuality = "WEAK"
	SignalModerate  SignalQuality = "MODERATE"
	SignalGood      SignalQuality = "GOOD"
	SignalExcellent SignalQuality = "EXCELLENT"
)

// AccuracyLevel bands a GPS accuracy reading in meters. Lower is better.
type AccuracyLevel string

const (
	AccuracyVeryLow    AccuracyLevel = "VERY_LOW"
	AccuracyLow        AccuracyLevel = "LOW"
	AccuracyAcceptable AccuracyLevel = "ACCEPTABLE"
	AccuracyGood       AccuracyLevel = "GOOD"
	AccuracyExcellent  AccuracyLevel = "EXCELLENT"
)

// ClassifySignal maps signal strength to its quality band. Total over all
// reals: non-positive readings mean no signal.
func ClassifySignal(strength float64) SignalQuality {
	switch {
	case strength <= 0:
		return SignalNoSignal
	case strength < 30:
		return SignalWeak
	case strength < 70:
		return SignalModerate
	case strength < 90:
		return SignalGood
	default:
		return SignalExcellent
	}
}

// ClassifyAccuracy maps GPS accuracy in meters to its band. Total over all
// reals: anything at or under 10 m counts as excellent.
func ClassifyAccuracy(accuracyM float64) AccuracyLevel {
	switch {
	case accuracyM > 100:
		return AccuracyVeryLow
	case accuracyM > 50:
		return AccuracyLow
	case accuracyM > 20:
		return AccuracyAcceptable
	case accuracyM > 10:
		return AccuracyGood
	default:
		return AccuracyExcellent
	}
}
