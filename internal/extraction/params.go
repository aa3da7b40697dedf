package extraction

import "time"

// Params holds the confidence constants used across the pipeline. The values
// are empirical and are exposed so they can be recalibrated from config.
type Params struct {
	// BareValueConfidence is assigned when the model returns a bare value
	// instead of {value, confidence}, or omits its confidence.
	BareValueConfidence float64
	// ClassifierFallbackCeiling caps the confidence of a fallback classification.
	ClassifierFallbackCeiling float64
	// RegexCeiling caps every confidence produced by the regex extractor.
	RegexCeiling float64
	Regex        RegexConfidence

	// MinYear is the earliest year accepted for a document date.
	MinYear int
	// CallTimeout bounds each vision model call. Zero leaves the caller's
	// context as the only bound.
	CallTimeout time.Duration
}

// RegexConfidence holds the per-detector confidences of the regex extractor.
type RegexConfidence struct {
	Date             float64
	Currency         float64
	LabelledCurrency float64
	Plate            float64
	Odometer         float64
	Keyword          float64
	Liters           float64
}

func DefaultParams() Params {
	return Params{
		BareValueConfidence:       0.7,
		ClassifierFallbackCeiling: 0.5,
		RegexCeiling:              0.75,
		Regex: RegexConfidence{
			Date:             0.7,
			Currency:         0.6,
			LabelledCurrency: 0.7,
			Plate:            0.75,
			Odometer:         0.65,
			Keyword:          0.6,
			Liters:           0.6,
		},
		MinYear:     1950,
		CallTimeout: 30 * time.Second,
	}
}

// normalize replaces out-of-range values with defaults.
func (p Params) normalize() Params {
	out := p
	def := DefaultParams()

	if !inUnit(out.BareValueConfidence) || out.BareValueConfidence == 0 || out.BareValueConfidence >= 1 {
		out.BareValueConfidence = def.BareValueConfidence
	}
	if !inUnit(out.ClassifierFallbackCeiling) || out.ClassifierFallbackCeiling > 0.5 {
		out.ClassifierFallbackCeiling = def.ClassifierFallbackCeiling
	}
	if !inUnit(out.RegexCeiling) || out.RegexCeiling == 0 || out.RegexCeiling > 0.75 {
		out.RegexCeiling = def.RegexCeiling
	}

	r := &out.Regex
	for _, pair := range []struct {
		v   *float64
		def float64
	}{
		{&r.Date, def.Regex.Date},
		{&r.Currency, def.Regex.Currency},
		{&r.LabelledCurrency, def.Regex.LabelledCurrency},
		{&r.Plate, def.Regex.Plate},
		{&r.Odometer, def.Regex.Odometer},
		{&r.Keyword, def.Regex.Keyword},
		{&r.Liters, def.Regex.Liters},
	} {
		if !inUnit(*pair.v) || *pair.v == 0 {
			*pair.v = pair.def
		}
		*pair.v = min(*pair.v, out.RegexCeiling)
	}

	if out.MinYear <= 0 {
		out.MinYear = def.MinYear
	}
	if out.CallTimeout < 0 {
		out.CallTimeout = def.CallTimeout
	}
	return out
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
