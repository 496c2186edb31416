package analysis

// Classify judges a measurement against its reference range. A nil ref
// means no range was found: the result keeps nil bounds, FlagNormal and
// HasReference false, so a missing reference never reads as an anomaly.
// Bounds are inclusive: value == Min or value == Max is normal.
func Classify(m Measurement, ref *ReferenceRange) ClassifiedResult {
	result := ClassifiedResult{
		TestName: m.TestName,
		Value:    m.Value,
		Unit:     m.Unit,
		Flag:     FlagNormal,
	}
	if ref == nil {
		return result
	}

	min, max := ref.Min, ref.Max
	result.ReferenceMin = &min
	result.ReferenceMax = &max
	result.HasReference = true

	switch {
	case m.Value < min:
		result.Flag = FlagLow
		result.IsAbnormal = true
	case m.Value > max:
		result.Flag = FlagHigh
		result.IsAbnormal = true
	}
	return result
}
