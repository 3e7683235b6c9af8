package metrics

import "math"

func floatFromBits(bits uint64) float64 { return math.Float64frombits(bits) }
func bitsFromFloat(v float64) uint64    { return math.Float64bits(v) }
