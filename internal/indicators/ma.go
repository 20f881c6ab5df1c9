package indicators

import "math"

// SMA returns the simple moving average series. The first value covers the
// window ending at index period-1, so the result has len(prices)-period+1
// entries rounded to four decimal places.
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}

	out := make([]float64, 0, len(prices)-period+1)
	for i := period - 1; i < len(prices); i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += prices[j]
		}
		out = append(out, round(sum/float64(period), 4))
	}
	return out
}

// EMA returns the exponential moving average series seeded with the simple
// average of the first period prices. The smoothing accumulator is kept at
// full precision; only the emitted values after the seed are rounded.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}

	k := 2.0 / float64(period+1)
	prev := 0.0
	for _, p := range prices[:period] {
		prev += p
	}
	prev /= float64(period)

	out := make([]float64, 0, len(prices)-period+1)
	out = append(out, prev)
	for i := period; i < len(prices); i++ {
		prev = prices[i]*k + prev*(1-k)
		out = append(out, round(prev, 4))
	}
	return out
}

func round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
