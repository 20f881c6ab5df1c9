package indicators

import "math"

// BollingerBands returns the upper, middle and lower band series. The middle
// band is the SMA of the window; the spread is stdDev population standard
// deviations around it. All three series are aligned and have
// len(prices)-period+1 entries.
func BollingerBands(prices []float64, period int, stdDev float64) (upper, middle, lower []float64) {
	middle = SMA(prices, period)
	if middle == nil {
		return nil, nil, nil
	}

	upper = make([]float64, 0, len(middle))
	lower = make([]float64, 0, len(middle))
	for i := period - 1; i < len(prices); i++ {
		avg := middle[i-period+1]
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := prices[j] - avg
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		upper = append(upper, avg+stdDev*sd)
		lower = append(lower, avg-stdDev*sd)
	}
	return upper, middle, lower
}
