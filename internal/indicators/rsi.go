package indicators

// RSI computes the Relative Strength Index over a sliding window of the last
// period price changes. One value is produced for every index >= period, so
// the result has len(prices)-period entries. Values are rounded to two
// decimal places. Fewer than period+1 prices yield an empty result.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) <= period {
		return nil
	}

	out := make([]float64, 0, len(prices)-period)
	for i := period; i < len(prices); i++ {
		gains := 0.0
		losses := 0.0
		for j := i - period + 1; j <= i; j++ {
			change := prices[j] - prices[j-1]
			if change >= 0 {
				gains += change
			} else {
				losses -= change
			}
		}
		div := losses
		if div == 0 {
			div = 1
		}
		rs := gains / div
		out = append(out, round(100-(100/(1+rs)), 2))
	}
	return out
}
