package indicators

// MACD computes the MACD line as the element-wise difference of the fast and
// slow EMA series (truncated to the shorter of the two) and the signal line
// as an EMA of the MACD line.
func MACD(prices []float64, fast, slow, signal int) (macd, signalLine []float64) {
	emaFast := EMA(prices, fast)
	emaSlow := EMA(prices, slow)

	n := len(emaFast)
	if len(emaSlow) < n {
		n = len(emaSlow)
	}
	macd = make([]float64, n)
	for i := 0; i < n; i++ {
		macd[i] = emaFast[i] - emaSlow[i]
	}

	signalLine = EMA(macd, signal)
	return macd, signalLine
}
