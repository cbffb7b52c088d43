package esmutils

// Meter registers are kept in 1/10 Wh.

func DeciWhToWh(dwh uint64) float64 {
	return float64(dwh) / 10
}

func DeciWhToKWh(dwh uint64) float64 {
	return float64(dwh) / 10000
}
