package timeseries

// FahrenheitToCelsius converts a temperature reading. Appliances report
// Fahrenheit; stored samples are Celsius.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 0.555556
}

// PsiToMillibar converts a pressure reading. Appliances report PSI;
// stored samples are millibar.
func PsiToMillibar(psi float64) float64 {
	return psi * 68.9476
}
