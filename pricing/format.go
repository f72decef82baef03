package pricing

import "fmt"

// FormatCost renders a USD amount with precision scaled to its magnitude:
// sub-cent amounts keep 6 decimals, sub-dollar 4, everything else 2.
func FormatCost(costUSD float64) string {
	switch {
	case costUSD < 0.01:
		return fmt.Sprintf("$%.6f", costUSD)
	case costUSD < 1:
		return fmt.Sprintf("$%.4f", costUSD)
	default:
		return fmt.Sprintf("$%.2f", costUSD)
	}
}
