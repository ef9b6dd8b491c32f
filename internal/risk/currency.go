package risk

import (
	"math"
	"strconv"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"CAD": "CA$",
	"AUD": "A$",
	"JPY": "¥",
}

// formatCurrency renders an amount for factor strings: currency symbol,
// thousands separators, no fraction digits. Unknown currency codes fall
// back to "CODE 1,234" so the code is still visible.
func formatCurrency(amount float64, currency string) string {
	if currency == "" {
		currency = "USD"
	}

	n := int64(math.Round(amount))
	negative := n < 0
	if negative {
		n = -n
	}

	digits := strconv.FormatInt(n, 10)
	var grouped []byte
	for i, d := range []byte(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, d)
	}

	out := string(grouped)
	if symbol, ok := currencySymbols[currency]; ok {
		out = symbol + out
	} else {
		out = currency + " " + out
	}
	if negative {
		out = "-" + out
	}
	return out
}
