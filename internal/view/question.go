package view

import (
	"regexp"
	"strings"
)

var (
	dollarAmountRe = regexp.MustCompile(`\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	tickerRe       = regexp.MustCompile(`\b[A-Z]{2,6}\b`)
)

// ExtractPrice returns the first dollar amount in a market question with the
// currency symbol and thousands separators removed, or "" if there is none.
func ExtractPrice(question string) string {
	match := dollarAmountRe.FindStringSubmatch(question)
	if len(match) < 2 {
		return ""
	}
	return strings.ReplaceAll(match[1], ",", "")
}

// SymbolFromQuestion guesses a chart symbol from the first all-caps ticker in
// the question, e.g. "Will ETH be above $3,500?" gives "ETHUSD".
func SymbolFromQuestion(question string) string {
	for _, word := range tickerRe.FindAllString(question, -1) {
		switch word {
		case "USD", "USDC", "UTC", "AM", "PM":
			continue
		}
		return word + "USD"
	}
	return ""
}
