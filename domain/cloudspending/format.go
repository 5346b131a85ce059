package cloudspending

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatMoney renders amount with thousands grouping and two decimals, e.g. €25,000.00.
func FormatMoney(symbol string, amount decimal.Decimal) string {
	return symbol + printer.Sprintf("%.2f", amount.Round(2).InexactFloat64())
}
