package funcs

import (
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
)

var TemplateFuncs = template.FuncMap{
	"now":        time.Now,
	"formatTime": formatTime,
	"formatNGN":  formatNGN,
	"upper":      strings.ToUpper,
	"lower":      strings.ToLower,
}

func formatTime(format string, t time.Time) string {
	return t.Format(format)
}

func formatNGN(amount decimal.Decimal) string {
	return "NGN " + amount.StringFixed(2)
}
