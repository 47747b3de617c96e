package abandoned

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"
)

type reminderLine struct {
	Title    string
	Quantity int
	Price    string
}

type reminderView struct {
	StoreName string
	Name      string
	Lines     []reminderLine
	Total     string
	CartURL   string
}

var reminderHTML = template.Must(template.New("reminder").Parse(`<!doctype html>
<html>
<body style="font-family: sans-serif; color: #1f2933;">
<p>Hi {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
<p>You left a few things in your {{.StoreName}} cart:</p>
<table cellpadding="6" style="border-collapse: collapse;">
{{range .Lines}}<tr><td>{{.Title}}</td><td>&times; {{.Quantity}}</td><td align="right">{{.Price}}</td></tr>
{{end}}<tr><td colspan="2"><strong>Total</strong></td><td align="right"><strong>{{.Total}}</strong></td></tr>
</table>
<p><a href="{{.CartURL}}">Return to your cart</a></p>
</body>
</html>
`))

func (v reminderView) subject() string {
	return fmt.Sprintf("You left something in your %s cart", v.StoreName)
}

func (v reminderView) html() (string, error) {
	var buf bytes.Buffer
	if err := reminderHTML.Execute(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (v reminderView) text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You left a few things in your %s cart:\n\n", v.StoreName)
	for _, line := range v.Lines {
		fmt.Fprintf(&b, "- %s x%d  %s\n", line.Title, line.Quantity, line.Price)
	}
	fmt.Fprintf(&b, "\nTotal: %s\n\nReturn to your cart: %s\n", v.Total, v.CartURL)
	return b.String()
}

func formatMoney(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(2) + " " + strings.ToUpper(currency)
}
