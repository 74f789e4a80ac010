package cli

import (
	"fmt"
	"strings"

	"github.com/Veraticus/finbot/internal/billing"
	"github.com/Veraticus/finbot/internal/report"
)

// RenderReport formats a report as a boxed category table.
func RenderReport(r report.Report) string {
	title := fmt.Sprintf("%s Report %s (%s to %s)", ChartIcon, r.AccountID,
		r.WindowStart.Format("Jan 2"), r.WindowEnd.Format("Jan 2, 2006"))

	if r.Empty() {
		return RenderBox(title, SubtleStyle.Render(report.NoDataMessage))
	}

	var b strings.Builder
	for _, c := range r.Categories {
		b.WriteString(LabelStyle.Render(string(c.Category)))
		b.WriteString(AmountStyle.Render("$" + c.Amount.StringFixed(2)))
		b.WriteString(SubtleStyle.Render(fmt.Sprintf("  %d txn", c.Count)))
		b.WriteString("\n")
	}
	b.WriteString(LabelStyle.Render(TitleStyle.Render("Total")))
	b.WriteString(AmountStyle.Render("$" + r.Total.StringFixed(2)))

	return RenderBox(title, b.String())
}

// RenderBillingSummary formats the outcome of a billing cycle.
func RenderBillingSummary(s billing.Summary) string {
	line := fmt.Sprintf("Billing complete: %d charges posted, %d subscriptions renewed", s.Charged, s.Renewed)
	if s.Skipped > 0 {
		line += fmt.Sprintf(", %d already handled", s.Skipped)
	}
	if s.Failed > 0 {
		return FormatWarning(fmt.Sprintf("%s, %d failed", line, s.Failed))
	}
	return FormatSuccess(line)
}
