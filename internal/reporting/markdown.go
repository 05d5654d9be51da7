package reporting

import (
	"fmt"
	"strings"
	"time"

	"causal-commerce-lab/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	run := r.Run

	// Header
	sb.WriteString("# Simulation Run Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: `%s` | Tier: %s | Seed: %d\n\n", run.RunID, run.Tier, run.Seed))

	// Run Summary
	sb.WriteString("## Run Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Horizon | %s .. %s |\n", domain.FormatDateID(run.StartDateID), domain.FormatDateID(run.EndDateID)))
	sb.WriteString(fmt.Sprintf("| Attribution Policy | %s |\n", run.Policy))
	sb.WriteString(fmt.Sprintf("| Inventory | %s |\n", run.InventoryMode))
	sb.WriteString(fmt.Sprintf("| Cost Basis | %s |\n", run.CostBasis))
	sb.WriteString(fmt.Sprintf("| Orders | %d |\n", run.Orders))
	sb.WriteString(fmt.Sprintf("| Paid Orders | %d |\n", run.PaidOrders))
	sb.WriteString(fmt.Sprintf("| Bounced Orders | %d |\n", run.BouncedOrders))
	sb.WriteString(fmt.Sprintf("| Total Spend | %.2f |\n", run.TotalSpend))
	sb.WriteString(fmt.Sprintf("| Attributed Cost | %.2f |\n", run.AttributedCost))
	sb.WriteString(fmt.Sprintf("| Wasted Spend | %.2f |\n", run.WastedSpend))
	sb.WriteString("\n")

	// Channels
	sb.WriteString("## Channels\n\n")
	if len(r.Channels) > 0 {
		sb.WriteString("| Channel | Spend | Clicks | Paid | Bounced | Attributed | CPA | Utilization |\n")
		sb.WriteString("|---------|-------|--------|------|---------|------------|-----|-------------|\n")
		for _, c := range r.Channels {
			sb.WriteString(fmt.Sprintf("| %s | %.2f | %d | %d | %d | %.2f | %.4f | %.4f |\n",
				c.Channel, c.Spend, c.Clicks, c.PaidOrders, c.BouncedOrders,
				c.AttributedCost, c.CPA, c.Utilization))
		}
	} else {
		sb.WriteString("No exposure rows.\n")
	}
	sb.WriteString("\n")

	// Reasons
	sb.WriteString("## Attribution Outcomes\n\n")
	if len(r.Reasons) > 0 {
		sb.WriteString("| Reason | Orders | Share |\n")
		sb.WriteString("|--------|--------|-------|\n")
		for _, x := range r.Reasons {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.4f |\n", x.Reason, x.Orders, x.Share))
		}
	} else {
		sb.WriteString("No orders attributed.\n")
	}
	sb.WriteString("\n")

	// Data Quality
	dq := r.DataQuality
	sb.WriteString("## Data Quality\n\n")
	if dq.ObservedAvailable {
		sb.WriteString(fmt.Sprintf("Observed orders relabelled `%s`: %d\n\n", domain.ChannelUnknown, dq.Mislabeled))
		if len(dq.DroppedDays) > 0 {
			dates := make([]string, len(dq.DroppedDays))
			for i, d := range dq.DroppedDays {
				dates[i] = domain.FormatDateID(d)
			}
			sb.WriteString(fmt.Sprintf("Days missing from observed marketing export: %s\n\n", strings.Join(dates, ", ")))
		} else {
			sb.WriteString("No days missing from observed marketing export.\n\n")
		}
	} else {
		sb.WriteString("Observed copies are not stored; report rebuilt from ground truth.\n\n")
	}

	if len(dq.Checks) > 0 {
		sb.WriteString("### Invariant Checks\n\n")
		sb.WriteString("| Check | Threshold | Actual | Status |\n")
		sb.WriteString("|-------|-----------|--------|--------|\n")
		for _, check := range dq.Checks {
			status := "FAIL"
			if check.Pass {
				status = "PASS"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				check.Name, check.Threshold, check.Actual, status))
		}
		sb.WriteString("\n")

		if dq.AllChecksPassed {
			sb.WriteString("**All checks passed.**\n\n")
		} else {
			sb.WriteString("**Some checks failed.**\n\n")
		}
	}

	// Reproducibility
	rep := r.Reproducibility
	sb.WriteString("## Reproducibility\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Generator Version | %s |\n", rep.GeneratorVersion))
	sb.WriteString(fmt.Sprintf("| Config Hash | `%s` |\n", rep.ConfigHash))
	sb.WriteString(fmt.Sprintf("| Data Version | `%s` |\n", rep.DataVersion))
	if rep.ReplayCommand != "" {
		sb.WriteString(fmt.Sprintf("| Replay Command | `%s` |\n", rep.ReplayCommand))
	}
	sb.WriteString("\n")

	return sb.String()
}
