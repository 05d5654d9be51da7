package reporting

import (
	"fmt"
	"strings"

	"causal-commerce-lab/internal/domain"
)

// RenderExposureCSV renders fact_marketing_daily rows as CSV string.
func RenderExposureCSV(rows []domain.DailyExposure) string {
	var sb strings.Builder

	// Header
	sb.WriteString("run_id,date_id,date,channel,spend,impressions,raw_clicks,")
	sb.WriteString("adstock_value,efficiency_factor,effective_click_rate,cost_per_click\n")

	// Rows
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%s,%.2f,%.2f,%d,%.4f,%.6f,%.6f,%.6f\n",
			r.RunID,
			r.DateID,
			domain.FormatDateID(r.DateID),
			r.Channel,
			r.Spend,
			r.Impressions,
			r.RawClicks,
			r.AdstockValue,
			r.EfficiencyFactor,
			r.EffectiveClickRate,
			r.CostPerClick,
		))
	}

	return sb.String()
}

// RenderAttributionCSV renders per-order attribution rows as CSV string.
// Used for both the ground truth and the observed (degraded) copy.
func RenderAttributionCSV(rows []domain.AttributionResult) string {
	var sb strings.Builder

	sb.WriteString("run_id,order_id,date_id,channel,acquisition_cost,reason,consumed_channel,click_date_id\n")

	for _, r := range rows {
		clickDate := ""
		if r.ClickDateID != 0 {
			clickDate = fmt.Sprintf("%d", r.ClickDateID)
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%s,%.6f,%s,%s,%s\n",
			r.RunID,
			r.OrderID,
			r.DateID,
			r.Channel,
			r.AcquisitionCost,
			r.Reason,
			r.ConsumedChannel,
			clickDate,
		))
	}

	return sb.String()
}

// RenderItemCostsCSV renders item-level acquisition cost rows as CSV string.
func RenderItemCostsCSV(rows []domain.ItemCost) string {
	var sb strings.Builder

	sb.WriteString("run_id,order_id,item_seq,date_id,channel,price,gmv_share,acquisition_cost\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,%s,%.2f,%.6f,%.6f\n",
			r.RunID,
			r.OrderID,
			r.ItemSeq,
			r.DateID,
			r.Channel,
			r.Price,
			r.GMVShare,
			r.AcquisitionCost,
		))
	}

	return sb.String()
}

// RenderDailyPnLCSV renders the daily marketing P&L as CSV string.
func RenderDailyPnLCSV(rows []domain.DailyPnL) string {
	var sb strings.Builder

	sb.WriteString("run_id,date_id,date,total_spend,attributed_cost,wasted_spend,orders,paid_orders\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%.2f,%.6f,%.6f,%d,%d\n",
			r.RunID,
			r.DateID,
			domain.FormatDateID(r.DateID),
			r.TotalSpend,
			r.AttributedCost,
			r.WastedSpend,
			r.Orders,
			r.PaidOrders,
		))
	}

	return sb.String()
}

// RenderChannelSummaryCSV renders the per-channel rollup as CSV string.
func RenderChannelSummaryCSV(rows []ChannelRow) string {
	var sb strings.Builder

	sb.WriteString("channel,spend,clicks,paid_orders,bounced_orders,attributed_cost,cpa,utilization\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%.2f,%d,%d,%d,%.6f,%.6f,%.6f\n",
			r.Channel,
			r.Spend,
			r.Clicks,
			r.PaidOrders,
			r.BouncedOrders,
			r.AttributedCost,
			r.CPA,
			r.Utilization,
		))
	}

	return sb.String()
}
