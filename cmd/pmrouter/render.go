package main

import (
	"fmt"
	"io"

	"github.com/holiman/uint256"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"pmrouter/internal/engine"
	"pmrouter/internal/fixed"
	"pmrouter/internal/model"
	"pmrouter/internal/scenario"
)

// formatAmount renders a base-unit amount shifted by decimals.
func formatAmount(v *uint256.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	d, err := decimal.NewFromString(v.Dec())
	if err != nil {
		return v.Dec()
	}
	return d.Shift(int32(-decimals)).String()
}

// formatPrice renders a basis-point price as a probability.
func formatPrice(bps uint16) string {
	return decimal.New(int64(bps), 0).Div(decimal.New(fixed.BPS, 0)).StringFixed(4)
}

func printSteps(out io.Writer, results []scenario.StepResult, decimals int) {
	table := tablewriter.NewWriter(out)
	table.Header("#", "Op", "Actor", "Out", "Result")
	for _, res := range results {
		detail := res.Detail
		if res.Err != nil {
			detail = fmt.Sprintf("%s: %v", model.KindOf(res.Err), res.Err)
		}
		table.Append(
			fmt.Sprintf("%d", res.Index),
			res.Op,
			res.Actor,
			formatAmount(res.Out, decimals),
			detail,
		)
	}
	table.Render()
}

func printPools(out io.Writer, pools []engine.PoolInfo, decimals int) {
	table := tablewriter.NewWriter(out)
	table.Header("Market", "Side", "Kind", "Price", "Capital", "Units", "Proceeds", "State")
	for _, p := range pools {
		table.Append(
			p.Key.Market.Hex(),
			model.SideName(p.Key.Yes),
			p.Key.Kind.String(),
			formatPrice(p.Key.Price),
			formatAmount(p.TotalCapital, decimals),
			formatAmount(p.TotalUnits, decimals),
			formatAmount(p.ProceedsCollected, decimals),
			string(p.State),
		)
	}
	table.Render()
}

func printBook(out io.Writer, title string, book engine.Orderbook, decimals int) {
	fmt.Fprintf(out, "\n%s\n", title)
	table := tablewriter.NewWriter(out)
	table.Header("Side", "Price", "Capital")
	for i := len(book.Asks) - 1; i >= 0; i-- {
		table.Append("ask", formatPrice(book.Asks[i].Price), formatAmount(book.Asks[i].Capital, decimals))
	}
	for _, lvl := range book.Bids {
		table.Append("bid", formatPrice(lvl.Price), formatAmount(lvl.Capital, decimals))
	}
	table.Render()
}

func printTrade(out io.Writer, res engine.TradeResult, decimals int) {
	table := tablewriter.NewWriter(out)
	table.Header("Price", "Shares", "Collateral")
	for _, f := range res.Fills {
		table.Append(formatPrice(f.Price), formatAmount(f.Shares, decimals), formatAmount(f.Collateral, decimals))
	}
	table.Render()

	fmt.Fprintf(out, "  out=%s pool=%s external=%s unspent=%s levels=%d source=%s\n",
		formatAmount(res.AmountOut, decimals),
		formatAmount(res.PoolOut, decimals),
		formatAmount(res.ExternalOut, decimals),
		formatAmount(res.Unspent, decimals),
		res.Levels,
		res.Source,
	)
}
