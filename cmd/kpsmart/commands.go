package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/warp/kpsmart/dashboard"
	"github.com/warp/kpsmart/eventlog"
	"github.com/warp/kpsmart/report"
	"github.com/warp/kpsmart/scenario"
	"github.com/warp/kpsmart/state"
)

// timelineTail is how many revenue points the report prints.
const timelineTail = 10

type command struct {
	ctx    context.Context
	out    io.Writer
	log    *eventlog.Log
	state  *state.State
	logger *slog.Logger
}

func (c *command) dispatch(name string, args []string) error {
	switch name {
	case "scenarios":
		return c.scenarios()
	case "seed":
		if len(args) != 1 {
			return errUsage
		}
		return c.seed(args[0])
	case "report":
		return c.report(args)
	case "events":
		return c.events(args)
	}
	return fmt.Errorf("unknown command %q: %w", name, errUsage)
}

func (c *command) scenarios() error {
	table := newTable(c.out, "ID", "Name", "Description")
	for _, sc := range scenario.List() {
		table.Append([]string{sc.ID, sc.Name, sc.Description})
	}
	table.Render()
	return nil
}

func (c *command) seed(id string) error {
	if err := scenario.Load(c.ctx, c.state, id); err != nil {
		return err
	}
	c.logger.Info("scenario loaded", "scenario", id, "events", c.state.NumberOfEvents())
	fmt.Fprintf(c.out, "loaded %s: %d events\n", id, c.state.NumberOfEvents())
	return nil
}

func (c *command) report(args []string) error {
	flags := flag.NewFlagSet("report", flag.ContinueOnError)
	at := flags.Uint64("at", 0, "report as of this event id (0 for live)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	board, err := dashboard.New(c.state, c.logger).At(c.ctx, *at)
	if err != nil {
		return err
	}

	when := "live"
	if board.AtEvent != 0 {
		when = fmt.Sprintf("event %d", board.AtEvent)
	}
	fmt.Fprintf(c.out, "KPSmart dashboard (%s of %d events)\n", when, board.EventCount)
	fmt.Fprintf(c.out, "Total revenue:        %s\n", board.TotalRevenue().StringFixed(2))
	fmt.Fprintf(c.out, "Total expenditure:    %s\n", board.TotalExpenditure().StringFixed(2))
	fmt.Fprintf(c.out, "Average delivery:     %s\n", hours(board.AverageDeliveryTime()))
	if board.HasCriticalRoutes() {
		fmt.Fprintf(c.out, "Critical routes:      %d\n", len(board.CriticalRoutes()))
	}

	c.section("Amounts of mail")
	amounts := newTable(c.out, "Route", "Items", "Weight", "Volume")
	for _, a := range board.AmountsOfMail() {
		amounts.Append([]string{a.String(), strconv.Itoa(a.Items), a.Weight.String(), a.Volume.String()})
	}
	amounts.Render()

	c.section("Revenue and expenditure")
	groups := newTable(c.out, "Route", "Priority", "Items", "Revenue", "Expenditure", "Avg hours", "")
	for _, g := range board.RevenueExpenditure() {
		mark := ""
		if g.Critical() {
			mark = "CRITICAL"
		}
		groups.Append([]string{
			g.String(), g.Priority.String(), strconv.Itoa(g.Items),
			g.Revenue.StringFixed(2), g.Expenditure.StringFixed(2), hours(g.AverageDeliveryTime), mark,
		})
	}
	groups.Render()

	c.section("Domestic and international")
	c.slices(board.RevenueByDomesticInternational(), board.ExpenditureByDomesticInternational())

	c.section("By route")
	c.ring(board.RevenueByRoute(), board.ExpenditureByRoute())

	c.section("Monthly")
	months := newTable(c.out, "Month", "Events", "Revenue", "Expenditure", "Weight", "Volume")
	for _, m := range board.MonthlySummary() {
		months.Append([]string{
			m.Name, strconv.Itoa(m.EventCount),
			m.Revenue.StringFixed(2), m.Expenditure.StringFixed(2), m.Weight.String(), m.Volume.String(),
		})
	}
	months.Render()

	c.section("Recent revenue")
	timeline := newTable(c.out, "Event", "Date", "Revenue", "Expenditure")
	for _, p := range board.LastRevenueExpenditureOverTime(timelineTail) {
		timeline.Append([]string{
			strconv.FormatUint(p.EventID, 10), p.Date.Format(time.DateTime),
			p.Revenue.StringFixed(2), p.Expenditure.StringFixed(2),
		})
	}
	timeline.Render()
	return nil
}

func (c *command) slices(revenue, expenditure []report.Slice) {
	table := newTable(c.out, "Scope", "Revenue", "Expenditure")
	for i, r := range revenue {
		table.Append([]string{r.Name, r.Value.StringFixed(2), expenditure[i].Value.StringFixed(2)})
	}
	table.Render()
}

// ring prints the outer ring. Revenue and expenditure slices cover the
// same pairs in the same order.
func (c *command) ring(revenue, expenditure []report.Slice) {
	table := newTable(c.out, "Route", "Scope", "Revenue", "Offset", "Expenditure", "Offset")
	for i, r := range revenue {
		scope := report.Domestic
		if r.International {
			scope = report.International
		}
		e := expenditure[i]
		table.Append([]string{
			r.Name, scope, r.Value.StringFixed(2), r.Y.StringFixed(2), e.Value.StringFixed(2), e.Y.StringFixed(2),
		})
	}
	table.Render()
}

func (c *command) events(args []string) error {
	flags := flag.NewFlagSet("events", flag.ContinueOnError)
	after := flags.Uint64("after", 0, "print events after this id")
	if err := flags.Parse(args); err != nil {
		return err
	}

	table := newTable(c.out, "ID", "Timestamp", "Op", "Kind", "Entity", "Payload")
	for evt, err := range c.log.Entries(c.ctx) {
		if err != nil {
			return err
		}
		if evt.ID <= *after {
			continue
		}
		table.Append([]string{
			strconv.FormatUint(evt.ID, 10), evt.Timestamp.Format(time.RFC3339),
			string(evt.Op), string(evt.Kind), strconv.FormatUint(evt.EntityID, 10), string(evt.Payload),
		})
	}
	table.Render()
	return nil
}

func (c *command) section(title string) {
	fmt.Fprintf(c.out, "\n%s\n", title)
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	return table
}

func hours(h float64) string {
	if report.NoData(h) {
		return "no data"
	}
	return strconv.FormatFloat(h, 'f', 1, 64) + "h"
}
