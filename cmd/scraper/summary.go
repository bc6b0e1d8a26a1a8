package main

import (
	"io"
	"time"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/models"
	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

func printCrawlHeader(w io.Writer, cfg *config.Config, catalog *config.Catalog) {
	t := newTable(w, "Crawl")
	categoryID, _ := catalog.CategoryID(cfg.Category)
	t.AppendRow(table.Row{"Category", cfg.Category + " (" + categoryID + ")"})
	for i, a := range cfg.Attributes {
		key, _ := catalog.AttributeKey(a)
		label := ""
		if i == 0 {
			label = "Attributes"
		}
		t.AppendRow(table.Row{label, a + " (" + key + ")"})
	}
	t.AppendRow(table.Row{"Page size", cfg.PageSize})
	t.AppendRow(table.Row{"Data dir", cfg.DataDir})
	t.Render()
}

func printCrawlSummary(w io.Writer, result *models.CrawlResult) {
	t := newTable(w, "Crawl summary")
	t.AppendRows([]table.Row{
		{"Category", result.Category},
		{"Resumed", result.Resumed},
		{"Records", result.Records},
		{"Requests", result.Requests},
		{"Pages", result.Pages},
		{"Combinations", result.Combinations},
		{"Skipped", result.Skipped},
		{"Capped", result.Capped},
		{"Rejected", result.Rejected},
		{"Blocks", result.Blocks},
		{"Duration", duration(result.StartTime, result.EndTime)},
		{"Output", result.OutputPath},
	})
	t.Render()
}

func printNormalizeSummary(w io.Writer, result *models.NormalizeResult) {
	t := newTable(w, "Normalize summary")
	for i, in := range result.Inputs {
		label := ""
		if i == 0 {
			label = "Inputs"
		}
		t.AppendRow(table.Row{label, in})
	}
	t.AppendRows([]table.Row{
		{"Records", result.Records},
		{"Rows", result.Rows},
		{"Duplicates", result.Duplicates},
		{"Invalid", result.Invalid},
		{"Output", result.OutputPath},
	})
	t.Render()
}

func printLoadSummary(w io.Writer, result *models.LoadResult) {
	t := newTable(w, "Load summary")
	t.AppendRows([]table.Row{
		{"File", result.Path},
		{"Driver", result.Driver},
		{"Table", result.Table},
		{"Columns", result.Columns},
		{"Rows", result.Rows},
		{"Duration", result.Duration.Round(time.Millisecond)},
	})
	t.Render()
}

func printStatus(w io.Writer, category string, marker *models.ResumeMarker, intermediate int, finalPath string, finished bool) {
	t := newTable(w, "Status")
	t.AppendRow(table.Row{"Category", category})
	if marker == nil {
		t.AppendRow(table.Row{"In progress", false})
	} else {
		t.AppendRows([]table.Row{
			{"In progress", true},
			{"Attributes", marker.Attributes},
			{"Position", marker.Position.String()},
			{"Bucket values", marker.Values},
			{"Page offset", marker.PageOffset},
			{"Restarting", marker.Restarting},
			{"Updated", marker.UpdatedAt.Format(time.RFC3339)},
		})
	}
	t.AppendRow(table.Row{"Intermediate records", intermediate})
	if finished {
		t.AppendRow(table.Row{"Final output", finalPath})
	}
	t.Render()
}

func printCatalog(w io.Writer, catalog *config.Catalog) {
	categories := newTable(w, "Categories")
	categories.AppendHeader(table.Row{"Name", "ID"})
	for _, name := range catalog.Categories() {
		id, _ := catalog.CategoryID(name)
		categories.AppendRow(table.Row{name, id})
	}
	categories.Render()

	attributes := newTable(w, "Attributes")
	attributes.AppendHeader(table.Row{"Name", "Key"})
	for _, name := range catalog.Attributes() {
		key, _ := catalog.AttributeKey(name)
		attributes.AppendRow(table.Row{name, key})
	}
	attributes.Render()
}

func duration(start, end time.Time) time.Duration {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return end.Sub(start).Round(time.Millisecond)
}
