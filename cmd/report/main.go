package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"retail-signal-lab/internal/config"
	"retail-signal-lab/internal/logging"
	"retail-signal-lab/internal/reporting"
	"retail-signal-lab/internal/resources"
)

func main() {
	// Parse flags
	appConfigPath := flag.String("app-config", "", "Application config; the run log is read from database.postgres")
	date := flag.String("date", "", "Report day as YYYY-MM-DD (default: today, UTC)")
	output := flag.String("output", "", "Write the markdown report to this file instead of stdout")
	flag.Parse()

	ctx := context.Background()

	day := time.Now().UTC()
	if *date != "" {
		parsed, err := time.Parse("2006-01-02", *date)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -date %q: %v\n", *date, err)
			os.Exit(2)
		}
		day = parsed
	}

	app := config.Default()
	if *appConfigPath != "" {
		var err error
		if app, err = config.LoadAndValidate(*appConfigPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if app.Database.Postgres.DSN == "" {
		fmt.Fprintln(os.Stderr, "Warning: no database.postgres.dsn configured, the run log is empty")
	}

	logger, err := logging.New(app.Logging.Level, app.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Only the run log is needed; record sources are not opened.
	app.Sources = nil
	set, cleanup, err := resources.Open(ctx, app, logger, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to databases: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	report, err := reporting.NewGenerator(set.RunLog).Generate(ctx, day)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", *output, err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	if _, err := fmt.Fprint(out, reporting.RenderMarkdown(report)); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}
	if *output != "" {
		fmt.Printf("Report for %s written to %s (%d pipelines, %d errors)\n",
			report.Day.Format("2006-01-02"), *output, len(report.Pipelines), report.TotalErrors())
	}
}
