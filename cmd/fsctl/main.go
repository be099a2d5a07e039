// main.go - Admin control tool for funnelscope
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/joho/godotenv"

	"funnelscope/internal"
	"funnelscope/internal/analytics"
	"funnelscope/internal/export"
	"funnelscope/internal/seeder"
	"funnelscope/internal/sessions"
	"funnelscope/internal/timeframe"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&SeedCommand{},
	&AnalyzeCommand{},
	&ExportCommand{},
	&ResetCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	// Load .env file at the very start
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}

	flag.Parse()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	// Parse command and arguments
	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}

	// Ensure app is cleaned up
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: Cleanup error: %v", err)
		}
	}()

	// Execute the command
	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	log.Println("Running database migrations...")

	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB with synthetic sessions
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with synthetic shopper sessions" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	count := fs.Int("sessions", 1000, "number of sessions to generate")
	seed := fs.Uint64("seed", 0, "fixed generator seed (0 picks a random one)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	se := seeder.NewSeeder(app.DBManager, slog.Default(), *count)
	if *seed != 0 {
		se.WithSeed(*seed)
	}

	return se.Run(ctx)
}

// AnalyzeCommand computes and prints the funnel report
type AnalyzeCommand struct{}

func (c *AnalyzeCommand) Name() string        { return "analyze" }
func (c *AnalyzeCommand) Description() string { return "Computes the funnel report and prints it" }

func (c *AnalyzeCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	from := fs.String("from", "", "start date (YYYY-MM-DD)")
	to := fs.String("to", "", "end date (YYYY-MM-DD, inclusive)")
	days := fs.Int("days", 0, "shorthand for the last N days (overrides -from/-to)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tf, err := resolveTimeFrame(*days, *from, *to)
	if err != nil {
		return err
	}
	params := analytics.NewReportParams(tf)

	db := app.DBManager.GetConnection()
	report, err := analytics.BuildReport(ctx, db, params)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	summary, err := analytics.GetSummary(db, params)
	if err != nil {
		return fmt.Errorf("failed to build summary: %w", err)
	}

	printReport(report, summary)
	return nil
}

func printReport(report *analytics.FullReport, summary *analytics.Summary) {
	fmt.Println("Funnel Analysis")
	fmt.Println()
	fmt.Printf("%-4s %-22s %10s %10s %10s\n", "#", "Stage", "Sessions", "Conv.", "Drop-off")
	for i, stage := range report.Global.Stages {
		drop := "-"
		if i < len(report.Global.Transitions) {
			drop = formatPercent(report.Global.Transitions[i].DropoffRate)
		}
		fmt.Printf("%-4d %-22s %10d %10s %10s\n",
			stage.Rank, stage.Stage, stage.Count, formatPercent(stage.ConversionRate), drop)
	}

	fmt.Println()
	fmt.Println("Top Bottlenecks:")
	for i, tr := range report.Global.Bottlenecks {
		if i >= 3 {
			break
		}
		fmt.Printf("%d. %s → %s: %s drop-off (%s severity, %d sessions lost)\n",
			i+1, tr.From, tr.To, formatPercent(tr.DropoffRate), tr.Severity, tr.SessionsLost)
	}
	if len(report.Global.Bottlenecks) == 0 {
		fmt.Println("(no traffic in range)")
	}

	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("- Total events: %d\n", summary.TotalEvents)
	fmt.Printf("- Total sessions: %d\n", summary.TotalSessions)
	fmt.Printf("- Funnel entries: %d\n", summary.FunnelEntries)
	fmt.Printf("- Purchases: %d\n", summary.Purchases)
	fmt.Printf("- Overall conversion: %s\n", formatPercent(summary.OverallConversion))
	fmt.Printf("- Total revenue: %.2f\n", summary.TotalRevenue)
	fmt.Printf("- Average order value: %.2f\n", summary.AverageOrderValue)
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// resolveTimeFrame turns the shared range flags into a time frame; nil
// means all time.
func resolveTimeFrame(days int, from, to string) (*timeframe.TimeFrame, error) {
	if days > 0 {
		return timeframe.LastDays(days, time.Now().UTC()), nil
	}
	return timeframe.NewParser().Parse(timeframe.ParserParams{FromDate: from, ToDate: to})
}

// ExportCommand writes the CSV analysis files
type ExportCommand struct{}

func (c *ExportCommand) Name() string        { return "export" }
func (c *ExportCommand) Description() string { return "Exports the analysis tables as CSV files" }

func (c *ExportCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	from := fs.String("from", "", "start date (YYYY-MM-DD)")
	to := fs.String("to", "", "end date (YYYY-MM-DD, inclusive)")
	days := fs.Int("days", 0, "shorthand for the last N days (overrides -from/-to)")
	dir := fs.String("dir", app.Config.ExportDirectory, "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tf, err := resolveTimeFrame(*days, *from, *to)
	if err != nil {
		return err
	}

	db := app.DBManager.GetConnection()
	report, err := analytics.BuildReport(ctx, db, analytics.NewReportParams(tf))
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	exporter := export.NewExporter(*dir, app.Logger)
	paths, err := exporter.ExportReport(report)
	if err != nil {
		return err
	}

	for _, path := range paths {
		fmt.Println(path)
	}
	return nil
}

// ResetCommand deletes all collected data
type ResetCommand struct{}

func (c *ResetCommand) Name() string        { return "reset" }
func (c *ResetCommand) Description() string { return "Deletes every session and stage event" }

func (c *ResetCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	force := fs.Bool("force", false, "skip confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*force {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("This deletes every session and event. Type 'yes' to continue: ")
		input, _ := reader.ReadString('\n')
		if strings.TrimSpace(input) != "yes" {
			fmt.Println("Aborted")
			return nil
		}
	}

	db := app.DBManager.GetConnection()
	if err := sessions.Reset(db); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}

	log.Println("All sessions and events deleted")
	return nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db := app.DBManager.GetConnection()

	sessionCount, err := sessions.CountSessions(db)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	eventCount, err := sessions.CountEvents(db, nil)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Sessions: %d", sessionCount)
	log.Printf("- Stage events: %d", eventCount)
	log.Printf("- Background jobs running: %t", app.Scheduler.IsRunning())

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	log.Printf("- Max Open Connections: %d", sqlDB.Stats().MaxOpenConnections)
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Printf("- In Use: %d", sqlDB.Stats().InUse)
	log.Printf("- Idle: %d", sqlDB.Stats().Idle)

	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fmt.Println("Usage: fsctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}

	return nil
}

// Helper functions

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	fmt.Println("Usage: fsctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}

	os.Exit(1)
}
