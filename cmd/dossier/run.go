package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smhanov/dossier"
	"github.com/smhanov/dossier/printer"
)

var (
	rawOutput  bool
	jsonOutput bool
	outPath    string
	quiet      bool
)

var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Research a query and print the report",
	Long: `Plans web searches for the query, runs them in batches of at most five,
summarizes each one and prints the final markdown report.

Progress goes to stderr; the report goes to stdout.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

var planCmd = &cobra.Command{
	Use:   "plan [query]",
	Short: "Print the search plan for a query as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPlan,
}

func init() {
	runCmd.Flags().BoolVar(&rawOutput, "raw", false, "Print markdown without terminal rendering")
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full result as JSON")
	runCmd.Flags().StringVarP(&outPath, "out", "o", "", "Also write the markdown report to this file")
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide progress output")
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	query := strings.Join(args, " ")
	var p dossier.Printer
	switch {
	case quiet:
	case jsonOutput:
		p = printer.NewJSONLines(cmd.ErrOrStderr())
	default:
		p = printer.NewConsole(cmd.ErrOrStderr())
	}

	mgr, err := buildManager(ctx, cfg, logger, p)
	if err != nil {
		return err
	}
	res, err := mgr.Run(ctx, query)
	if jsonOutput {
		if encErr := writeJSON(cmd.OutOrStdout(), res); encErr != nil {
			logger.Error("failed to encode result", zap.Error(encErr))
		}
		return err
	}
	if err != nil {
		return err
	}

	md := reportMarkdown(res.Report)
	if outPath != "" {
		if err := os.WriteFile(outPath, []byte(md), 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		logger.Info("report saved", zap.String("path", outPath), zap.String("trace_id", res.TraceID))
	}

	out := cmd.OutOrStdout()
	if !rawOutput {
		if rendered, err := renderMarkdown(md); err == nil {
			md = rendered
		} else {
			logger.Warn("markdown rendering failed, printing raw", zap.Error(err))
		}
	}
	fmt.Fprintln(out, md)
	if !quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "trace %s: %d searches (%d failed), cost $%.4f, %s\n",
			res.TraceID, len(res.Summaries), res.Failed(), res.Cost, res.Finished.Sub(res.Started).Round(time.Millisecond))
	}
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	mgr, err := buildManager(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	plan, err := mgr.Plan(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), plan)
}

// reportMarkdown appends the follow-up questions to the report body unless
// the writer already included them.
func reportMarkdown(r dossier.ReportData) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(r.MarkdownReport))
	if len(r.FollowUpQuestions) > 0 && !strings.Contains(strings.ToLower(r.MarkdownReport), "follow-up") {
		b.WriteString("\n\n## Follow-up questions\n\n")
		for _, q := range r.FollowUpQuestions {
			b.WriteString("- " + q + "\n")
		}
	}
	return b.String()
}

func renderMarkdown(md string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
