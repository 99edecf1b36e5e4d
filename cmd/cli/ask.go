package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"querypilot-ai/internal/di"
	"querypilot-ai/internal/services"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var showStatements bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question",
	Long: `The ask command classifies the question, generates and runs SQL against the
configured database when needed, and prints the answer. Press Ctrl+C to cancel.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return errors.New("question must not be empty")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, container, cleanup, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		orchestrator, err := di.GetOrchestrator(container)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}

		spinner, _ := pterm.DefaultSpinner.Start("Thinking...")
		outcome, err := orchestrator.Process(ctx, question)
		if err != nil {
			spinner.Warning("Cancelled")
			return nil
		}

		if outcome.Status == services.StatusAnswered {
			spinner.Success(fmt.Sprintf("Answered in %s", outcome.Duration.Round(time.Millisecond)))
		} else {
			spinner.Fail(string(outcome.Status))
		}

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(string(outcome.Intent))).
			WithPadding(1).
			Println(outcome.Response)

		if showStatements && len(outcome.Statements) > 0 {
			printStatements(outcome)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&showStatements, "sql", false, "Show the SQL statements that were executed")
}

func printStatements(outcome *services.QueryOutcome) {
	data := pterm.TableData{{"Iteration", "Result", "Rows", "SQL"}}
	for _, stmt := range outcome.Statements {
		result := pterm.FgGreen.Sprint("ok")
		if !stmt.Succeeded {
			result = pterm.FgRed.Sprint(stmt.ErrorKind)
		}
		data = append(data, []string{
			strconv.Itoa(stmt.Iteration),
			result,
			strconv.Itoa(stmt.RowCount),
			strings.Join(strings.Fields(stmt.SQL), " "),
		})
	}

	pterm.Println()
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	pterm.Printf("request id %s, %d corrections\n", outcome.RequestID, outcome.Corrections)
}
