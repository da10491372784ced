package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"warden/cli/api"
	"warden/cli/style"
)

var (
	auditLimit int
	auditID    string
)

var auditCmd = &cobra.Command{
	Use:   "audit [service]",
	Short: "Show past remediation attempts",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAudit,
}

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "max entries to show")
	auditCmd.Flags().StringVar(&auditID, "id", "", "show one attempt in full")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	if auditID != "" {
		return showAuditEntry(auditID)
	}

	service := ""
	if len(args) == 1 {
		service = args[0]
	}

	entries, err := client.ListAudit(service, auditLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch audit log: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println(style.DimText.Render("No remediation attempts recorded."))
		return nil
	}

	header := fmt.Sprintf(
		"  %-9s %-10s %-20s %-10s %-7s %s",
		"OUTCOME", "ATTEMPT", "SERVICE", "TRIGGER", "STEPS", "FINISHED",
	)
	fmt.Println(style.TableHeader.Render(header))

	for _, entry := range entries {
		printAttemptRow(entry)
	}
	fmt.Println()

	return nil
}

func printAttemptRow(entry api.AuditEntry) {
	fmt.Printf("  %s %s %s %s %s %s\n",
		outcomeCell(entry.Outcome),
		lipgloss.NewStyle().Foreground(style.Cyan).Render(padRight(shortID(entry.AttemptID), 10)),
		style.Bold.Render(padRight(entry.Service, 20)),
		style.DimText.Render(padRight(entry.Trigger, 10)),
		padRight(fmt.Sprintf("%d", len(entry.Steps)), 7),
		style.DimText.Render(since(entry.FinishedAt)),
	)
}

func showAuditEntry(id string) error {
	entry, err := client.GetAuditEntry(id)
	if err != nil {
		return fmt.Errorf("failed to fetch attempt: %w", err)
	}

	cardStyle := style.CardHealthy
	if entry.Outcome != "success" {
		cardStyle = style.CardUnhealthy
	}

	var b strings.Builder

	b.WriteString(style.Bold.Render(entry.Service))
	b.WriteString("  " + style.Outcome(entry.Outcome))
	b.WriteString("\n\n")

	kvLine := func(k, v string) {
		b.WriteString(style.Key.Render(k))
		b.WriteString(style.Val.Render(v))
		b.WriteString("\n")
	}

	kvLine("Attempt", entry.AttemptID)
	kvLine("Trigger", entry.Trigger)
	kvLine("Finished", since(entry.FinishedAt))
	if d := attemptDuration(*entry); d != "" {
		kvLine("Duration", d)
	}

	if len(entry.Steps) > 0 {
		b.WriteString("\n")
		b.WriteString(style.TableHeader.Render("  Steps"))
		b.WriteString("\n")
		for _, step := range entry.Steps {
			mark := style.StepDone.Render("✓")
			if !step.OK {
				mark = style.StepFailed.Render("✗")
			}
			b.WriteString(fmt.Sprintf("  %s %s %s\n",
				mark,
				padRight(step.Action, 12),
				style.DimText.Render(step.Result),
			))
		}
	}

	fmt.Println(cardStyle.Render(b.String()))
	return nil
}

func attemptDuration(entry api.AuditEntry) string {
	started, err1 := time.Parse(time.RFC3339, entry.StartedAt)
	finished, err2 := time.Parse(time.RFC3339, entry.FinishedAt)
	if err1 != nil || err2 != nil {
		return ""
	}
	return finished.Sub(started).Round(time.Millisecond * 100).String()
}

func outcomeCell(outcome string) string {
	s := style.DimText
	switch outcome {
	case "success":
		s = style.OutcomeSuccess
	case "failure":
		s = style.OutcomeFailure
	case "timeout":
		s = style.OutcomeTimeout
	}
	return s.Render(padRight(outcome, 9))
}
