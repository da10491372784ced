package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"warden/cli/style"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <service>",
	Short: "Show recent health reports for a service",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "max reports to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	reports, err := client.History(args[0], historyLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch history: %w", err)
	}

	if len(reports) == 0 {
		fmt.Println(style.DimText.Render("No reports recorded."))
		return nil
	}

	header := fmt.Sprintf("  %-2s  %-10s %-14s %s", "", "STATE", "OBSERVED", "DETAIL")
	fmt.Println(style.TableHeader.Render(header))

	for _, rep := range reports {
		state := style.Healthy.Render(padRight("healthy", 10))
		if !rep.Healthy {
			state = style.Unhealthy.Render(padRight("unhealthy", 10))
		}
		fmt.Printf("  %s  %s %s %s\n",
			style.StatusDot(true, rep.Healthy),
			state,
			padRight(since(rep.ObservedAt), 14),
			style.DimText.Render(detailSummary(rep.Detail)),
		)
	}
	fmt.Println()

	return nil
}

func detailSummary(detail map[string]string) string {
	if len(detail) == 0 {
		return ""
	}
	for _, key := range []string{"error", "status", "leader", "statusCode"} {
		if v := detail[key]; v != "" {
			return key + "=" + v
		}
	}
	for _, k := range sortedKeys(detail) {
		return k + "=" + detail[k]
	}
	return ""
}
