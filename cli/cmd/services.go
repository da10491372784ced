package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"warden/cli/style"
)

var servicesCmd = &cobra.Command{
	Use:     "services",
	Short:   "List the monitored services and their probe config",
	Aliases: []string{"svc"},
	RunE:    runServices,
}

func init() {
	rootCmd.AddCommand(servicesCmd)
}

func runServices(cmd *cobra.Command, args []string) error {
	views, err := client.ListServices()
	if err != nil {
		return fmt.Errorf("failed to fetch services: %w", err)
	}

	if len(views) == 0 {
		fmt.Println(style.DimText.Render("No services configured."))
		return nil
	}

	header := fmt.Sprintf(
		"  %-20s %-14s %-9s %-10s %-20s %s",
		"SERVICE", "PROBE", "INTERVAL", "THRESHOLD", "REMEDIATION", "TARGET",
	)
	fmt.Println(style.TableHeader.Render(header))

	for _, v := range views {
		fmt.Printf("  %s %s %s %s %s %s\n",
			style.Bold.Render(padRight(v.Config.Name, 20)),
			lipgloss.NewStyle().Foreground(style.Cyan).Render(padRight(v.Config.Probe, 14)),
			padRight(v.Config.Interval, 9),
			padRight(fmt.Sprintf("%d", v.Config.FailureThreshold), 10),
			padRight(v.Config.Remediation, 20),
			style.DimText.Render(v.Config.Target),
		)
	}
	fmt.Println()

	return nil
}
