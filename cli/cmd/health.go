package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"warden/cli/style"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the control plane and its backends",
	Aliases: []string{"doctor"},
	RunE:    runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	h, err := client.Health()
	if err != nil {
		fmt.Println(style.ErrorBox.Render("Cannot reach Warden at " + serverURL))
		return err
	}

	fmt.Println(style.Banner.Render("🛡 WARDEN HEALTH"))
	fmt.Println()

	backendNames := map[string]string{
		"postgres": "PostgreSQL",
		"nomad":    "Nomad",
		"consul":   "Consul",
		"s3":       "S3",
	}

	order := []string{"postgres", "nomad", "consul", "s3"}
	allUp := true

	for _, key := range order {
		status, configured := h.Services[key]
		name := backendNames[key]

		dot := style.ServiceDot(status)
		label := style.DimText.Render("not configured")
		if configured {
			switch status {
			case "up":
				label = style.Healthy.Render("up")
			case "down":
				label = style.Unhealthy.Render("down")
				allUp = false
			default:
				label = style.Warning.Render(status)
			}
		}

		fmt.Printf("  %s  %-14s %s\n", dot, style.Bold.Render(name), label)
	}

	fmt.Println()
	fmt.Printf("  %s %s\n", style.Key.Render("Monitored"), style.Val.Render(fmt.Sprintf("%d services", h.Monitored)))
	fmt.Printf("  %s %s\n", style.Key.Render("WS clients"), style.Val.Render(fmt.Sprintf("%d", h.WSClients)))
	if h.ConsulLeader != "" {
		fmt.Printf("  %s %s\n", style.Key.Render("Consul leader"), style.Val.Render(h.ConsulLeader))
	}
	fmt.Println()

	if allUp {
		fmt.Println(style.SuccessBox.Render("Control plane healthy"))
	} else {
		fmt.Println(style.ErrorBox.Render("Some backends are down, remediation may be degraded"))
	}

	return nil
}
