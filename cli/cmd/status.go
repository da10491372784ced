package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"warden/cli/api"
	"warden/cli/style"
)

var statusCmd = &cobra.Command{
	Use:     "status [service]",
	Short:   "Show cluster health or one service in detail",
	Aliases: []string{"s"},
	Args:    cobra.MaximumNArgs(1),
	RunE:    runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return showServiceDetail(args[0])
	}
	return showCluster()
}

func showCluster() error {
	st, err := client.Status()
	if err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}

	overall := style.Healthy.Render("healthy")
	if st.Status != "healthy" {
		overall = style.Unhealthy.Render(st.Status)
	}

	fmt.Println(style.Banner.Render("🛡 WARDEN") +
		style.Subtitle.Render(fmt.Sprintf("  cluster %s  %s  %d/%d up", st.Cluster, overall, st.Healthy, st.Total)))
	fmt.Println()

	header := fmt.Sprintf(
		"  %-2s  %-20s %-14s %-10s %-6s %-12s %s",
		"", "SERVICE", "PROBE", "STATE", "FAILS", "CHECKED", "REMEDIATION",
	)
	fmt.Println(style.TableHeader.Render(header))

	for _, v := range st.Services {
		printServiceRow(v)
	}
	fmt.Println()

	if len(st.RecentAttempts) > 0 {
		fmt.Println(style.TableHeader.Render("  Recent Remediations"))
		limit := min(5, len(st.RecentAttempts))
		for _, entry := range st.RecentAttempts[:limit] {
			printAttemptRow(entry)
		}
		fmt.Println()
	}

	if s := st.Attempts24h; s != nil && s.Attempts > 0 {
		fmt.Println(style.DimText.Render(fmt.Sprintf(
			"  last 24h: %d attempts (%d success, %d failure, %d timeout)",
			s.Attempts, s.Successes, s.Failures, s.Timeouts)))
		fmt.Println()
	}

	return nil
}

func printServiceRow(v api.ServiceView) {
	dot := style.StatusDot(v.Record.Known, v.Record.Healthy)
	name := style.Bold.Render(padRight(v.Config.Name, 20))
	probe := lipgloss.NewStyle().Foreground(style.Cyan).Render(padRight(v.Config.Probe, 14))

	state := "unknown"
	stateStyle := style.DimText
	switch {
	case !v.Record.Known:
	case v.Record.Healthy:
		state, stateStyle = "healthy", style.Healthy
	default:
		state, stateStyle = "unhealthy", style.Unhealthy
	}

	fails := style.DimText.Render(padRight("0", 6))
	if v.Record.ConsecutiveFailures > 0 {
		fails = style.Warning.Render(padRight(fmt.Sprintf("%d/%d", v.Record.ConsecutiveFailures, v.Config.FailureThreshold), 6))
	}

	checked := "never"
	if v.Record.Known {
		checked = since(v.Record.LastCheckedAt)
	}

	fmt.Printf("  %s  %s %s %s %s %s %s\n",
		dot, name, probe,
		stateStyle.Render(padRight(state, 10)),
		fails,
		style.DimText.Render(padRight(checked, 12)),
		remediationLabel(v.Remediation),
	)
}

func showServiceDetail(name string) error {
	v, err := client.GetService(name)
	if err != nil {
		return fmt.Errorf("failed to fetch service: %w", err)
	}

	cardStyle := style.CardHealthy
	if !v.Record.Known || !v.Record.Healthy {
		cardStyle = style.CardUnhealthy
	}

	var b strings.Builder

	b.WriteString(style.Bold.Render(v.Config.Name))
	b.WriteString("  ")
	b.WriteString(lipgloss.NewStyle().Foreground(style.Cyan).Render(v.Config.Probe))
	switch {
	case !v.Record.Known:
		b.WriteString("  " + style.DimText.Render("● unknown"))
	case v.Record.Healthy:
		b.WriteString("  " + style.Healthy.Render("● healthy"))
	default:
		b.WriteString("  " + style.Unhealthy.Render("● unhealthy"))
	}
	b.WriteString("\n\n")

	kvLine := func(k, v string) {
		b.WriteString(style.Key.Render(k))
		b.WriteString(style.Val.Render(v))
		b.WriteString("\n")
	}

	kvLine("Job", v.Config.Namespace+"/"+v.Config.Job)
	kvLine("Endpoint", fmt.Sprintf("%s:%d%s", v.Config.Host, v.Config.Port, v.Config.HealthPath))
	kvLine("Target", v.Config.Target)
	kvLine("Interval", v.Config.Interval)
	kvLine("Threshold", fmt.Sprintf("%d", v.Config.FailureThreshold))
	kvLine("Remediation", v.Config.Remediation)
	if v.Record.Known {
		kvLine("Checked", since(v.Record.LastCheckedAt))
		kvLine("Transition", since(v.Record.LastTransitionAt))
	}
	if v.Record.ConsecutiveFailures > 0 {
		kvLine("Failures", fmt.Sprintf("%d consecutive", v.Record.ConsecutiveFailures))
	}
	if v.Record.StaleReports > 0 {
		kvLine("Stale", fmt.Sprintf("%d reports dropped", v.Record.StaleReports))
	}
	kvLine("Phase", remediationLabel(v.Remediation))

	if len(v.Record.Detail) > 0 {
		b.WriteString("\n")
		b.WriteString(style.TableHeader.Render("  Probe detail"))
		b.WriteString("\n")
		for _, k := range sortedKeys(v.Record.Detail) {
			b.WriteString(fmt.Sprintf("  %s %s\n",
				style.DimText.Render(padRight(k, 14)), v.Record.Detail[k]))
		}
	}

	fmt.Println(cardStyle.Render(b.String()))
	return nil
}

// remediationLabel adds the remaining cooldown to the phase label so the
// operator can see when the next automatic attempt becomes possible.
func remediationLabel(st api.RemediationState) string {
	label := style.Phase(st.Phase)
	if st.Phase == "cooldown" {
		if until, err := time.Parse(time.RFC3339, st.CooldownUntil); err == nil {
			if left := time.Until(until).Round(time.Second); left > 0 {
				label += style.DimText.Render(fmt.Sprintf(" (%s left)", left))
			}
		}
	}
	return label
}

// since renders an RFC3339 timestamp as a rounded age.
func since(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return t.Format("Jan 02 15:04")
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
