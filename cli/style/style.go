package style

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	Primary = lipgloss.Color("#38BDF8")
	Green   = lipgloss.Color("#10B981")
	Red     = lipgloss.Color("#EF4444")
	Yellow  = lipgloss.Color("#F59E0B")
	Cyan    = lipgloss.Color("#06B6D4")
	Dim     = lipgloss.Color("#6B7280")
	White   = lipgloss.Color("#F9FAFB")

	// Text styles
	Subtitle = lipgloss.NewStyle().
			Foreground(Dim).
			Italic(true)

	Bold = lipgloss.NewStyle().Bold(true).Foreground(White)

	Healthy   = lipgloss.NewStyle().Foreground(Green).Bold(true)
	Unhealthy = lipgloss.NewStyle().Foreground(Red).Bold(true)
	Warning   = lipgloss.NewStyle().Foreground(Yellow)

	DimText = lipgloss.NewStyle().Foreground(Dim)

	// Status indicators
	DotHealthy   = Healthy.Render("●")
	DotUnhealthy = Unhealthy.Render("●")
	DotUnknown   = DimText.Render("●")

	// Remediation phases
	PhaseIdle       = DimText
	PhaseInProgress = lipgloss.NewStyle().Foreground(Yellow).Bold(true)
	PhaseCooldown   = lipgloss.NewStyle().Foreground(Cyan)

	// Attempt outcomes
	OutcomeSuccess = lipgloss.NewStyle().Foreground(Green)
	OutcomeFailure = lipgloss.NewStyle().Foreground(Red).Bold(true)
	OutcomeTimeout = lipgloss.NewStyle().Foreground(Yellow).Bold(true)

	// Step indicators
	StepPending = DimText
	StepRunning = lipgloss.NewStyle().Foreground(Yellow).Bold(true)
	StepDone    = lipgloss.NewStyle().Foreground(Green)
	StepFailed  = lipgloss.NewStyle().Foreground(Red).Bold(true)

	// Header / banner
	Banner = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	// Table
	TableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			BorderBottom(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(Dim).
			PaddingRight(2)

	// Detail card
	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#374151")).
			Padding(1, 2).
			MarginBottom(1)

	CardHealthy   = CardStyle.BorderForeground(Green)
	CardUnhealthy = CardStyle.BorderForeground(Red)

	// Error box
	ErrorBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Red).
			Foreground(Red).
			Padding(0, 1).
			MarginTop(1)

	// Success box
	SuccessBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Green).
			Foreground(Green).
			Padding(0, 1).
			MarginTop(1)

	// Key-value
	Key = lipgloss.NewStyle().Foreground(Dim).Width(14)
	Val = lipgloss.NewStyle().Foreground(White)
)

// StatusDot renders the health dot for a record; unknown services get a
// dim dot rather than a red one.
func StatusDot(known, healthy bool) string {
	switch {
	case !known:
		return DotUnknown
	case healthy:
		return DotHealthy
	default:
		return DotUnhealthy
	}
}

func ServiceDot(status string) string {
	switch status {
	case "up":
		return DotHealthy
	case "down":
		return DotUnhealthy
	default:
		return DotUnknown
	}
}

// Phase renders a remediation phase label in its color.
func Phase(phase string) string {
	switch phase {
	case "in_progress":
		return PhaseInProgress.Render("remediating")
	case "cooldown":
		return PhaseCooldown.Render("cooldown")
	default:
		return PhaseIdle.Render("idle")
	}
}

// Outcome renders an attempt outcome label in its color.
func Outcome(outcome string) string {
	switch outcome {
	case "success":
		return OutcomeSuccess.Render("success")
	case "failure":
		return OutcomeFailure.Render("failure")
	case "timeout":
		return OutcomeTimeout.Render("timeout")
	default:
		return DimText.Render(outcome)
	}
}
