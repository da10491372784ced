package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"warden/cli/api"
	"warden/cli/style"
)

var remediateForce bool

var remediateCmd = &cobra.Command{
	Use:   "remediate <service>",
	Short: "Trigger a remediation attempt and watch it run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemediate,
}

func init() {
	remediateCmd.Flags().BoolVar(&remediateForce, "force", false, "override an active cooldown")
	rootCmd.AddCommand(remediateCmd)
}

func runRemediate(cmd *cobra.Command, args []string) error {
	service := args[0]

	// The remediation kind decides which steps will run, so fetch the
	// config up front to draw the right checklist.
	view, err := client.GetService(service)
	if err != nil {
		return fmt.Errorf("failed to fetch service: %w", err)
	}

	m := newRemediateModel(service, view.Config.Remediation, remediateForce)
	p := tea.NewProgram(m)
	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	rm := finalModel.(remediateModel)
	if rm.failed {
		return fmt.Errorf("remediation did not succeed")
	}
	return nil
}

// --- Messages ---

type wsMsg struct {
	Type    string                 `json:"type"`
	Service string                 `json:"service"`
	Payload map[string]interface{} `json:"payload"`
}

type stepUpdate struct {
	step   string
	status string
}

type attemptStarted struct {
	id string
	ch chan tea.Msg
}

type attemptDone struct{ outcome string }
type attemptRejected struct{ reason, message string }
type wsError struct{ err error }

// --- Model ---

type remediateModel struct {
	service   string
	force     bool
	spinner   spinner.Model
	steps     []stepState
	status    string // "connecting" | "running" | "completed" | "failed" | "rejected"
	attemptID string
	outcome   string
	reason    string
	errMsg    string
	failed    bool
	startTime time.Time
	eventCh   chan tea.Msg
}

type stepState struct {
	name   string
	status string // "pending" | "running" | "complete" | "failed"
}

func protocolSteps(kind string) []string {
	if kind == "restart" {
		return []string{"restart", "stabilize", "reconnect", "verify"}
	}
	return []string{"inspect", "scale-up", "restart", "stabilize", "reconnect", "verify"}
}

func newRemediateModel(service, kind string, force bool) remediateModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(style.Primary)

	names := protocolSteps(kind)
	steps := make([]stepState, len(names))
	for i, name := range names {
		steps[i] = stepState{name: name, status: "pending"}
	}

	return remediateModel{
		service:   service,
		force:     force,
		spinner:   s,
		steps:     steps,
		status:    "connecting",
		startTime: time.Now(),
	}
}

func (m remediateModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		connectAndRemediate(m.service, m.force),
	)
}

func (m remediateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case attemptStarted:
		m.status = "running"
		m.attemptID = msg.id
		m.eventCh = msg.ch
		return m, waitForEvent(m.eventCh)

	case stepUpdate:
		for i := range m.steps {
			if m.steps[i].name == msg.step {
				m.steps[i].status = msg.status
				break
			}
		}
		return m, waitForEvent(m.eventCh)

	case attemptDone:
		m.outcome = msg.outcome
		if msg.outcome == "success" {
			m.status = "completed"
		} else {
			m.status = "failed"
			m.failed = true
		}
		return m, tea.Quit

	case attemptRejected:
		m.status = "rejected"
		m.reason = msg.reason
		m.errMsg = msg.message
		m.failed = true
		return m, tea.Quit

	case wsError:
		m.status = "failed"
		m.errMsg = msg.err.Error()
		m.failed = true
		return m, tea.Quit
	}

	return m, nil
}

func (m remediateModel) View() string {
	var b strings.Builder

	b.WriteString(style.Banner.Render("🛡 WARDEN REMEDIATE"))
	b.WriteString("\n")

	b.WriteString(style.Key.Render("Service"))
	b.WriteString(style.Bold.Render(m.service))
	b.WriteString("\n")
	if m.attemptID != "" {
		b.WriteString(style.Key.Render("Attempt"))
		b.WriteString(lipgloss.NewStyle().Foreground(style.Cyan).Render(shortID(m.attemptID)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	stepIcons := map[string]string{
		"inspect":   "🔍",
		"scale-up":  "📈",
		"restart":   "🔄",
		"stabilize": "⏳",
		"reconnect": "🔌",
		"verify":    "✅",
	}

	for _, step := range m.steps {
		icon := stepIcons[step.name]
		name := padRight(step.name, 12)

		switch step.status {
		case "pending":
			b.WriteString(fmt.Sprintf("  %s %s %s\n", icon, style.StepPending.Render(name), style.DimText.Render("waiting")))
		case "running":
			b.WriteString(fmt.Sprintf("  %s %s %s %s\n", icon, style.StepRunning.Render(name), m.spinner.View(), style.StepRunning.Render("running")))
		case "complete":
			b.WriteString(fmt.Sprintf("  %s %s %s\n", icon, style.StepDone.Render(name), style.StepDone.Render("✓ done")))
		case "failed":
			b.WriteString(fmt.Sprintf("  %s %s %s\n", icon, style.StepFailed.Render(name), style.StepFailed.Render("✗ failed")))
		}
	}

	b.WriteString("\n")

	elapsed := time.Since(m.startTime).Round(time.Second)

	switch m.status {
	case "connecting":
		b.WriteString(m.spinner.View() + style.DimText.Render(" Connecting to server..."))
	case "running":
		b.WriteString(m.spinner.View() + style.DimText.Render(fmt.Sprintf(" Attempt running... (%s)", elapsed)))
	case "completed":
		b.WriteString(style.SuccessBox.Render(fmt.Sprintf("✓ Remediation succeeded in %s", elapsed)))
	case "rejected":
		b.WriteString(style.ErrorBox.Render("✗ " + m.errMsg))
		if m.reason == "cooldown" && !m.force {
			b.WriteString("\n" + style.DimText.Render("  Re-run with --force to override the cooldown."))
		}
	case "failed":
		msg := fmt.Sprintf("Remediation %s", m.outcome)
		if m.outcome == "" {
			msg = "Remediation failed"
		}
		if m.errMsg != "" {
			msg += ": " + m.errMsg
		}
		b.WriteString(style.ErrorBox.Render("✗ " + msg))
	}

	b.WriteString("\n")
	return b.String()
}

// --- Commands ---

// connectAndRemediate connects to the WebSocket first, triggers the attempt
// via HTTP, then feeds its step events into a channel.
func connectAndRemediate(service string, force bool) tea.Cmd {
	return func() tea.Msg {
		// Connect before triggering so no step event is missed
		conn, _, err := websocket.DefaultDialer.Dial(client.WebSocketURL(), nil)
		if err != nil {
			return wsError{err: fmt.Errorf("websocket connect: %w", err)}
		}

		acc, err := client.Remediate(service, force)
		if err != nil {
			conn.Close()
			var rej *api.RejectedError
			if errors.As(err, &rej) {
				return attemptRejected{reason: rej.Reason, message: rej.Message}
			}
			return wsError{err: err}
		}

		ch := make(chan tea.Msg, 32)
		go func() {
			defer conn.Close()
			defer close(ch)

			for {
				_, message, err := conn.ReadMessage()
				if err != nil {
					ch <- wsError{err: fmt.Errorf("websocket read: %w", err)}
					return
				}

				var event wsMsg
				if err := json.Unmarshal(message, &event); err != nil {
					continue
				}
				if event.Service != service {
					continue
				}
				if id, _ := event.Payload["attemptId"].(string); id != acc.AttemptID {
					continue
				}

				switch event.Type {
				case "remediation.step":
					step, _ := event.Payload["step"].(string)
					status, _ := event.Payload["status"].(string)
					ch <- stepUpdate{step: step, status: status}
				case "remediation.completed":
					outcome, _ := event.Payload["outcome"].(string)
					ch <- attemptDone{outcome: outcome}
					return
				}
			}
		}()

		return attemptStarted{id: acc.AttemptID, ch: ch}
	}
}

// waitForEvent reads the next event from the channel.
func waitForEvent(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return attemptDone{outcome: "success"}
		}
		return msg
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
