package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/cluso-bench/pkg/api"
	"github.com/dd0wney/cluso-bench/pkg/tasks"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FFFF")).
			Width(10)

	contentStyle = lipgloss.NewStyle().MarginLeft(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

var quitKey = key.NewBinding(
	key.WithKeys("q", "ctrl+c", "esc"),
	key.WithHelp("q", "quit"),
)

// statusClient fetches task views from bench-server
type statusClient struct {
	base string
	http *http.Client
}

func (c *statusClient) Status(ctx context.Context, id string) (tasks.View, error) {
	var v tasks.View
	u := c.base + api.Prefix + "/status/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return v, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return v, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return v, fmt.Errorf("status request returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return v, fmt.Errorf("failed to decode status: %w", err)
	}
	return v, nil
}

type statusFetcher interface {
	Status(ctx context.Context, id string) (tasks.View, error)
}

type statusMsg struct {
	view tasks.View
	err  error
}

type tickMsg time.Time

type model struct {
	id       string
	client   statusFetcher
	interval time.Duration
	bar      progress.Model
	view     tasks.View
	err      error
	polls    int
	width    int
}

func newModel(id string, client statusFetcher, interval time.Duration) model {
	return model{
		id:       id,
		client:   client,
		interval: interval,
		bar:      progress.New(progress.WithDefaultGradient()),
		view:     tasks.View{ID: id, Status: tasks.StatusRunning},
	}
}

func (m model) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.interval+5*time.Second)
		defer cancel()
		v, err := m.client.Status(ctx, m.id)
		return statusMsg{view: v, err: err}
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return m.fetch()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(max(msg.Width-8, 20), 80)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, quitKey) {
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		return m, m.fetch()

	case statusMsg:
		m.polls++
		m.err = msg.err
		if msg.err != nil {
			// the server may be restarting; keep polling
			return m, m.tick()
		}
		m.view = msg.view
		if m.view.Status.Terminal() || m.view.Status == tasks.StatusNotFound {
			return m, tea.Quit
		}
		return m, m.tick()
	}
	return m, nil
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Task " + m.id))
	s.WriteString("\n\n")

	body := []string{
		m.bar.ViewAs(float64(m.view.Progress) / 100),
		"",
		labelStyle.Render("Status") + string(m.view.Status),
	}
	if m.view.Kind != "" {
		body = append(body, labelStyle.Render("Kind")+string(m.view.Kind))
	}
	if m.view.TotalSteps > 0 {
		body = append(body, labelStyle.Render("Step")+fmt.Sprintf("%d/%d", m.view.CurrentStep, m.view.TotalSteps))
	}
	if m.view.Message != "" {
		body = append(body, labelStyle.Render("Message")+m.view.Message)
	}
	s.WriteString(contentStyle.Render(lipgloss.JoinVertical(lipgloss.Left, body...)))

	switch {
	case m.err != nil:
		s.WriteString("\n\n")
		s.WriteString(contentStyle.Render(errorStyle.Render("✗ " + m.err.Error())))
	case m.view.Status == tasks.StatusCompleted:
		s.WriteString("\n\n")
		s.WriteString(contentStyle.Render(successStyle.Render("✓ completed")))
	case m.view.Status == tasks.StatusFailed:
		s.WriteString("\n\n")
		s.WriteString(contentStyle.Render(errorStyle.Render("✗ " + m.view.Error)))
	case m.view.Status == tasks.StatusNotFound:
		s.WriteString("\n\n")
		s.WriteString(contentStyle.Render(errorStyle.Render("✗ task not found")))
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render(quitKey.Help().Key + " " + quitKey.Help().Desc))
	s.WriteString("\n")
	return s.String()
}
