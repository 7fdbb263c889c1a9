package cli

import (
	"fmt"
	"time"

	"pyscope/internal/core/app"
	"pyscope/internal/core/ports"
	"pyscope/internal/data/history"
	"pyscope/internal/ui/report"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title + i.desc }

type model struct {
	diagList    list.Model
	fileList    list.Model
	mode        panelMode
	projectRoot string
	trendReport *history.TrendReport
	showTrend   bool

	diags      []ports.Diagnostic
	fileGroups []fileGroup
	fileCount  int
	duration   time.Duration
	lastUpdate time.Time

	hasFileDetails   bool
	selectedDiag     int
	sourceJumpStatus string
}

// fileGroup is one file's diagnostics, for the file panel.
type fileGroup struct {
	path     string
	errors   int
	warnings int
	diags    []ports.Diagnostic
}

type panelMode int

const (
	panelDiagnostics panelMode = iota
	panelFiles
)

type updateMsg struct {
	update app.Update
}

type sourceJumpResultMsg struct {
	target string
	err    error
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return handleKeyActions(msg, m)
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		width := msg.Width - h
		height := msg.Height - v - 8
		if height < 5 {
			height = 5
		}
		m.diagList.SetSize(width, height)
		m.fileList.SetSize(width, height)
	case updateMsg:
		m.diags = msg.update.Diagnostics
		m.fileGroups = groupByFile(m.diags)
		m.fileCount = msg.update.Files
		m.duration = msg.update.Duration
		m.lastUpdate = time.Now()

		items := make([]list.Item, 0, len(m.diags))
		for _, d := range m.diags {
			items = append(items, item{
				title: fmt.Sprintf("%s %s", d.Rule, d.Severity),
				desc:  fmt.Sprintf("%s:%d %s", report.RelativePath(m.projectRoot, d.Path), d.Line, d.Message),
			})
		}
		m.diagList.SetItems(items)

		fileItems := make([]list.Item, 0, len(m.fileGroups))
		for _, g := range m.fileGroups {
			fileItems = append(fileItems, item{
				title: report.RelativePath(m.projectRoot, g.path),
				desc:  fmt.Sprintf("errors=%d warnings=%d", g.errors, g.warnings),
			})
		}
		m.fileList.SetItems(fileItems)
		if m.selectedDiag >= len(m.diags) {
			m.selectedDiag = 0
		}
	case sourceJumpResultMsg:
		if msg.err != nil {
			m.sourceJumpStatus = statusStyle.Render(fmt.Sprintf("Source jump failed: %v", msg.err))
		} else {
			m.sourceJumpStatus = statusStyle.Render(fmt.Sprintf("Opened source: %s", msg.target))
		}
	}

	var cmd tea.Cmd
	if m.mode == panelDiagnostics {
		m.diagList, cmd = m.diagList.Update(msg)
	} else {
		m.fileList, cmd = m.fileList.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	status := statusStyle.Render(fmt.Sprintf("Last check: %v | %d files | %v",
		m.lastUpdate.Format("15:04:05"), m.fileCount, m.duration.Round(time.Millisecond)))

	errors, warnings := severityCounts(m.diags)
	var summary string
	if len(m.diags) == 0 {
		summary = successStyle.Render("No issues")
	} else {
		summary = fmt.Sprintf("%s | %s",
			errorStyle.Render(fmt.Sprintf("%d errors", errors)),
			warningStyle.Render(fmt.Sprintf("%d warnings", warnings)))
	}

	header := fmt.Sprintf("%s\n%s | %s\n", titleStyle("Python Override Monitor"), status, summary)
	help := renderHelp(m)

	body := m.diagList.View()
	if m.mode == panelFiles {
		body = renderFilePanel(m)
	}
	if m.showTrend {
		body += "\n\n" + renderTrendOverlay(m.trendReport)
	}
	if m.sourceJumpStatus != "" {
		body += "\n\n" + m.sourceJumpStatus
	}

	return docStyle.Render(header + "\n" + help + "\n\n" + body)
}

func initialModel(projectRoot string, trendReport *history.TrendReport) model {
	diagList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	diagList.Title = "Diagnostics"
	diagList.SetShowStatusBar(false)
	diagList.SetFilteringEnabled(true)

	fileList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	fileList.Title = "File Explorer"
	fileList.SetShowStatusBar(false)
	fileList.SetFilteringEnabled(true)

	return model{
		diagList:    diagList,
		fileList:    fileList,
		mode:        panelDiagnostics,
		projectRoot: projectRoot,
		trendReport: trendReport,
		lastUpdate:  time.Now(),
	}
}

func groupByFile(diags []ports.Diagnostic) []fileGroup {
	var groups []fileGroup
	index := make(map[string]int)
	for _, d := range diags {
		i, ok := index[d.Path]
		if !ok {
			i = len(groups)
			index[d.Path] = i
			groups = append(groups, fileGroup{path: d.Path})
		}
		g := &groups[i]
		g.diags = append(g.diags, d)
		switch d.Severity {
		case ports.SeverityError:
			g.errors++
		case ports.SeverityWarning:
			g.warnings++
		}
	}
	return groups
}

func severityCounts(diags []ports.Diagnostic) (errors, warnings int) {
	for _, d := range diags {
		switch d.Severity {
		case ports.SeverityError:
			errors++
		case ports.SeverityWarning:
			warnings++
		}
	}
	return errors, warnings
}
