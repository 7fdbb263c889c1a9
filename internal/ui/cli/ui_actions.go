package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

func handleKeyActions(msg tea.KeyMsg, m model) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab":
		if m.mode == panelDiagnostics {
			m.mode = panelFiles
		} else {
			m.mode = panelDiagnostics
		}
		return m, nil
	case "t":
		m.showTrend = !m.showTrend
		return m, nil
	}

	if m.mode != panelFiles {
		var cmd tea.Cmd
		m.diagList, cmd = m.diagList.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "enter":
		if len(m.fileGroups) > 0 {
			m.hasFileDetails = true
			m.selectedDiag = 0
		}
		return m, nil
	case "esc", "backspace":
		m.hasFileDetails = false
		m.selectedDiag = 0
		return m, nil
	case "j":
		if g, ok := selectedGroup(m); ok && m.hasFileDetails {
			if m.selectedDiag < len(g.diags)-1 {
				m.selectedDiag++
			}
			return m, nil
		}
	case "k":
		if m.hasFileDetails {
			if m.selectedDiag > 0 {
				m.selectedDiag--
			}
			return m, nil
		}
	case "o":
		if !m.hasFileDetails {
			return m, nil
		}
		target, ok := selectedSourceTarget(m)
		if !ok {
			m.sourceJumpStatus = statusStyle.Render("No source target available.")
			return m, nil
		}
		return m, jumpToSourceCmd(target)
	}

	var cmd tea.Cmd
	m.fileList, cmd = m.fileList.Update(msg)
	return m, cmd
}

func selectedGroup(m model) (fileGroup, bool) {
	if len(m.fileGroups) == 0 {
		return fileGroup{}, false
	}
	idx := m.fileList.Index()
	if idx < 0 || idx >= len(m.fileGroups) {
		idx = 0
	}
	return m.fileGroups[idx], true
}

type sourceTarget struct {
	file string
	line int
}

func selectedSourceTarget(m model) (sourceTarget, bool) {
	g, ok := selectedGroup(m)
	if !ok || len(g.diags) == 0 {
		return sourceTarget{}, false
	}
	idx := m.selectedDiag
	if idx < 0 {
		idx = 0
	}
	if idx >= len(g.diags) {
		idx = len(g.diags) - 1
	}
	d := g.diags[idx]
	return sourceTarget{file: d.Path, line: d.Line}, d.Path != ""
}

func jumpToSourceCmd(target sourceTarget) tea.Cmd {
	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	args := []string{target.file}
	if strings.Contains(editor, "vim") || strings.Contains(editor, "nvim") || strings.HasSuffix(editor, "/vi") {
		args = []string{fmt.Sprintf("+%d", target.line), target.file}
	}
	cmd := exec.Command(editor, args...)
	label := fmt.Sprintf("%s:%d", target.file, target.line)
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return sourceJumpResultMsg{target: label, err: err}
	})
}
