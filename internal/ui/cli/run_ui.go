package cli

import (
	"context"

	"pyscope/internal/core/app"
	"pyscope/internal/data/history"

	tea "github.com/charmbracelet/bubbletea"
)

func runUI(ctx context.Context, svc *app.Service, trend *history.TrendReport) error {
	m := initialModel(svc.App().Paths.ProjectRoot, trend)
	p := tea.NewProgram(m, tea.WithAltScreen())

	svc.SetUpdateHandler(func(update app.Update) {
		p.Send(updateMsg{update: update})
	})
	defer svc.SetUpdateHandler(nil)

	go func() {
		if update, ok := svc.CurrentUpdate(); ok {
			p.Send(updateMsg{update: update})
		}
	}()
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err := p.Run()
	return err
}
