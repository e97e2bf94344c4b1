package ui

import (
	"context"
	"fmt"
)

func (a *App) updateConnectionStatus() {
	if a.connectionView == nil {
		return
	}
	if errText := a.currentError(); errText != "" {
		a.connectionView.SetText(fmt.Sprintf("[red]✗ Error: %s[-]", errText))
		return
	}
	if a.client.Connected() {
		a.connectionView.SetText(fmt.Sprintf("[green]● Connected to %s[-]", a.opts.ServerLabel))
	} else {
		a.connectionView.SetText(fmt.Sprintf("[red]○ Disconnected from %s[-]", a.opts.ServerLabel))
	}
}

func (a *App) connect(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, a.opts.DialTimeout)
	defer cancel()

	if err := a.client.Connect(dialCtx); err != nil {
		a.logger.Warn().Err(err).Msg("Connect failed")
		a.setError(fmt.Sprintf("Connection failed: %v", err))
		return
	}
	a.setError("")
}

func (a *App) toggleConnection() {
	if a.client.Connected() {
		a.connectionView.SetText("[yellow]Disconnecting...[-]")
		if err := a.client.Disconnect(); err != nil {
			a.setError(fmt.Sprintf("Disconnect failed: %v", err))
		}
		return
	}

	a.setError("")
	a.connectionView.SetText("[yellow]Connecting...[-]")
	go a.connect(context.Background())
}
