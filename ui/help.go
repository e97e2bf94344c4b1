package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const helpText = `
 [yellow]Conversations[-]
 ───────────────────────────────────────────────────────────────
   [white]↑ ↓[-]      Navigate conversations
   [white]Enter[-]    Open conversation (marks it read)
   [white]Tab[-]      Switch between list and message input
   [white]F1[-]       Show this help
   [white]F6[-]       Connect / Disconnect
   [white]F10/Esc[-]  Quit application

 [yellow]Message Input[-]
 ───────────────────────────────────────────────────────────────
   [white]Enter[-]    Send message
   [white]PgUp/Dn[-]  Scroll history (10 lines)
   [white]Esc[-]      Back to conversations

 [yellow]Status Icons[-]
 ───────────────────────────────────────────────────────────────
   [green]●[-] online   [yellow]●[-] away   [gray]○[-] offline
   [gray]◷[-]          Sending
   [gray]✓[-]          Sent (accepted by the server)
   [gray]✓✓[-]         Delivered to the other side
   [aqua]✓✓[-]         Read

 [yellow]Typing[-]
 ───────────────────────────────────────────────────────────────
   Others see that you are typing while you edit a message.
   The indicator clears 2 seconds after your last keystroke,
   when the input is emptied, or when the message is sent.
`

func (a *App) showHelp() {
	helpView := tview.NewTextView()
	helpView.SetText(helpText)
	helpView.SetBackgroundColor(ColorBg)
	helpView.SetTextColor(ColorFg)
	helpView.SetDynamicColors(true)
	helpView.SetBorder(true)
	helpView.SetBorderColor(ColorBorder)
	helpView.SetTitle(" Help ")
	helpView.SetTitleColor(ColorTitle)
	helpView.SetScrollable(true)

	statusBar := newStatusBar(" ↑↓/PgUp/PgDn: Scroll | Esc/Enter/F1: Close ")

	// Layout
	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(helpView, 0, 1, true).
		AddItem(statusBar, 1, 0, false)
	flex.SetBackgroundColor(ColorBg)

	// Handle keyboard
	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyEnter, tcell.KeyF1:
			a.pages.RemovePage("help")
			a.focusList()
			return nil
		case tcell.KeyUp:
			scroll(helpView, -1)
			return nil
		case tcell.KeyDown:
			scroll(helpView, 1)
			return nil
		case tcell.KeyPgUp:
			scroll(helpView, -10)
			return nil
		case tcell.KeyPgDn:
			scroll(helpView, 10)
			return nil
		case tcell.KeyHome:
			helpView.ScrollToBeginning()
			return nil
		case tcell.KeyEnd:
			helpView.ScrollToEnd()
			return nil
		}
		return event
	})

	a.pages.AddPage("help", flex, true, true)
}
