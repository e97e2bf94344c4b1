package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	listHints  = " Enter:Open | Tab:Input | F1:Help | F6:Connect | F10:Quit "
	inputHints = " Enter:Send | Tab:List | PgUp/PgDn:Scroll | Esc:List | F10:Quit "
)

func (a *App) createMainPage() tview.Primitive {
	// Conversation list on the left
	a.convList = tview.NewList()
	a.convList.SetBorder(true)
	a.convList.SetBorderColor(ColorBorder)
	a.convList.SetBackgroundColor(ColorBg)
	a.convList.SetTitle(" Conversations ")
	a.convList.SetTitleColor(ColorTitle)
	a.convList.SetMainTextColor(ColorFg)
	a.convList.SetMainTextStyle(tcell.StyleDefault.Foreground(ColorFg).Background(ColorBg))
	a.convList.SetSecondaryTextColor(ColorFg)
	a.convList.SetSelectedTextColor(ColorTitle)
	a.convList.SetSelectedBackgroundColor(ColorSelected)
	a.convList.SetHighlightFullLine(true)
	a.convList.ShowSecondaryText(true)

	a.convList.SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		if index < len(a.convIDs) {
			a.openConversation(a.convIDs[index])
		}
	})

	// Chat history view
	a.chatView = tview.NewTextView()
	a.chatView.SetBorder(true)
	a.chatView.SetBorderColor(ColorBorder)
	a.chatView.SetBackgroundColor(ColorBg)
	a.chatView.SetTitleColor(ColorTitle)
	a.chatView.SetTextColor(ColorFg)
	a.chatView.SetDynamicColors(true)
	a.chatView.SetScrollable(true)
	a.chatView.SetWordWrap(true)

	a.typingView = tview.NewTextView()
	a.typingView.SetBackgroundColor(ColorBg)
	a.typingView.SetDynamicColors(true)

	// Message input
	a.messageInput = tview.NewInputField()
	a.messageInput.SetLabel("> ")
	a.messageInput.SetFieldWidth(0)
	a.messageInput.SetBackgroundColor(ColorBg)
	a.messageInput.SetFieldBackgroundColor(ColorInputBg)
	a.messageInput.SetFieldTextColor(ColorFg)
	a.messageInput.SetLabelColor(ColorHighlight)
	a.messageInput.SetBorder(true)
	a.messageInput.SetBorderColor(ColorBorder)
	a.messageInput.SetTitle(" Message ")
	a.messageInput.SetTitleColor(ColorTitle)

	a.messageInput.SetChangedFunc(func(text string) {
		if a.typing != nil {
			a.typing.Input(text)
		}
	})
	a.messageInput.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			a.sendMessage()
		case tcell.KeyEsc:
			a.focusList()
		}
	})

	chatColumn := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.chatView, 0, 1, false).
		AddItem(a.typingView, 1, 0, false).
		AddItem(a.messageInput, 3, 0, false)

	body := tview.NewFlex().
		AddItem(a.convList, 36, 0, true).
		AddItem(chatColumn, 0, 1, false)

	// Connection status view
	a.connectionView = tview.NewTextView()
	a.connectionView.SetBorder(true)
	a.connectionView.SetBorderColor(ColorBorder)
	a.connectionView.SetBackgroundColor(ColorBg)
	a.connectionView.SetTitle(" Connection ")
	a.connectionView.SetTitleColor(ColorTitle)
	a.connectionView.SetTextColor(ColorFg)
	a.connectionView.SetDynamicColors(true)
	a.connectionView.SetTextAlign(tview.AlignCenter)

	// Status bar at bottom
	a.statusBar = newStatusBar(listHints)

	// Main layout
	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(a.connectionView, 3, 0, false).
		AddItem(a.statusBar, 1, 0, false)
	mainFlex.SetBackgroundColor(ColorBg)

	// Handle keyboard
	mainFlex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF1:
			a.showHelp()
			return nil
		case tcell.KeyF6:
			a.toggleConnection()
			return nil
		case tcell.KeyF10:
			a.quit()
			return nil
		case tcell.KeyTab:
			if a.messageInput.HasFocus() {
				a.focusList()
			} else {
				a.focusInput()
			}
			return nil
		case tcell.KeyPgUp:
			scroll(a.chatView, -10)
			return nil
		case tcell.KeyPgDn:
			scroll(a.chatView, 10)
			return nil
		case tcell.KeyEsc:
			if a.convList.HasFocus() {
				a.quit()
				return nil
			}
		}
		return event
	})

	return mainFlex
}

func (a *App) focusList() {
	a.app.SetFocus(a.convList)
	a.statusBar.SetText(listHints)
}

func (a *App) focusInput() {
	a.app.SetFocus(a.messageInput)
	a.statusBar.SetText(inputHints)
}

// openConversation selects id in the store and moves the typing session
// over to it.
func (a *App) openConversation(id string) {
	if err := a.client.SelectConversation(id); err != nil {
		a.setError(fmt.Sprintf("Cannot open conversation: %v", err))
		a.updateConnectionStatus()
		return
	}

	if a.typing != nil {
		a.typing.Close()
		a.typing = nil
	}
	a.messageInput.SetText("")
	a.typing = a.client.NewTypingSession(id, typingOptions(a.opts)...)
	a.renderedMsgs = -1

	a.render()
	a.focusInput()
}

func (a *App) sendMessage() {
	text := a.messageInput.GetText()
	if _, ok := a.client.SendMessage(text); !ok {
		return
	}
	if a.typing != nil {
		a.typing.Stop()
	}
	a.messageInput.SetText("")
	a.render()
}

// render redraws every widget from the current store snapshot. It must run
// on the tview event goroutine.
func (a *App) render() {
	state := a.client.Store().Snapshot()
	now := a.now()
	selfID := state.CurrentUser.ID

	currentIdx := a.convList.GetCurrentItem()
	a.convList.Clear()
	a.convIDs = a.convIDs[:0]
	for _, conv := range state.Conversations {
		main, secondary := conversationItem(conv, selfID, conv.ID == state.ActiveConversationID, now)
		a.convList.AddItem(main, secondary, 0, nil)
		a.convIDs = append(a.convIDs, conv.ID)
	}
	if currentIdx >= 0 && currentIdx < a.convList.GetItemCount() {
		a.convList.SetCurrentItem(currentIdx)
	}

	title := " Conversations "
	if unread := state.TotalUnread(); unread > 0 {
		title = fmt.Sprintf(" Conversations (%d) ", unread)
	}
	a.convList.SetTitle(title)

	_, _, width, _ := a.chatView.GetInnerRect()
	a.chatView.SetTitle(chatTitle(state, now))
	a.chatView.SetText(renderMessages(state, now, width))
	if n := len(state.MessagesFor(state.ActiveConversationID)); n != a.renderedMsgs {
		a.chatView.ScrollToEnd()
		a.renderedMsgs = n
	}

	a.typingView.SetText(typingLine(state))
	a.updateConnectionStatus()
}
