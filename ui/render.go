package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"mchat/models"
	"mchat/store"
)

func statusIcon(s models.MessageStatus) string {
	switch s {
	case models.MessageSending:
		return "[gray]◷[-]"
	case models.MessageSent:
		return "[gray]✓[-]"
	case models.MessageDelivered:
		return "[gray]✓✓[-]"
	case models.MessageRead:
		return "[aqua]✓✓[-]"
	}
	return ""
}

func presenceDot(s models.UserStatus) string {
	switch s {
	case models.StatusOnline:
		return "[green]●[-]"
	case models.StatusAway:
		return "[yellow]●[-]"
	}
	return "[gray]○[-]"
}

// presenceText is the header line under a peer's name.
func presenceText(u models.User, now time.Time) string {
	switch u.Status {
	case models.StatusOnline:
		return "online"
	case models.StatusAway:
		return "away"
	}
	if u.LastSeen != nil {
		return "last seen " + formatLastSeen(*u.LastSeen, now)
	}
	return "offline"
}

// conversationPeer picks the user a conversation is shown as.
func conversationPeer(conv models.Conversation, selfID string) models.User {
	if peer, ok := conv.Peer(selfID); ok {
		return peer
	}
	return models.User{ID: conv.ID, Name: conv.ID, Status: models.StatusOffline}
}

func displayName(u models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

// conversationItem renders the main and secondary list text for conv.
func conversationItem(conv models.Conversation, selfID string, active bool, now time.Time) (string, string) {
	peer := conversationPeer(conv, selfID)

	var main strings.Builder
	main.WriteString(presenceDot(peer.Status))
	main.WriteString(" ")
	if active {
		main.WriteString("[::b]")
	}
	main.WriteString(tview.Escape(displayName(peer)))
	if active {
		main.WriteString("[::-]")
	}
	if conv.UnreadCount > 0 {
		fmt.Fprintf(&main, " [red](%d)[-]", conv.UnreadCount)
	}

	last := conv.LastMessage
	if last == nil {
		return main.String(), "  [gray]No messages yet[-]"
	}

	preview := last.Content
	if last.SenderID == selfID {
		preview = "You: " + preview
	}
	secondary := fmt.Sprintf("  [gray]%s · %s[-]", tview.Escape(truncate(preview, 28)), formatLastSeen(last.Timestamp, now))
	return main.String(), secondary
}

// chatTitle is the border title of the chat view.
func chatTitle(state store.State, now time.Time) string {
	conv, ok := state.ActiveConversation()
	if !ok {
		return " No conversation selected "
	}
	peer := conversationPeer(conv, state.CurrentUser.ID)
	return fmt.Sprintf(" %s ─ %s ", tview.Escape(displayName(peer)), presenceText(peer, now))
}

// renderMessages renders the active conversation with date separators.
// Own messages carry their delivery status.
func renderMessages(state store.State, now time.Time, width int) string {
	conv, ok := state.ActiveConversation()
	if !ok {
		return "\n[gray]Pick a chat from the list to get started[-]"
	}
	if width < 10 {
		width = 80
	}

	selfID := state.CurrentUser.ID
	var sb strings.Builder
	var lastDay time.Time

	for _, msg := range state.MessagesFor(conv.ID) {
		day := startOfDay(msg.Timestamp.In(now.Location()))
		if !day.Equal(lastDay) {
			label := formatDateSeparator(msg.Timestamp, now)
			padding := (width - len(label)) / 2
			if padding < 0 {
				padding = 0
			}
			fmt.Fprintf(&sb, "[gray]%s%s[-]\n", strings.Repeat(" ", padding), label)
			lastDay = day
		}

		timeStr := formatMessageTime(msg.Timestamp, now)
		content := tview.Escape(msg.Content)
		if msg.SenderID == selfID {
			fmt.Fprintf(&sb, "[gray]%s[-] [white]→ %s[-] %s\n", timeStr, content, statusIcon(msg.Status))
			continue
		}

		sender := msg.SenderID
		if u, ok := state.User(msg.SenderID); ok {
			sender = displayName(u)
		}
		if len(conv.Participants) > 2 {
			fmt.Fprintf(&sb, "[gray]%s[-] [yellow]← %s:[-] [yellow]%s[-]\n", timeStr, tview.Escape(sender), content)
		} else {
			fmt.Fprintf(&sb, "[gray]%s[-] [yellow]← %s[-]\n", timeStr, content)
		}
	}
	return sb.String()
}

// typingLine names whoever is typing in the active conversation.
func typingLine(state store.State) string {
	users := state.TypingUsers(state.ActiveConversationID)
	switch len(users) {
	case 0:
		return ""
	case 1:
		name := users[0]
		if u, ok := state.User(name); ok {
			name = displayName(u)
		}
		return fmt.Sprintf("[gray]%s is typing...[-]", tview.Escape(name))
	}
	return fmt.Sprintf("[gray]%d people are typing...[-]", len(users))
}
