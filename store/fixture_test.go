package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mchat/models"
)

func TestDefaultFixture(t *testing.T) {
	f, err := DefaultFixture()
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, err := f.State("", now)
	require.NoError(t, err)

	require.Equal(t, "current-user", s.CurrentUser.ID)
	require.Len(t, s.Conversations, 3)
	require.Equal(t, 3, s.TotalUnread())
	require.Empty(t, s.ActiveConversationID)

	conv1, ok := s.Conversation("conv-1")
	require.True(t, ok)
	require.Len(t, s.MessagesFor("conv-1"), 3)
	require.Equal(t, "msg-3", conv1.LastMessage.ID)
	require.Equal(t, now.Add(-time.Hour), s.MessagesFor("conv-1")[0].Timestamp)

	peer, ok := conv1.Peer("current-user")
	require.True(t, ok)
	require.Equal(t, "Alice Johnson", peer.Name)

	bob, ok := s.User("user-2")
	require.True(t, ok)
	require.Equal(t, models.StatusAway, bob.Status)
}

func TestFixtureCurrentUserOverride(t *testing.T) {
	f, err := DefaultFixture()
	require.NoError(t, err)

	s, err := f.State("user-1", time.Now())
	require.NoError(t, err)
	require.Equal(t, "Alice Johnson", s.CurrentUser.Name)

	// Only conversations Alice takes part in are kept, with their messages.
	require.Len(t, s.Conversations, 1)
	require.Equal(t, "conv-1", s.Conversations[0].ID)
	require.Len(t, s.MessagesFor("conv-1"), 3)
	_, ok := s.Conversation("conv-2")
	require.False(t, ok)
	require.Empty(t, s.MessagesFor("conv-2"))
	_, ok = s.FindMessage("msg-4")
	require.False(t, ok)
	_, ok = s.User("user-2")
	require.False(t, ok)

	_, err = f.State("nobody", time.Now())
	require.Error(t, err)
}

func TestFixtureValidation(t *testing.T) {
	cases := map[string]string{
		"unknown participant": `
currentUser: a
users: [{id: a, name: A}]
conversations: [{id: c, participants: [a, b]}]
`,
		"orphan message": `
currentUser: a
users: [{id: a, name: A}]
messages: [{id: m, conversation: nope, sender: a, content: x, status: sent}]
`,
		"bad status": `
currentUser: a
users: [{id: a, name: A}]
conversations: [{id: c, participants: [a]}]
messages: [{id: m, conversation: c, sender: a, content: x, status: lost}]
`,
		"bad status outside current user's conversations": `
currentUser: a
users: [{id: a, name: A}, {id: b, name: B}, {id: c, name: C}]
conversations: [{id: bc, participants: [b, c]}]
messages: [{id: m, conversation: bc, sender: b, content: x, status: lost}]
`,
		"bad age": `
currentUser: a
users: [{id: a, name: A}]
conversations: [{id: c, participants: [a]}]
messages: [{id: m, conversation: c, sender: a, content: x, status: sent, age: yesterday}]
`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			f, err := ParseFixture([]byte(raw))
			require.NoError(t, err)
			_, err = f.State("", time.Now())
			require.Error(t, err)
		})
	}
}

func TestLoadFixtureFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	raw := `
currentUser: me
users:
  - {id: me, name: Me, status: online}
  - {id: pal, name: Pal}
conversations:
  - {id: c1, participants: [pal, me], unreadCount: 1}
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	f, err := LoadFixture(path)
	require.NoError(t, err)
	s, err := f.State("", time.Now())
	require.NoError(t, err)

	pal, ok := s.User("pal")
	require.True(t, ok)
	require.Equal(t, models.StatusOffline, pal.Status)
	require.Empty(t, s.MessagesFor("c1"))

	_, err = LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
