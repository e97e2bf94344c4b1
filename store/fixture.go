package store

import (
	_ "embed"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"mchat/models"
)

//go:embed fixture.yaml
var defaultFixture []byte

// Fixture is the static seed the store starts from. Message ages are
// durations before load time.
type Fixture struct {
	CurrentUser   string                `yaml:"currentUser"`
	Users         []models.User         `yaml:"users"`
	Conversations []FixtureConversation `yaml:"conversations"`
	Messages      []FixtureMessage      `yaml:"messages"`
}

type FixtureConversation struct {
	ID           string   `yaml:"id"`
	Participants []string `yaml:"participants"`
	UnreadCount  int      `yaml:"unreadCount"`
}

type FixtureMessage struct {
	ID           string `yaml:"id"`
	Conversation string `yaml:"conversation"`
	Sender       string `yaml:"sender"`
	Content      string `yaml:"content"`
	Age          string `yaml:"age"`
	Status       string `yaml:"status"`
	Type         string `yaml:"type"`
}

// DefaultFixture parses the embedded seed data.
func DefaultFixture() (*Fixture, error) {
	return ParseFixture(defaultFixture)
}

// LoadFixture reads a fixture file; an empty path means the embedded default.
func LoadFixture(path string) (*Fixture, error) {
	if path == "" {
		return DefaultFixture()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read fixture")
	}
	return ParseFixture(raw)
}

func ParseFixture(raw []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parse fixture")
	}
	return &f, nil
}

// State builds the initial store state. currentUserID overrides the
// fixture's own current user when non-empty; now anchors message ages.
// Conversations the current user does not take part in, and their
// messages, are validated but left out.
func (f *Fixture) State(currentUserID string, now time.Time) (State, error) {
	users := make(map[string]models.User, len(f.Users))
	for _, u := range f.Users {
		if u.ID == "" {
			return State{}, errors.New("fixture: user without id")
		}
		if u.Status == "" {
			u.Status = models.StatusOffline
		}
		if !u.Status.Valid() {
			return State{}, errors.Errorf("fixture: user %s has invalid status %q", u.ID, u.Status)
		}
		users[u.ID] = u
	}

	if currentUserID == "" {
		currentUserID = f.CurrentUser
	}
	current, ok := users[currentUserID]
	if !ok {
		return State{}, errors.Errorf("fixture: unknown current user %q", currentUserID)
	}

	state := State{
		CurrentUser:      current,
		Messages:         map[string][]models.Message{},
		TypingIndicators: map[string][]string{},
	}

	known := make(map[string]bool, len(f.Conversations))
	for _, fc := range f.Conversations {
		if fc.UnreadCount < 0 {
			return State{}, errors.Errorf("fixture: conversation %s has negative unread count", fc.ID)
		}
		conv := models.Conversation{ID: fc.ID, UnreadCount: fc.UnreadCount}
		for _, id := range fc.Participants {
			u, ok := users[id]
			if !ok {
				return State{}, errors.Errorf("fixture: conversation %s references unknown user %q", fc.ID, id)
			}
			conv.Participants = append(conv.Participants, u)
		}
		known[fc.ID] = true
		if conv.HasParticipant(current.ID) {
			state.Conversations = append(state.Conversations, conv)
		}
	}

	for _, fm := range f.Messages {
		if !known[fm.Conversation] {
			return State{}, errors.Errorf("fixture: message %s references unknown conversation %q", fm.ID, fm.Conversation)
		}
		var age time.Duration
		if fm.Age != "" {
			d, err := time.ParseDuration(fm.Age)
			if err != nil {
				return State{}, errors.Wrapf(err, "fixture: message %s age", fm.ID)
			}
			age = d
		}
		status := models.MessageStatus(fm.Status)
		if !status.Valid() {
			return State{}, errors.Errorf("fixture: message %s has invalid status %q", fm.ID, fm.Status)
		}
		msgType := models.MessageType(fm.Type)
		if msgType == "" {
			msgType = models.MessageText
		}

		msg := models.Message{
			ID:             fm.ID,
			SenderID:       fm.Sender,
			Content:        fm.Content,
			Timestamp:      now.Add(-age),
			Status:         status,
			Type:           msgType,
			ConversationID: fm.Conversation,
		}
		idx := state.conversationIndex(fm.Conversation)
		if idx < 0 {
			continue
		}
		state.Messages[fm.Conversation] = append(state.Messages[fm.Conversation], msg)
		last := msg
		state.Conversations[idx].LastMessage = &last
	}

	return state, nil
}
