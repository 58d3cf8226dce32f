package dotdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
)

const (
	conversationFile = "conversation.json"
)

// ConversationState is the Dify conversation the CLI continues on the next
// "wenshu ask --continue".
type ConversationState struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	LastMessageID  string    `json:"last_message_id,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LoadConversation loads the state from a target .wenshu/conversation.json.
// Returns nil, nil if no conversation has been started yet.
func (m *Manager) LoadConversation(overrideDir string) (*ConversationState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, conversationFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading conversation state: %w", err)
	}

	state := &ConversationState{}
	if err := sonic.ConfigStd.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing conversation state: %w", err)
	}

	return state, nil
}

// SaveConversation persists the state to a target .wenshu/conversation.json.
func (m *Manager) SaveConversation(state *ConversationState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil conversation state")
	}
	if state.ConversationID == "" {
		return errors.New("cannot save conversation state without conversation id")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	data, err := sonic.ConfigStd.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling conversation state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, conversationFile), data, 0o600); err != nil {
		return fmt.Errorf("writing conversation state: %w", err)
	}

	return nil
}

// ClearConversation removes the state file so the next ask starts a new
// conversation. Returns nil if the file doesn't exist.
func (m *Manager) ClearConversation(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(dir, conversationFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing conversation state: %w", err)
	}

	return nil
}
