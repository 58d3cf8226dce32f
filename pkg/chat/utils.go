package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/papercomputeco/wenshu/pkg/dify"
)

const (
	// MaxQueryLength caps a sanitised query, in characters.
	MaxQueryLength = 5000

	// MaxUserIDLength caps a user id, in characters.
	MaxUserIDLength = 100

	titleLength = 50
)

// Ratings accepted by Feedback. An empty rating clears a previous one.
const (
	RatingLike    = "like"
	RatingDislike = "dislike"
)

// SanitizeQuery trims surrounding whitespace and caps the query at
// MaxQueryLength characters.
func SanitizeQuery(query string) string {
	query = strings.TrimSpace(query)
	return truncate(query, MaxQueryLength)
}

// ValidateUserID rejects an id that is blank or longer than MaxUserIDLength.
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return &dify.ValidationError{Message: "user id is required"}
	}
	if utf8.RuneCountInString(userID) > MaxUserIDLength {
		return &dify.ValidationError{Message: "user id must be at most 100 characters"}
	}
	return nil
}

// ValidateRating accepts like, dislike and the empty rating.
func ValidateRating(rating string) error {
	switch rating {
	case "", RatingLike, RatingDislike:
		return nil
	}
	return &dify.ValidationError{Message: "rating must be \"like\", \"dislike\" or empty"}
}

// NewConversationID returns a fresh conversation id. It keys the local
// history of an exchange the upstream did not assign a conversation to.
func NewConversationID() string {
	return uuid.NewString()
}

// Response is the formatted answer of a blocking query.
type Response struct {
	Success        bool           `json:"success"`
	ConversationID string         `json:"conversation_id"`
	Answer         string         `json:"answer"`
	MessageID      string         `json:"message_id"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      int64          `json:"created_at"`
}

// FormatResponse flattens an upstream blocking answer.
func FormatResponse(r *dify.ChatResponse) *Response {
	metadata := r.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Response{
		Success:        true,
		ConversationID: r.ConversationID,
		Answer:         r.Answer,
		MessageID:      r.MessageIDOrID(),
		Metadata:       metadata,
		CreatedAt:      r.CreatedAt,
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
