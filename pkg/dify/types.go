package dify

const (
	ResponseModeStreaming = "streaming"
	ResponseModeBlocking  = "blocking"
)

// MessageRequest is what callers send. User falls back to Config.User.
type MessageRequest struct {
	Query          string
	ConversationID string
	Inputs         map[string]any
	Files          []File
	User           string
}

// File references an image or document attached to a chat message.
type File struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	URL            string `json:"url,omitempty"`
	UploadFileID   string `json:"upload_file_id,omitempty"`
}

// chatPayload is the wire body of POST /chat-messages.
type chatPayload struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	User           string         `json:"user"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Files          []File         `json:"files,omitempty"`
}

// ChatResponse is the blocking response of POST /chat-messages.
type ChatResponse struct {
	Event          string         `json:"event"`
	TaskID         string         `json:"task_id"`
	ID             string         `json:"id"`
	MessageID      string         `json:"message_id"`
	ConversationID string         `json:"conversation_id"`
	Mode           string         `json:"mode"`
	Answer         string         `json:"answer"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      int64          `json:"created_at"`
}

// MessageIDOrID returns the message id, whichever field the upstream filled.
func (r *ChatResponse) MessageIDOrID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.MessageID
}

// Usage is the token and cost accounting of one answer.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	TotalPrice       string  `json:"total_price,omitempty"`
	Currency         string  `json:"currency,omitempty"`
	Latency          float64 `json:"latency,omitempty"`
}

type feedbackPayload struct {
	Rating  *string `json:"rating"`
	User    string  `json:"user"`
	Content string  `json:"content,omitempty"`
}

// FeedbackResult is the response of POST /messages/{id}/feedbacks.
type FeedbackResult struct {
	Result string `json:"result"`
}

// Message is one entry of the upstream conversation history.
type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Inputs         map[string]any   `json:"inputs"`
	Query          string           `json:"query"`
	Answer         string           `json:"answer"`
	Feedback       *MessageFeedback `json:"feedback"`
	Resources      []map[string]any `json:"retriever_resources,omitempty"`
	CreatedAt      int64            `json:"created_at"`
}

// MessageFeedback is the rating attached to a history message.
type MessageFeedback struct {
	Rating string `json:"rating"`
}

// MessagesResponse is the response of GET /messages.
type MessagesResponse struct {
	Limit   int       `json:"limit"`
	HasMore bool      `json:"has_more"`
	Data    []Message `json:"data"`
}

type suggestedResponse struct {
	Result string   `json:"result"`
	Data   []string `json:"data"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}
