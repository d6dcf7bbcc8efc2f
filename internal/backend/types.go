package backend

import "encoding/json"

// ChatMessage is the minimal projection of a conversation entry sent to
// the tool-chat endpoint.
type ChatMessage struct {
	Text   string `json:"text"`
	IsUser bool   `json:"isUser"`
	Time   string `json:"time"`
}

// ChatRequest is the body of POST /email-tools/chat.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	ToolType string        `json:"tool_type"`
}

// ToolResult is one entry of a chat response's tool_results collection.
// Result is kept raw; its shape depends on Type.
type ToolResult struct {
	Type   string          `json:"type"`
	Result json.RawMessage `json:"result"`
}

// OAuthRequirement is the result blob of a tool_results entry whose
// Type is "oauth_required".
type OAuthRequirement struct {
	AuthURL    string `json:"auth_url"`
	ButtonText string `json:"button_text"`
}

// EmailComposition is a draft email the assistant proposes for review.
type EmailComposition struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// GmailEmail is a lightweight projection of a mailbox item returned by
// the read-inbox tool.
type GmailEmail struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	FromAddress string `json:"from_address"`
	Date        string `json:"date"`
	Snippet     string `json:"snippet"`
	ThreadID    string `json:"thread_id,omitempty"`
}

// ChatResponse is the heterogeneous payload of POST /email-tools/chat.
// Which optional fields are set determines how the client interprets
// the turn; see the chat package's Classify.
type ChatResponse struct {
	Success          bool              `json:"success"`
	Message          string            `json:"message,omitempty"`
	ToolResults      []ToolResult      `json:"tool_results,omitempty"`
	HasToolCalls     bool              `json:"has_tool_calls,omitempty"`
	EmailComposition *EmailComposition `json:"email_composition,omitempty"`
	GmailEmails      []GmailEmail      `json:"gmail_emails,omitempty"`
}

// OAuthChallenge scans the tool results for an authorization requirement
// and returns it, or nil if none is present.
func (r *ChatResponse) OAuthChallenge() *OAuthRequirement {
	for _, tr := range r.ToolResults {
		if tr.Type != "oauth_required" {
			continue
		}
		var req OAuthRequirement
		if err := json.Unmarshal(tr.Result, &req); err != nil {
			continue
		}
		if req.AuthURL != "" {
			return &req
		}
	}
	return nil
}

// SendEmailRequest is the body of POST /email-tools/send-email.
type SendEmailRequest struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// SendEmailResponse reports the outcome of a send.
type SendEmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	EmailID string `json:"email_id,omitempty"`
}

// LookupRequest is the body of POST /lookup-contact/lookup.
type LookupRequest struct {
	Name string `json:"name"`
}

// LookupResponse carries a resolved address for a free-text name.
type LookupResponse struct {
	Success      bool   `json:"success"`
	EmailAddress string `json:"email_address,omitempty"`
	Message      string `json:"message,omitempty"`
}

// ArchiveRequest is the body of POST /email-tools/archive.
type ArchiveRequest struct {
	EmailID string `json:"email_id"`
}

// ArchiveResponse reports the outcome of an archive.
type ArchiveResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// EmailContentResponse is the body of GET /email-tools/email-content/{id}.
// EmailContent is HTML.
type EmailContentResponse struct {
	Success      bool   `json:"success"`
	EmailContent string `json:"email_content"`
}

// LoginResponse is the body of a successful POST /auth/login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	UserName    string `json:"user_name,omitempty"`
}

// AvailableToolsResponse lists the tools the backend exposes.
type AvailableToolsResponse struct {
	Tools []json.RawMessage `json:"tools"`
}
