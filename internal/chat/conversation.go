// Package chat holds the client-side conversation collection and keeps it
// in step with the remote service.
package chat

import (
	"github.com/google/uuid"

	"github.com/comigor/fastbot-go/internal/api"
)

// DefaultTitle is the placeholder title the service gives new conversations.
const DefaultTitle = "New Chat"

// titleLength is how many characters of the first sent message become the
// title.
const titleLength = 30

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status tracks a message against server confirmation. Messages loaded from
// or returned by the service are confirmed; an optimistic user message is
// pending until its send completes.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Message is one entry of a conversation thread. Messages are never edited
// after creation apart from their Status.
type Message struct {
	LocalID string // client-side identity; the service assigns none
	Role    Role
	Content string
	Status  Status
}

// Conversation is a titled thread; message order is append order.
type Conversation struct {
	ID       string
	Title    string
	Messages []Message
}

func (c *Conversation) clone() Conversation {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	return out
}

func (c *Conversation) message(localID string) *Message {
	for i := range c.Messages {
		if c.Messages[i].LocalID == localID {
			return &c.Messages[i]
		}
	}
	return nil
}

func newMessage(role Role, content string, status Status) Message {
	return Message{LocalID: uuid.NewString(), Role: role, Content: content, Status: status}
}

func fromAPIMessage(m api.Message) Message {
	role := Role(m.Role)
	if role != RoleUser {
		role = RoleAssistant
	}
	return newMessage(role, m.Content, StatusConfirmed)
}

func fromAPIChat(c api.Chat) *Conversation {
	conv := &Conversation{ID: string(c.ID), Title: c.Title, Messages: make([]Message, 0, len(c.Messages))}
	for _, m := range c.Messages {
		conv.Messages = append(conv.Messages, fromAPIMessage(m))
	}
	return conv
}

// titleFrom returns the first titleLength characters of content.
func titleFrom(content string) string {
	r := []rune(content)
	if len(r) > titleLength {
		r = r[:titleLength]
	}
	return string(r)
}
