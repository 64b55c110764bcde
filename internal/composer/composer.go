// Package composer holds the pending input of the message box and decides
// when it may be sent.
package composer

import (
	"context"
	"strings"
	"sync"
)

// Sender is the part of the conversation store the composer drives.
type Sender interface {
	SelectedID() string
	Composing() bool
	Send(ctx context.Context, conversationID, content string) error
}

// Controller holds the input text. It is disabled while no conversation is
// selected or a reply is being composed.
type Controller struct {
	sender Sender

	mu    sync.Mutex
	input string
}

// New creates a Controller sending through sender.
func New(sender Sender) *Controller {
	return &Controller{sender: sender}
}

// Input returns the current text.
func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// SetInput replaces the current text.
func (c *Controller) SetInput(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = s
}

// Disabled reports whether a submit would be refused regardless of input.
func (c *Controller) Disabled() bool {
	return c.sender.SelectedID() == "" || c.sender.Composing()
}

// CanSubmit reports whether Submit would send something now.
func (c *Controller) CanSubmit() bool {
	return strings.TrimSpace(c.Input()) != "" && !c.Disabled()
}

// Take validates the input and, when it may be sent, clears it and returns
// the target conversation and the trimmed content. Callers that run the
// send asynchronously use Take and then call Send themselves.
func (c *Controller) Take() (conversationID, content string, ok bool) {
	if c.Disabled() {
		return "", "", false
	}
	c.mu.Lock()
	content = strings.TrimSpace(c.input)
	if content == "" {
		c.mu.Unlock()
		return "", "", false
	}
	c.input = ""
	c.mu.Unlock()
	return c.sender.SelectedID(), content, true
}

// Submit sends the input to the selected conversation. It is a no-op when
// the input is blank or the controller is disabled.
func (c *Controller) Submit(ctx context.Context) error {
	id, content, ok := c.Take()
	if !ok {
		return nil
	}
	return c.sender.Send(ctx, id, content)
}

// Enter handles the Enter key: a plain Enter submits, a modified Enter
// inserts a newline. It reports whether a submit was attempted.
func (c *Controller) Enter(ctx context.Context, modified bool) (bool, error) {
	if modified {
		c.mu.Lock()
		c.input += "\n"
		c.mu.Unlock()
		return false, nil
	}
	if !c.CanSubmit() {
		return false, nil
	}
	return true, c.Submit(ctx)
}
