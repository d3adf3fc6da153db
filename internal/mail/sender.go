package mail

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Sender delivers one message. Implementations must be safe for concurrent use.
type Sender interface {
	SendEmail(ctx context.Context, params Params) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, params Params) error

func (f SenderFunc) SendEmail(ctx context.Context, params Params) error { return f(ctx, params) }

type Params struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	BodyText string `json:"body_text,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidAddress reports whether s looks like a deliverable address.
func ValidAddress(s string) bool { return emailRegex.MatchString(strings.TrimSpace(s)) }

func (p Params) Validate() error {
	if strings.TrimSpace(p.SendTo) == "" {
		return fmt.Errorf("%w: send_to is required", ErrInvalidParams)
	}
	if !ValidAddress(p.SendTo) {
		return fmt.Errorf("%w: send_to must be a valid email address", ErrInvalidParams)
	}
	if strings.TrimSpace(p.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidParams)
	}
	if strings.TrimSpace(p.BodyHTML) == "" {
		return fmt.Errorf("%w: body_html is required", ErrInvalidParams)
	}
	return nil
}
