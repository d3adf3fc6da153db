// Package compose turns fired rule fragments into one message per recipient.
package compose

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"sync/atomic"
	texttemplate "text/template"
	"time"

	"stockalert/internal/alert"
)

const (
	DefaultSubject = "Inventory Alert Summary"
	// Tag is attached to every delivery for provider-side filtering.
	Tag = "inventory-alert"

	dateLayout = "January 2, 2006"
	footer     = "This is an automated message from your inventory system. You can change which alerts you receive in your notification preferences."
)

// Message is a composed notification. It is discarded after the delivery attempt.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Rules   []alert.Rule
}

type Composer struct {
	subject string
	loc     atomic.Pointer[time.Location]
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// New returns a composer using a fixed subject for every message.
// An empty subject falls back to DefaultSubject; a nil loc to time.Local.
func New(subject string, loc *time.Location) *Composer {
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}
	if loc == nil {
		loc = time.Local
	}
	c := &Composer{
		subject: subject,
		html:    htmltemplate.Must(htmltemplate.New("html").Parse(htmlBody)),
		text:    texttemplate.Must(texttemplate.New("text").Parse(textBody)),
	}
	c.loc.Store(loc)
	return c
}

func (c *Composer) Subject() string { return c.subject }

// SetLocation changes the zone the message date is rendered in. Nil is ignored.
func (c *Composer) SetLocation(loc *time.Location) {
	if loc != nil {
		c.loc.Store(loc)
	}
}

type view struct {
	Name      string
	Date      string
	Fragments []alert.Fragment
	Footer    string
}

// Compose builds the message for r from results in evaluation order.
// Results that did not fire are ignored. It returns (nil, nil) when nothing fired.
func (c *Composer) Compose(r alert.Recipient, results []alert.Result, now time.Time) (*Message, error) {
	fired := alert.Fired(results)
	if len(fired) == 0 {
		return nil, nil
	}

	v := view{
		Name:      r.DisplayName(),
		Date:      now.In(c.loc.Load()).Format(dateLayout),
		Fragments: make([]alert.Fragment, 0, len(fired)),
		Footer:    footer,
	}
	rules := make([]alert.Rule, 0, len(fired))
	for _, res := range fired {
		v.Fragments = append(v.Fragments, res.Fragment)
		rules = append(rules, res.Rule)
	}

	var hb, tb bytes.Buffer
	if err := c.html.Execute(&hb, v); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}
	if err := c.text.Execute(&tb, v); err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}

	return &Message{
		To:      r.Email,
		Subject: c.subject,
		HTML:    hb.String(),
		Text:    tb.String(),
		Rules:   rules,
	}, nil
}
