package mail_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockalert/internal/mail"
	logx "stockalert/pkg/logx"
)

func validParams() mail.Params {
	return mail.Params{
		SendTo:   "user@example.com",
		Subject:  "Inventory Alert Summary",
		BodyHTML: "<p>hello</p>",
		BodyText: "hello",
		Tag:      "inventory-alert",
	}
}

func TestParams_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*mail.Params)
		errMsg string
	}{
		{name: "valid params", mutate: func(*mail.Params) {}},
		{name: "missing recipient", mutate: func(p *mail.Params) { p.SendTo = "" }, errMsg: "send_to is required"},
		{name: "bad recipient", mutate: func(p *mail.Params) { p.SendTo = "not-an-address" }, errMsg: "valid email address"},
		{name: "missing subject", mutate: func(p *mail.Params) { p.Subject = "  " }, errMsg: "subject is required"},
		{name: "missing body", mutate: func(p *mail.Params) { p.BodyHTML = "" }, errMsg: "body_html is required"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := validParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, mail.ErrInvalidParams)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewPostmark_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cfg    mail.Config
		errMsg string
	}{
		{name: "missing server token", cfg: mail.Config{SenderEmail: "from@example.com"}, errMsg: "POSTMARK_SERVER_TOKEN"},
		{name: "missing sender", cfg: mail.Config{PostmarkServerToken: "tok"}, errMsg: "MAIL_SENDER is required"},
		{name: "bad sender", cfg: mail.Config{PostmarkServerToken: "tok", SenderEmail: "nope"}, errMsg: "MAIL_SENDER must be"},
		{name: "bad reply-to", cfg: mail.Config{PostmarkServerToken: "tok", SenderEmail: "from@example.com", ReplyTo: "x"}, errMsg: "MAIL_REPLY_TO"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := mail.NewPostmark(tt.cfg)
			assert.Nil(t, s)
			require.ErrorIs(t, err, mail.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewPostmark_ValidConfig(t *testing.T) {
	t.Parallel()
	s, err := mail.NewPostmark(mail.Config{PostmarkServerToken: "tok", SenderEmail: "from@example.com"})
	require.NoError(t, err)
	assert.NotNil(t, s)

	err = s.SendEmail(context.Background(), mail.Params{})
	assert.ErrorIs(t, err, mail.ErrInvalidParams)
}

func TestNew_FallsBackToUnconfigured(t *testing.T) {
	t.Parallel()

	for _, cfg := range []mail.Config{
		{},
		{Service: "smtp"},
		{Service: "postmark"},
		{Service: "dev", DevDir: " "},
	} {
		s := mail.New(cfg, logx.Nop())
		require.NotNil(t, s)
		err := s.SendEmail(context.Background(), validParams())
		assert.ErrorIs(t, err, mail.ErrNotConfigured, "cfg %+v", cfg)
	}
}

func TestNew_SelectsService(t *testing.T) {
	t.Parallel()

	s := mail.New(mail.Config{Service: "DEV", DevDir: t.TempDir()}, logx.Nop())
	_, ok := s.(*mail.DevSender)
	assert.True(t, ok, "got %T", s)

	s = mail.New(mail.Config{PostmarkServerToken: "tok", SenderEmail: "from@example.com"}, logx.Nop())
	assert.Equal(t, "*mail.postmarkSender", fmt.Sprintf("%T", s))
}

func TestDevSender_WritesFiles(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	s := mail.NewDevSender(dir)
	require.NoError(t, s.SendEmail(context.Background(), validParams()))
	require.NoError(t, s.SendEmail(context.Background(), validParams()))

	htmlFiles, err := filepath.Glob(filepath.Join(dir, "*.html"))
	require.NoError(t, err)
	jsonFiles, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	assert.Len(t, htmlFiles, 2)
	require.Len(t, jsonFiles, 2)

	for _, f := range htmlFiles {
		assert.Contains(t, f, "user_at_example.com")
		b, err := os.ReadFile(f)
		require.NoError(t, err)
		assert.Equal(t, "<p>hello</p>", string(b))
	}

	b, err := os.ReadFile(jsonFiles[0])
	require.NoError(t, err)
	var meta map[string]string
	require.NoError(t, json.Unmarshal(b, &meta))
	assert.Equal(t, "user@example.com", meta["send_to"])
	assert.Equal(t, "Inventory Alert Summary", meta["subject"])
	assert.Equal(t, "inventory-alert", meta["tag"])
	assert.Equal(t, "hello", meta["body_text"])
}

func TestDevSender_RejectsInvalidParams(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "never")
	err := mail.NewDevSender(dir).SendEmail(context.Background(), mail.Params{SendTo: "user@example.com"})
	assert.ErrorIs(t, err, mail.ErrInvalidParams)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUnconfigured(t *testing.T) {
	t.Parallel()

	err := mail.Unconfigured("no token").SendEmail(context.Background(), validParams())
	require.ErrorIs(t, err, mail.ErrNotConfigured)
	assert.Contains(t, err.Error(), "no token")

	err = mail.Unconfigured("").SendEmail(context.Background(), validParams())
	assert.Equal(t, mail.ErrNotConfigured, err)
}

func TestRateLimited(t *testing.T) {
	t.Parallel()

	rec := &mail.Recorder{}
	assert.Same(t, rec, mail.RateLimited(rec, 0))

	s := mail.RateLimited(rec, 1)
	require.NoError(t, s.SendEmail(context.Background(), validParams()))

	// The single token is spent; the next send waits past the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.SendEmail(ctx, validParams())
	require.Error(t, err)
	assert.Len(t, rec.Sent(), 1)
}

func TestRecorder_Concurrent(t *testing.T) {
	t.Parallel()

	rec := &mail.Recorder{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rec.SendEmail(context.Background(), validParams())
		}()
	}
	wg.Wait()
	assert.Len(t, rec.Sent(), 20)

	err := rec.SendEmail(context.Background(), mail.Params{})
	assert.True(t, errors.Is(err, mail.ErrInvalidParams))
	assert.Len(t, rec.Sent(), 20)
}
