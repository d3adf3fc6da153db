package mail

import (
	"fmt"
	"strings"

	logx "stockalert/pkg/logx"
)

const (
	ServicePostmark = "postmark"
	ServiceDev      = "dev"
)

// Config is read from the environment. Credentials are optional so that a
// process without them can still start.
type Config struct {
	Service              string `env:"MAIL_SERVICE"`
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"MAIL_SENDER"`
	ReplyTo              string `env:"MAIL_REPLY_TO"`
	DevDir               string `env:"MAIL_DEV_DIR" envDefault:"./mail-output"`
}

// New selects a sender from cfg. It never returns nil: when the selected
// service cannot be built it logs a warning and returns an Unconfigured sender.
func New(cfg Config, log logx.Logger) Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	s, err := build(cfg)
	if err != nil {
		log.Warn("mail delivery not configured; every send will fail", logx.Err(err))
		return Unconfigured(err.Error())
	}
	log.Info("mail delivery configured", logx.String("service", cfg.service()))
	return s
}

func build(cfg Config) (Sender, error) {
	switch svc := cfg.service(); svc {
	case ServicePostmark:
		return NewPostmark(cfg)
	case ServiceDev:
		if strings.TrimSpace(cfg.DevDir) == "" {
			return nil, fmt.Errorf("%w: MAIL_DEV_DIR is required", ErrInvalidConfig)
		}
		return NewDevSender(cfg.DevDir), nil
	case "":
		return nil, fmt.Errorf("%w: MAIL_SERVICE is not set", ErrInvalidConfig)
	default:
		return nil, fmt.Errorf("%w: unknown MAIL_SERVICE %q", ErrInvalidConfig, svc)
	}
}

// service defaults to postmark when a server token is present.
func (c Config) service() string {
	svc := strings.ToLower(strings.TrimSpace(c.Service))
	if svc == "" && c.PostmarkServerToken != "" {
		return ServicePostmark
	}
	return svc
}
