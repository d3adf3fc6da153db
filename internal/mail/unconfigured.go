package mail

import (
	"context"
	"fmt"
)

type unconfigured struct {
	reason string
}

// Unconfigured returns a sender that fails every delivery with ErrNotConfigured.
func Unconfigured(reason string) Sender {
	return unconfigured{reason: reason}
}

func (u unconfigured) SendEmail(_ context.Context, params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if u.reason == "" {
		return ErrNotConfigured
	}
	return fmt.Errorf("%w: %s", ErrNotConfigured, u.reason)
}
