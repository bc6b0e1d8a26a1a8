package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrCredentialsUnavailable is returned by a CredentialProvider that cannot supply new
// credentials, for example when running non-interactively.
var ErrCredentialsUnavailable = errors.New("no replacement credentials available")

// ErrAntiBotBlock indicates the API answered with a bot challenge instead of JSON.
type ErrAntiBotBlock struct {
	Err    error
	Status int
	Title  string
}

func (e ErrAntiBotBlock) Error() string {
	msg := "anti_bot"
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Title != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Title)
	}
	if e.Err != nil {
		return fmt.Errorf("%s: %w", msg, e.Err).Error()
	}
	return msg
}

func (e ErrAntiBotBlock) Unwrap() error {
	return e.Err
}

// ErrNetwork indicates a transport failure, timeout, or unusable HTTP status.
type ErrNetwork struct {
	Err    error
	Status int
}

func (e ErrNetwork) Error() string {
	return fmt.Errorf("network: %w", e.Err).Error()
}

func (e ErrNetwork) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the request may succeed.
func (e ErrNetwork) Temporary() bool {
	return e.Status == 0 || e.Status >= http.StatusInternalServerError
}

// ErrParse indicates a JSON response that does not have the expected shape.
type ErrParse struct {
	Err error
}

func (e ErrParse) Error() string {
	return fmt.Errorf("parse: %w", e.Err).Error()
}

func (e ErrParse) Unwrap() error {
	return e.Err
}

// IsAntiBotBlock reports whether err is (or wraps) an anti-bot challenge.
func IsAntiBotBlock(err error) bool {
	var block ErrAntiBotBlock
	return errors.As(err, &block)
}

func errorKindLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var block ErrAntiBotBlock
	if errors.As(err, &block) {
		return "anti_bot"
	}
	var netErr ErrNetwork
	if errors.As(err, &netErr) {
		return "network"
	}
	var parse ErrParse
	if errors.As(err, &parse) {
		return "parse"
	}
	return "other"
}

// classifyTransportError maps an error from the HTTP layer to ErrNetwork or ErrAntiBotBlock.
func classifyTransportError(err error, statusCode int) error {
	switch statusCode {
	case http.StatusForbidden, http.StatusTooManyRequests:
		if err == nil {
			err = fmt.Errorf("http status %d", statusCode)
		}
		return ErrAntiBotBlock{Err: err, Status: statusCode}
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrNetwork{Err: fmt.Errorf("timeout: %w", err)}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrNetwork{Err: fmt.Errorf("timeout: %w", err)}
	}
	if err == nil {
		err = fmt.Errorf("http status %d", statusCode)
	}
	return ErrNetwork{Err: err, Status: statusCode}
}
