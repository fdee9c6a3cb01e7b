package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks caller input errors.
	ErrValidation = errors.New("validation failed")
	// ErrFetch marks an unreachable media URL or a non-2xx download.
	ErrFetch = errors.New("media fetch failed")
	// ErrMediaTooLarge marks a download exceeding the configured limit.
	ErrMediaTooLarge = errors.New("media too large")
	// ErrClassification marks a failed AI provider call.
	ErrClassification = errors.New("classification failed")
	// ErrUnsupportedMedia marks an unknown kind or an undecodable document.
	ErrUnsupportedMedia = errors.New("unsupported media")
	// ErrDelivery marks a rejected or unreachable conversation system.
	ErrDelivery = errors.New("delivery failed")
)

// Validationf builds an ErrValidation with a caller-facing message.
func Validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ValidationError carries the message shown to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Unsupportedf builds an ErrUnsupportedMedia with a caller-facing message.
func Unsupportedf(format string, args ...any) error {
	return &UnsupportedError{Message: fmt.Sprintf(format, args...)}
}

type UnsupportedError struct {
	Message string
}

func (e *UnsupportedError) Error() string { return e.Message }

func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupportedMedia }

// FetchError describes a failed download. StatusCode is 0 for network faults.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Erro ao baixar mídia do Twilio: %d", e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("Erro ao fazer requisição: %v", e.Err)
	}
	return "Erro ao baixar mídia do Twilio"
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// DeliveryError describes a failed call to the conversation system.
type DeliveryError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("chatwoot %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("chatwoot %s: %v", e.Op, e.Err)
	}
	return "chatwoot " + e.Op + " failed"
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }
