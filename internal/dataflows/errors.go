package dataflows

import (
	"errors"
	"fmt"
)

var (
	ErrAuth              = errors.New("provider authentication failed")
	ErrDataUnavailable   = errors.New("no data returned")
	ErrUnsupportedMarket = errors.New("no source serves this market")
	ErrInvalidSymbol     = errors.New("invalid symbol")
)

// AuthError aborts a whole fetch: nothing useful can come back without a
// valid token.
type AuthError struct {
	Source string
	Msg    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Source, ErrAuth, e.Msg)
}

func (e *AuthError) Unwrap() error {
	return ErrAuth
}

// DataUnavailableError is reported per identifier and never stops a batch.
type DataUnavailableError struct {
	Code string
	Err  error
}

func (e *DataUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, ErrDataUnavailable, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, ErrDataUnavailable)
}

func (e *DataUnavailableError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDataUnavailable, e.Err}
	}
	return []error{ErrDataUnavailable}
}

func unavailable(code string, err error) error {
	return &DataUnavailableError{Code: code, Err: err}
}
