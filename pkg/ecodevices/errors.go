package ecodevices

import (
	"errors"
	"fmt"
)

// ConnectError is a transient failure: network error, timeout or non-2xx status.
type ConnectError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ConnectError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("eco-devices request %s failed with status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("eco-devices request %s failed: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// AuthError means the gateway rejected the configured credentials.
type AuthError struct {
	URL        string
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("eco-devices request %s rejected credentials (status %d)", e.URL, e.StatusCode)
}

// ProtocolError means the payload does not look like an Eco-Devices answer.
type ProtocolError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("eco-devices api request error, url: %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("eco-devices api request error, url: %s: %s", e.URL, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

func IsConnectError(err error) bool {
	var connErr *ConnectError
	return errors.As(err, &connErr)
}

func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return errors.As(err, &protoErr)
}
