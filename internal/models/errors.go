package models

import "errors"

var (
	ErrProxyNotFound       = errors.New("proxy not found")
	ErrNoProxiesAvailable  = errors.New("no proxies available")
	ErrInvalidCandidate    = errors.New("invalid proxy candidate")
	ErrProviderUnavailable = errors.New("provider not configured")
)
