//go:build !darwin

package config

import "errors"

func keychainExec(service, account string) ([]byte, error) {
	return nil, errors.New("keychain not available on this platform")
}

func apiKeyHint() string {
	return ""
}
