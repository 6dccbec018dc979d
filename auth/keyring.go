// Package auth provides a high-level API for persisting and retrieving server credentials from the system keyring.
package auth

import (
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	"github.com/shelfplay-cli/shelfplay/key"
)

const (
	service = "shelfplay-cli"
	user    = "server-token"
)

// SetToken persists the media server API token to the system keyring.
func SetToken(token string) error {
	return keyring.Set(service, user, token)
}

// Token retrieves the media server API token.
// Resolution order: system keyring first, then the server.token configuration key
// (which viper also binds to SHELFPLAY_SERVER_TOKEN) for headless environments without a keyring daemon.
func Token() (string, error) {
	token, err := keyring.Get(service, user)
	if err == nil && token != "" {
		return token, nil
	}

	if fromConfig := viper.GetString(key.ServerToken); fromConfig != "" {
		return fromConfig, nil
	}

	return "", err
}

// DeleteToken removes the media server API token from the system keyring.
func DeleteToken() error {
	return keyring.Delete(service, user)
}
