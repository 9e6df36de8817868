// Package vault resolves secrets from HashiCorp Vault's KV v2 engine. It
// backs ports.SecretSource so DSNs and API keys stay out of config files.
package vault

import (
	"fmt"

	"github.com/hashicorp/vault/api"

	"github.com/seu-repo/ocpp-swarm/internal/ports"
)

type SecretManager struct {
	client *api.Client
}

func NewSecretManager(address, token string) (ports.SecretSource, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	client.SetToken(token)

	return &SecretManager{client: client}, nil
}

func (sm *SecretManager) GetDatabaseDSN() (string, error) {
	return sm.readField("secret/data/database", "connection_string")
}

func (sm *SecretManager) GetSendGridKey() (string, error) {
	return sm.readField("secret/data/sendgrid", "api_key")
}

func (sm *SecretManager) readField(path, field string) (string, error) {
	secret, err := sm.client.Logical().Read(path)
	if err != nil {
		return "", err
	}
	if secret == nil {
		return "", fmt.Errorf("vault: no secret at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("vault: unexpected payload at %s", path)
	}
	value, ok := data[field].(string)
	if !ok {
		return "", fmt.Errorf("vault: missing field %s at %s", field, path)
	}
	return value, nil
}
