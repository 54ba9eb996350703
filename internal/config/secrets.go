package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
)

// SecretsFile is the optional secrets document in the data folder.
const SecretsFile = "secrets.yaml"

const apiTokenFile = "api_token"

// Secrets is the content of secrets.yaml.
type Secrets struct {
	LLMAPIKey string `yaml:"llm_api_key"`
}

// ReadSecrets reads <dir>/secrets.yaml. A missing file yields empty secrets.
func ReadSecrets(dir string) (Secrets, error) {
	var s Secrets
	path := filepath.Join(dir, SecretsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parsing %s: %w", path, err)
	}
	s.LLMAPIKey = strings.TrimSpace(s.LLMAPIKey)
	return s, nil
}

// APIToken returns the bearer token protecting the HTTP API. APPLYBOT_API_TOKEN
// wins; otherwise the token is read from <dataDir>/api_token and generated on
// first use.
func APIToken(dataDir string) (string, error) {
	if t := os.Getenv("APPLYBOT_API_TOKEN"); t != "" {
		return t, nil
	}
	path := filepath.Join(dataDir, apiTokenFile)
	data, err := os.ReadFile(path)
	if err == nil {
		if t := strings.TrimSpace(string(data)); t != "" {
			return t, nil
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("reading API token: %w", err)
	}

	token := uuid.NewString()
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return "", fmt.Errorf("creating data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("writing API token: %w", err)
	}
	return token, nil
}
