package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/atomicio"
)

const credentialsFile = "credentials.json"

// Credentials is the locally stored account identity and access token
// used to build an emitter.AccountScope and drive the sync pipeline's
// bearer auth. Authentication UX itself (the login flow's UI, token
// exchange protocol) is an external collaborator per spec §1 non-goals;
// this is just the at-rest storage the core's auth command manages.
type Credentials struct {
	ServerURL   string `json:"server_url"`
	Username    string `json:"username"`
	TeamSlug    string `json:"team_slug"`
	AccessToken string `json:"access_token"`
}

func credentialsPath(home string) string {
	return filepath.Join(home, "cache", credentialsFile)
}

// LoadCredentials reads the stored credentials, returning (nil, nil) if
// none are stored yet (not logged in is not an error).
func LoadCredentials(home string) (*Credentials, error) {
	var c Credentials
	err := atomicio.ReadJSON(credentialsPath(home), &c)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}
	return &c, nil
}

// SaveCredentials atomically persists c, creating the cache directory if
// needed.
func SaveCredentials(home string, c *Credentials) error {
	if err := os.MkdirAll(filepath.Join(home, "cache"), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	return atomicio.WriteJSON(credentialsPath(home), c)
}

// ClearCredentials removes any stored credentials; logging out when
// already logged out is not an error.
func ClearCredentials(home string) error {
	err := os.Remove(credentialsPath(home))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
