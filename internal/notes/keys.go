package notes

import (
	"fmt"
	"os"
	"strings"

	"github.com/nbd-wtf/go-nostr"

	"github.com/notescan/notescan/internal/core/domain"
)

// loadOrCreateKey reads the hex signing key from path, generating and
// persisting a fresh one when the file does not exist yet.
func loadOrCreateKey(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		key := strings.TrimSpace(string(raw))
		if key == "" {
			return "", fmt.Errorf("%w: key file %s is empty", domain.ErrNotAuthenticated, path)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("%w: reading key file %s: %v", domain.ErrNotAuthenticated, path, err)
	}

	key := nostr.GeneratePrivateKey()
	if key == "" {
		return "", fmt.Errorf("%w: key generation failed", domain.ErrNotAuthenticated)
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("%w: persisting key file %s: %v", domain.ErrNotAuthenticated, path, err)
	}
	return key, nil
}
