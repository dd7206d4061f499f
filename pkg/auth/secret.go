package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// machineIDFiles are checked in order for a stable machine identifier.
var machineIDFiles = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// DeriveSecret returns the token signing secret. A configured secret is
// used as-is; otherwise a secret is derived from the machine identity, so
// minted tokens survive server restarts without any secret management.
//
// Derived secrets are machine-local: moving the store to another host
// invalidates outstanding tokens unless a secret is configured explicitly.
func DeriveSecret(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	seed := machineID()
	reader := hkdf.New(sha256.New, []byte(seed), []byte("nlpipe-token-v1"), []byte("api token secret"))

	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// machineID returns a stable identifier for this host. Falls back to the
// hostname when no machine-id file is readable.
func machineID() string {
	for _, path := range machineIDFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "nlpipe"
	}
	return hostname
}
