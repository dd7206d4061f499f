// Package taskstore connects CLI commands to a task store.
//
// The same positional argument selects a REST server (http:// or
// https:// URL) or a local store directory, so every command works
// identically against both.
package taskstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/nlpipe/nlpipe/internal/logger"
	"github.com/nlpipe/nlpipe/pkg/apiclient"
	"github.com/nlpipe/nlpipe/pkg/store"
	storefs "github.com/nlpipe/nlpipe/pkg/store/fs"
)

// IsRemote reports whether serverOrDir names a REST server rather than
// a local directory.
func IsRemote(serverOrDir string) bool {
	return strings.HasPrefix(serverOrDir, "http://") || strings.HasPrefix(serverOrDir, "https://")
}

// Connect opens the task store named by serverOrDir. The returned
// cleanup releases whatever the connection holds and is safe to call
// always.
//
// For remote stores the token is attached to every request; an empty
// token connects anonymously, which works against servers that run
// with authentication disabled.
func Connect(serverOrDir, token string, timeout time.Duration) (store.Interface, func(), error) {
	if serverOrDir == "" {
		return nil, nil, fmt.Errorf("no server or directory given")
	}

	if IsRemote(serverOrDir) {
		logger.Debug("Connecting to REST server", "server", serverOrDir, "token", token != "")
		opts := []apiclient.Option{}
		if token != "" {
			opts = append(opts, apiclient.WithToken(token))
		}
		if timeout > 0 {
			opts = append(opts, apiclient.WithTimeout(timeout))
		}
		return apiclient.New(serverOrDir, opts...), func() {}, nil
	}

	logger.Debug("Connecting to local repository", "dir", serverOrDir)
	st, err := storefs.New(storefs.DefaultConfig(serverOrDir))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store %s: %w", serverOrDir, err)
	}
	return st, func() { _ = st.Close() }, nil
}
