package node

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/lumeranet/corekad/internal/kbucket"
	corekaderrors "github.com/lumeranet/corekad/pkg/errors"
)

const identityFileName = "identity.key"

// LoadOrCreateIdentity reads a hex-encoded node ID from dataDir,
// generating and persisting a fresh one on first run. The identity
// file is the node's long-lived name on the network, so callers must
// keep it around across restarts.
func LoadOrCreateIdentity(dataDir string) (kbucket.NodeId, error) {
	path := filepath.Join(dataDir, identityFileName)

	if data, err := os.ReadFile(path); err == nil {
		raw, decodeErr := hex.DecodeString(string(data))
		if decodeErr != nil {
			return nil, corekaderrors.Wrap(decodeErr, "node: decode identity file")
		}
		return kbucket.NodeId(raw), nil
	} else if !os.IsNotExist(err) {
		return nil, corekaderrors.Wrap(err, "node: read identity file")
	}

	id, err := NewNodeID()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, corekaderrors.Wrap(err, "node: create data dir")
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(id)), 0o600); err != nil {
		return nil, corekaderrors.Wrap(err, "node: write identity file")
	}
	return id, nil
}
