// Package identity loads or creates the long-lived keypair a node is
// identified by.
package identity

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("overlay/identity")

// Path returns the on-disk location of the identity file for the given
// storage directory and instance name.
func Path(storageDir, instanceName string) string {
	return filepath.Join(storageDir, fmt.Sprintf("identity_%s.bin", instanceName))
}

// LoadOrCreate reads the identity file at <storage_dir>/identity_<instance_name>.bin.
// If it exists and decodes as a keypair, it is returned. Otherwise a fresh
// Ed25519 keypair is generated; persistence failures are logged and
// non-fatal, so the node can still run with a volatile identity.
//
// This never returns an error for a missing or corrupt file — only for
// failure to generate a fresh key, which should not happen in practice.
func LoadOrCreate(storageDir, instanceName string) (crypto.PrivKey, error) {
	keyFile := Path(storageDir, instanceName)

	if data, err := os.ReadFile(keyFile); err == nil {
		priv, err := crypto.UnmarshalPrivateKey(data)
		if err == nil {
			log.Infof("loaded identity key: %s", keyFile)
			return priv, nil
		}
		log.Warnf("corrupt identity key at %s: %v (generating new key)", keyFile, err)
	}

	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, fmt.Errorf("generate identity key: %w", err)
	}

	if err := persist(keyFile, priv); err != nil {
		log.Warnf("could not persist identity key: %v (continuing with volatile identity)", err)
		return priv, nil
	}

	log.Infof("generated new identity key: %s", keyFile)
	return priv, nil
}

func persist(keyFile string, priv crypto.PrivKey) error {
	raw, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return fmt.Errorf("marshal identity key: %w", err)
	}

	if dir := filepath.Dir(keyFile); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create key directory: %w", err)
		}
	}

	if err := os.WriteFile(keyFile, raw, 0o600); err != nil {
		return fmt.Errorf("save identity key: %w", err)
	}

	return nil
}
