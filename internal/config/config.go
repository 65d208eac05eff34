// Package config loads and validates the node's on-disk configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/p2pmsg/overlay/internal/util"
)

// Config is the full set of options recognized by a node, per the data
// model's Configuration section: role hint, relay address, DHT seed
// peers, and the preferred listen port.
type Config struct {
	Identity Identity `json:"identity"`
	Node     Node     `json:"node"`
}

type Identity struct {
	// StorageDir is the directory the identity key file lives under.
	StorageDir string `json:"storage_dir"`
	// InstanceName keys the identity file: identity_<instance_name>.bin.
	InstanceName string `json:"instance_name"`
}

type Node struct {
	// IsBootstrapNode is a role hint. relaynode sets it on a freshly
	// created config and warns when it is false; listener binding does
	// not read it (it follows the binary's role and ListenPort).
	IsBootstrapNode bool `json:"is_bootstrap_node"`

	// RelayAddress is the multiaddress of a circuit-relay server,
	// optionally terminated by a /p2p-circuit marker. Empty disables
	// relay use.
	RelayAddress string `json:"relay_address"`

	// BootstrapNodes is the list of DHT seed multiaddresses, each
	// terminated by a /p2p/<peer-id> component.
	BootstrapNodes []string `json:"bootstrap_nodes"`

	// ListenPort is the preferred TCP/QUIC port; 0 means OS-assigned.
	ListenPort int `json:"listen_port"`
}

// Default returns the zero-relay, zero-bootstrap client configuration.
func Default() Config {
	return Config{
		Identity: Identity{
			StorageDir:   "data",
			InstanceName: "default",
		},
		Node: Node{
			IsBootstrapNode: false,
			RelayAddress:    "",
			BootstrapNodes:  nil,
			ListenPort:      0,
		},
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Identity.StorageDir) == "" {
		return errors.New("identity.storage_dir is required")
	}
	name, err := util.ValidatePeerName(c.Identity.InstanceName)
	if err != nil {
		return fmt.Errorf("identity.instance_name: %w", err)
	}
	c.Identity.InstanceName = name
	if c.Node.ListenPort < 0 || c.Node.ListenPort > 65535 {
		return errors.New("node.listen_port must be 0..65535")
	}
	return nil
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
