package overlay

import (
	"crypto/rand"
	"fmt"
)

// randomPeerID returns a random 32-byte key encoded as hex, used only as
// a closest-peers query target to perturb the routing table — it need
// not decode to a real peer ID.
func randomPeerID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random target: %w", err)
	}
	return fmt.Sprintf("%x", buf), nil
}
