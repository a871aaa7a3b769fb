// Package checksum fingerprints rendered playbook files so watchers
// and reloads can skip files whose bytes have not changed.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex SHA-256 digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
