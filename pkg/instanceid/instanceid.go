package instanceid

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"
)

// Generate derives a stable id for the local node from the machine's host id
// and hostname. It falls back to a random id when the host id is unavailable.
func Generate() string {
	hostID, err := host.HostID()
	if err != nil || strings.TrimSpace(hostID) == "" {
		return uuid.NewString()
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	return FromParts(hostID, hostname)
}

// FromParts hashes the machine identity parts into a hex id.
func FromParts(hostID, hostname string) string {
	combined := fmt.Sprintf("%s:%s", strings.TrimSpace(hostID), hostname)
	hash := sha256.Sum256([]byte(combined))
	return fmt.Sprintf("%x", hash)
}
