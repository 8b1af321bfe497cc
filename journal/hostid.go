package journal

import (
	"encoding/hex"
	"os"
	"strings"
)

// hostMachineID returns this host's 16-byte machine id (§3, §4.7 step 5),
// read from /etc/machine-id. Hosts without one (containers that never ran
// systemd-machine-id-setup, non-Linux test environments) fall back to 16
// zero bytes rather than failing Open; a mismatch against a zeroed id in a
// file created elsewhere is harmless since both sides degrade the same way.
func hostMachineID() []byte {
	return readHexID("/etc/machine-id")
}

// hostBootID returns this boot's 16-byte id (§3, used as the by_monotonic
// key and to decide whether a monotonic timestamp is comparable across
// reboots), read from /proc/sys/kernel/random/boot_id.
func hostBootID() []byte {
	raw, err := os.ReadFile("/proc/sys/kernel/random/boot_id")
	if err != nil {
		return make([]byte, 16)
	}
	hexStr := strings.ReplaceAll(strings.TrimSpace(string(raw)), "-", "")
	id, err := hex.DecodeString(hexStr)
	if err != nil || len(id) != 16 {
		return make([]byte, 16)
	}
	return id
}

func readHexID(path string) []byte {
	raw, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return make([]byte, 16)
	}
	hexStr := strings.TrimSpace(string(raw))
	id, err := hex.DecodeString(hexStr)
	if err != nil || len(id) != 16 {
		return make([]byte, 16)
	}
	return id
}
