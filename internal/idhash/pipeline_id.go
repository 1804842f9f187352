package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputePipelineID computes a deterministic pipeline id when none is configured.
// Formula: SHA256(usecase|name|version), truncated to 16 hex characters.
func ComputePipelineID(usecase, name, version string) string {
	data := fmt.Sprintf("%s|%s|%s", usecase, name, version)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
