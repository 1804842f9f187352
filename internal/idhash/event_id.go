package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ComputeEventID computes a deterministic discount event_id using SHA256.
// Formula: SHA256(seller_id|product_id|start_unix_ms)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(sellerID, productID string, start time.Time) string {
	data := fmt.Sprintf("%s|%s|%d",
		sellerID,
		productID,
		start.UnixMilli(),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
