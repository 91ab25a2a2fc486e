package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateHexID generates a random hex ID.
func GenerateHexID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// GenerateClientID builds a broker client identifier from the device ID
// plus a random suffix. A fresh suffix per connection attempt keeps the
// broker from colliding the new session with a half-open previous one.
func GenerateClientID(deviceID string) string {
	return fmt.Sprintf("%s_%s", deviceID, GenerateHexID())
}
