// Package presence derives stable display attributes for participants.
//
// Color and avatar are deterministic functions of the presence key, so the
// same participant renders consistently across reconnects within a room
// without any stored profile state.
package presence

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var colors = []string{
	"#2563eb",
	"#db2777",
	"#f97316",
	"#0ea5e9",
	"#10b981",
	"#a855f7",
	"#facc15",
	"#ec4899",
}

var avatars = []string{"🧑‍🚀", "🧝‍♀️", "🧙‍♂️", "🧚", "🧟", "🐱", "🐸", "🐼"}

// PickColor returns the accent color for a presence key.
func PickColor(key string) string {
	return colors[hash(key)%len(colors)]
}

// PickAvatar returns the avatar glyph for a presence key.
func PickAvatar(key string) string {
	return avatars[hash(key)%len(avatars)]
}

// GuestKey generates a presence key for an unauthenticated viewer.
// Stable only for the lifetime of the session that generated it.
func GuestKey() string {
	return fmt.Sprintf("guest-%s", uuid.New().String())
}

// IsGuestKey reports whether a presence key belongs to an unauthenticated viewer.
func IsGuestKey(key string) bool {
	return strings.HasPrefix(key, "guest-")
}

// hash sums the byte values of the key. Deliberately simple: it only needs to
// be stable and spread keys across the small palettes above.
func hash(key string) int {
	sum := 0
	for _, b := range []byte(key) {
		sum += int(b)
	}
	return sum
}
