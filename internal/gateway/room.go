package gateway

import (
	"strings"

	"github.com/google/uuid"
)

// roomSeparator joins the two participant identifiers of a
// conversation room.
const roomSeparator = "_"

// ValidRoomID reports whether value has the shape of a room
// identifier: a canonical 36-character UUID, or two non-empty
// participant tokens joined by a single separator. It never panics;
// malformed input simply yields false.
func ValidRoomID(value string) bool {
	if value == "" {
		return false
	}

	if strings.Contains(value, roomSeparator) {
		parts := strings.Split(value, roomSeparator)
		if len(parts) != 2 {
			return false
		}
		return parts[0] != "" && parts[1] != ""
	}

	return isCanonicalUUID(value)
}

func isCanonicalUUID(value string) bool {
	// uuid.Parse also accepts urn: and braced forms, so pin the
	// canonical 8-4-4-4-12 length first.
	if len(value) != 36 {
		return false
	}

	_, err := uuid.Parse(value)
	return err == nil
}

// CanAccessRoom reports whether userId is one of the two participants
// encoded in a conversation room identifier. Matching is exact token
// equality, not substring containment, so user "1" cannot read room
// "11_22". A single-token room id encodes no participants and is only
// accessible as the user's own private channel.
func CanAccessRoom(userId, roomId string) bool {
	if userId == "" || roomId == "" {
		return false
	}

	parts := strings.Split(roomId, roomSeparator)
	if len(parts) != 2 {
		return roomId == userId
	}

	return parts[0] == userId || parts[1] == userId
}
