package requestid

import (
	"regexp"

	"github.com/google/uuid"
)

// Header carries the request ID in both directions
const Header = "X-Request-ID"

// MaxLength caps accepted IDs at the length of a UUID
const MaxLength = 36

var validID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Resolve returns incoming when it is a usable request ID, otherwise a new UUID.
// Usable IDs are at most MaxLength characters of [a-zA-Z0-9._-] starting with an alphanumeric.
func Resolve(incoming string) string {
	if len(incoming) > 0 && len(incoming) <= MaxLength && validID.MatchString(incoming) {
		return incoming
	}
	return uuid.NewString()
}
