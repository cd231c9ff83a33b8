package call

import "strings"

// PhoneFromRoom extracts the caller's phone number from a telephony
// room name of the form "call-_<number>_<suffix>". Returns ok=false for
// any other shape; callers fall back to recording the raw room name.
func PhoneFromRoom(room string) (string, bool) {
	rest, found := strings.CutPrefix(room, "call-_")
	if !found {
		return "", false
	}
	number, _, found := strings.Cut(rest, "_")
	if !found || number == "" {
		return "", false
	}
	return number, true
}
