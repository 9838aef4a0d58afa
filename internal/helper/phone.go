package helper

import (
	"fmt"
	"regexp"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

var nonDigits = regexp.MustCompile(`[^\d]`)
var validFormat = regexp.MustCompile(`^[\d\s\+\-\(\)]+$`)

// ToJID converts a phone number to the JID format the driver expects.
func ToJID(phone string) (types.JID, error) {
	if !validFormat.MatchString(phone) {
		return types.JID{}, fmt.Errorf("invalid phone number format: contains invalid characters")
	}

	cleaned := nonDigits.ReplaceAllString(phone, "")
	if len(cleaned) < 7 {
		return types.JID{}, fmt.Errorf("phone number too short")
	}

	return types.JID{
		User:   cleaned,
		Server: types.DefaultUserServer,
	}, nil
}

// NormalizePhone turns a driver identity (bare digits or a JID-ish string)
// into the canonical +-prefixed form stored on the session record.
func NormalizePhone(s string) string {
	digits := nonDigits.ReplaceAllString(ExtractPhoneFromJID(s), "")
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// ExtractPhoneFromJID strips server and device parts from a JID.
// "6285148107612:43@s.whatsapp.net" -> "6285148107612"
func ExtractPhoneFromJID(jid string) string {
	beforeAt := jid
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		beforeAt = jid[:i]
	}
	if i := strings.IndexByte(beforeAt, ':'); i >= 0 {
		return beforeAt[:i]
	}
	return beforeAt
}
