package privacy

import (
	"strings"
	"unicode/utf8"

	"whatsbot/internal/constants"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	keep := constants.DefaultPhoneMaskLength
	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 {
			return phone
		}
		if len(phone) <= keep+1 {
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + maskString(phone[1:], keep)
	}
	return maskString(phone, keep)
}

// MaskJID masks the user part of a WhatsApp JID, keeping the device and
// server so log lines stay readable.
// Example: "15551234567:3@s.whatsapp.net" -> "*******4567:3@s.whatsapp.net"
func MaskJID(jid string) string {
	if jid == "" {
		return ""
	}

	user, server, hasServer := strings.Cut(jid, "@")
	if !hasServer {
		return maskString(jid, constants.DefaultPhoneMaskLength)
	}

	device := ""
	if i := strings.IndexAny(user, ":."); i >= 0 {
		user, device = user[:i], user[i:]
	}
	return maskString(user, constants.DefaultPhoneMaskLength) + device + "@" + server
}

// MaskMessageID masks a message ID, keeping its tail for correlation
// Example: "3EB0C431C26A1916E3A9" -> "****************E3A9"
func MaskMessageID(messageID string) string {
	return maskString(messageID, constants.DefaultMessageIDVisible)
}

// MaskPushName keeps only the first character of a display name
func MaskPushName(name string) string {
	if name == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(name)
	return string(r) + strings.Repeat("*", utf8.RuneCountInString(name[size:]))
}

// MaskSessionName masks a session name while keeping some readability for debugging
// Example: "primary-session-user123" -> "primary-*******-****123"
func MaskSessionName(sessionName string) string {
	if sessionName == "" {
		return ""
	}

	parts := strings.Split(sessionName, "-")
	if len(parts) < 2 {
		return maskString(sessionName, 3)
	}

	result := parts[0]
	for _, p := range parts[1 : len(parts)-1] {
		result += "-" + strings.Repeat("*", len(p))
	}
	return result + "-" + maskString(parts[len(parts)-1], 3)
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			masked[k] = v
			continue
		}
		switch k {
		case "phone", "phone_number":
			masked[k] = MaskPhoneNumber(s)
		case "jid", "remote_jid", "participant", "from", "conversation", "chat":
			masked[k] = MaskJID(s)
		case "message_id", "msg_id":
			masked[k] = MaskMessageID(s)
		case "push_name":
			masked[k] = MaskPushName(s)
		case "session", "session_name":
			masked[k] = MaskSessionName(s)
		default:
			masked[k] = v
		}
	}
	return masked
}
