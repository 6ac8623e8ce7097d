package privacy

import (
	"testing"
)

func TestMaskPhoneNumber(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"+1234567890", "+******7890"},
		{"+447712345678", "+********5678"},
		{"1234567890", "******7890"},

		{"", ""},
		{"+", "+"},
		{"+1", "+*"},
		{"+1234", "+****"},
		{"+12345", "+*2345"},
		{"1234", "****"},
		{"12", "**"},
	}

	for _, test := range tests {
		result := MaskPhoneNumber(test.input)
		if result != test.expected {
			t.Errorf("MaskPhoneNumber(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestMaskJID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"15551234567@s.whatsapp.net", "*******4567@s.whatsapp.net"},
		{"15551234567:3@s.whatsapp.net", "*******4567:3@s.whatsapp.net"},
		{"15551234567.0:12@s.whatsapp.net", "*******4567.0:12@s.whatsapp.net"},
		{"120363025246125486@g.us", "**************5486@g.us"},
		{"123@s.whatsapp.net", "***@s.whatsapp.net"},
		{"status@broadcast", "**atus@broadcast"},
		{"no-server-part", "**********part"},
		{"", ""},
	}

	for _, test := range tests {
		result := MaskJID(test.input)
		if result != test.expected {
			t.Errorf("MaskJID(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestMaskMessageID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"3EB0C431C26A1916E3A9", "****************E3A9"},
		{"ABCD", "****"},
		{"", ""},
	}

	for _, test := range tests {
		result := MaskMessageID(test.input)
		if result != test.expected {
			t.Errorf("MaskMessageID(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestMaskPushName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Alice", "A****"},
		{"Zoë", "Z**"},
		{"J", "J"},
		{"", ""},
	}

	for _, test := range tests {
		result := MaskPushName(test.input)
		if result != test.expected {
			t.Errorf("MaskPushName(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestMaskSessionName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"primary-session-user123", "primary-*******-****123"},
		{"bot-main", "bot-*ain"},
		{"default", "****ult"},
		{"ab", "**"},
		{"", ""},
	}

	for _, test := range tests {
		result := MaskSessionName(test.input)
		if result != test.expected {
			t.Errorf("MaskSessionName(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestMaskSensitiveFields(t *testing.T) {
	fields := map[string]interface{}{
		"remote_jid":  "15551234567@s.whatsapp.net",
		"participant": "15557654321:2@s.whatsapp.net",
		"message_id":  "3EB0C431C26A1916E3A9",
		"push_name":   "Alice",
		"phone":       "+15551234567",
		"attempt":     3,
		"policy":      "backoff",
	}

	masked := MaskSensitiveFields(fields)

	expected := map[string]interface{}{
		"remote_jid":  "*******4567@s.whatsapp.net",
		"participant": "*******4321:2@s.whatsapp.net",
		"message_id":  "****************E3A9",
		"push_name":   "A****",
		"phone":       "+*******4567",
		"attempt":     3,
		"policy":      "backoff",
	}
	for k, want := range expected {
		if masked[k] != want {
			t.Errorf("field %q = %v, expected %v", k, masked[k], want)
		}
	}

	if MaskSensitiveFields(nil) != nil {
		t.Error("Expected nil for nil input")
	}
}
