// Package handoff builds the deep links that connect a requester with the
// accepted mechanic outside the platform: WhatsApp and plain phone calls.
package handoff

import (
	"fmt"
	"net/url"
	"strings"
)

// digits strips everything but digits from a phone number. WhatsApp's wa.me
// links accept international numbers without the plus sign.
func digits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// WhatsAppURL returns a wa.me link opening a chat with the given number,
// pre-filled with message.
func WhatsAppURL(phone, message string) string {
	u := "https://wa.me/" + digits(phone)
	if message != "" {
		u += "?text=" + url.QueryEscape(message)
	}
	return u
}

// TelURL returns a tel: link for the given number.
func TelURL(phone string) string {
	return "tel:" + strings.TrimSpace(phone)
}

// GreetingMessage is the pre-filled first message to the mechanic. The
// breakdown label defaults to a generic one when the diagnostic resolved
// nothing usable.
func GreetingMessage(mechanicFirstName, breakdown string) string {
	if breakdown == "" {
		breakdown = "une panne"
	}
	return fmt.Sprintf("Bonjour %s, je vous contacte via SOS Méca pour %s.", mechanicFirstName, breakdown)
}
