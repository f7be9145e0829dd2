package dispatch

import (
	"strings"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
)

const (
	SMSOptOut   = "Reply STOP to opt out."
	EmailOptOut = "To unsubscribe from these messages, reply with \"unsubscribe\"."
)

// EnsureOptOut appends the channel's opt-out instruction unless the body
// already carries one. Matching is case-insensitive.
func EnsureOptOut(ch model.Channel, body string) string {
	lower := strings.ToLower(body)
	switch ch {
	case model.ChannelSMS:
		if strings.Contains(lower, "reply stop") || strings.Contains(lower, "text stop") {
			return body
		}
		return appendLine(body, SMSOptOut)
	case model.ChannelEmail:
		if strings.Contains(lower, "unsubscribe") {
			return body
		}
		return appendLine(body, EmailOptOut)
	}
	return body
}

func appendLine(body, line string) string {
	body = strings.TrimRight(body, " \n")
	if body == "" {
		return line
	}
	return body + "\n\n" + line
}
