package dispatch

import (
	"fmt"
	"io"
	"net/http"

	appErrors "github.com/juliancabezast/rentfinder-cleveland-sub000/internal/errors"
)

// classifyStatus maps a non-2xx provider response to a dispatch failure.
// rejected decides which 4xx bodies mean "this recipient" rather than "our
// account".
func classifyStatus(channel string, status int, body []byte, rejected func(status int, body []byte) bool) error {
	err := fmt.Errorf("provider returned %d: %s", status, truncate(body, 256))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return appErrors.NewDispatchError(appErrors.KindConfiguration, channel, err)
	case status == http.StatusTooManyRequests || status >= 500:
		return appErrors.NewDispatchError(appErrors.KindTransient, channel, err)
	case rejected != nil && rejected(status, body):
		return appErrors.NewDispatchError(appErrors.KindRecipientRejected, channel, err)
	}
	return appErrors.NewDispatchError(appErrors.KindConfiguration, channel, err)
}

func readBody(resp *http.Response) []byte {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return b
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
