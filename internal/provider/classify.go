package provider

import (
	"fmt"
	"net/http"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

// maxErrorBody bounds how much upstream body ends up in a key's error field.
const maxErrorBody = 200

// Classify maps an upstream HTTP status to a key status. It is the single
// source of status classification; the relay path never writes statuses.
//
//	2xx      -> active
//	401, 403 -> invalid
//	429      -> quota_exceeded
//	other    -> invalid, with the status and body head captured
func Classify(status int, body []byte) (gateway.KeyStatus, string) {
	switch {
	case status >= 200 && status < 300:
		return gateway.KeyActive, ""
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return gateway.KeyInvalid, httpError(status, body)
	case status == http.StatusTooManyRequests:
		return gateway.KeyQuotaExceeded, httpError(status, body)
	default:
		return gateway.KeyInvalid, httpError(status, body)
	}
}

func httpError(status int, body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return fmt.Sprintf("HTTP %d: %s", status, body)
}
