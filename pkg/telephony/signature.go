package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// validateSignature checks the carrier's X-Twilio-Signature header: the
// HMAC-SHA1 of the full request URL concatenated with the POST parameters
// sorted by key, keyed by the account auth token.
//
// The URL must match what the carrier signed; behind a TLS-terminating
// proxy the scheme is recovered from X-Forwarded-Proto.
func validateSignature(r *http.Request, authToken string, form url.Values) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}

	fullURL := requestURL(r)

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(fullURL)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(form.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(sb.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	u := scheme + "://" + r.Host + r.URL.Path
	if r.URL.RawQuery != "" {
		u += "?" + r.URL.RawQuery
	}
	return u
}

// redactPhone masks a phone number for logging. PII never lands in logs in
// the clear.
func redactPhone(number string) string {
	if len(number) <= 6 {
		return "***"
	}
	return number[:4] + "****" + number[len(number)-2:]
}
