package webauth

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Digest access authentication per RFC 2617. All protocol state is carried
// in the nonce and the request headers; nothing is kept server-side.

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// privateHash signs a nonce timestamp with the server secret and the client
// address so a stolen nonce cannot be replayed from elsewhere.
func privateHash(timestamp int64, clientAddress, serverSecret string) string {
	return md5Hex(fmt.Sprintf("%d:%s:%s", timestamp, clientAddress, serverSecret))
}

// MintNonce encodes "timestamp:privateHash" for a new challenge.
func MintNonce(clientAddress, serverSecret string) string {
	ts := time.Now().Unix()
	return base64.StdEncoding.EncodeToString(
		[]byte(fmt.Sprintf("%d:%s", ts, privateHash(ts, clientAddress, serverSecret))))
}

// nonceTimestamp decodes the timestamp half of a nonce. A timestamp that
// does not parse is data corruption, not a failed check, and raises a hard
// error.
func nonceTimestamp(nonce string) (int64, string, error) {
	raw, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrMalformedNonce, err)
	}
	ts, sig, ok := strings.Cut(string(raw), ":")
	if !ok {
		return 0, "", fmt.Errorf("%w: missing separator", ErrMalformedNonce)
	}
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: bad timestamp %q", ErrMalformedNonce, ts)
	}
	return n, sig, nil
}

// ValidateNonce recomputes the private hash from the decoded timestamp and
// compares. Detects tampering without any server-side state.
func ValidateNonce(nonce, clientAddress, serverSecret string) (bool, error) {
	ts, sig, err := nonceTimestamp(nonce)
	if err != nil {
		return false, err
	}
	expected := privateHash(ts, clientAddress, serverSecret)
	return subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1, nil
}

// IsStale reports whether the nonce was minted more than timeout seconds
// ago.
func IsStale(nonce string, timeoutSeconds int) (bool, error) {
	ts, _, err := nonceTimestamp(nonce)
	if err != nil {
		return false, err
	}
	return time.Unix(ts, 0).Add(time.Duration(timeoutSeconds) * time.Second).Before(time.Now()), nil
}

// CalcHA1 hashes username:realm:password. Stored per account so the clear
// password never needs to be kept.
func CalcHA1(username, realm, password string) string {
	return md5Hex(username + ":" + realm + ":" + password)
}

// CalcHA2 hashes method:uri.
func CalcHA2(method, uri string) string {
	return md5Hex(method + ":" + uri)
}

// CalcResponse computes the digest response value. With an empty qop the
// older RFC 2069 form is used.
func CalcResponse(ha1, nonce, nc, cnonce, qop, ha2 string) string {
	if qop == "" {
		return md5Hex(ha1 + ":" + nonce + ":" + ha2)
	}
	return md5Hex(strings.Join([]string{ha1, nonce, nc, cnonce, qop, ha2}, ":"))
}

// ChallengeHeader builds the WWW-Authenticate value for a 401 challenge.
func ChallengeHeader(realm, nonce string) string {
	return fmt.Sprintf(`Digest realm="%s", nonce="%s", qop="auth"`, realm, nonce)
}

// DigestFields holds the parsed Authorization: Digest header plus the
// request method the response covers.
type DigestFields struct {
	UserName string
	Realm    string
	Nonce    string
	Uri      string
	Response string
	Qop      string
	Nc       string
	CNonce   string
	Method   string
}

var digestRequired = []struct {
	name string
	get  func(*DigestFields) string
}{
	{"username", func(f *DigestFields) string { return f.UserName }},
	{"realm", func(f *DigestFields) string { return f.Realm }},
	{"nonce", func(f *DigestFields) string { return f.Nonce }},
	{"uri", func(f *DigestFields) string { return f.Uri }},
	{"response", func(f *DigestFields) string { return f.Response }},
	{"qop", func(f *DigestFields) string { return f.Qop }},
	{"nc", func(f *DigestFields) string { return f.Nc }},
	{"cnonce", func(f *DigestFields) string { return f.CNonce }},
}

// ParseDigestAuthorization parses an "Authorization: Digest ..." header.
func ParseDigestAuthorization(header, method string) (*DigestFields, error) {
	const prefix = "Digest "
	if !strings.HasPrefix(header, prefix) {
		return nil, NewAuthError(ErrCodeMalformedRequest, "not a digest authorization header", "Authorization")
	}
	fields := &DigestFields{Method: method}
	for _, part := range splitDigestParams(header[len(prefix):]) {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch key {
		case "username":
			fields.UserName = value
		case "realm":
			fields.Realm = value
		case "nonce":
			fields.Nonce = value
		case "uri":
			fields.Uri = value
		case "response":
			fields.Response = value
		case "qop":
			fields.Qop = value
		case "nc":
			fields.Nc = value
		case "cnonce":
			fields.CNonce = value
		}
	}
	for _, req := range digestRequired {
		if req.get(fields) == "" {
			return nil, NewAuthError(ErrCodeMissingField, "missing digest field", req.name)
		}
	}
	return fields, nil
}

// splitDigestParams splits on commas outside quoted strings. Nonce values
// are base64 and never contain commas, but quoted uri values may.
func splitDigestParams(s string) []string {
	var parts []string
	var sb strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			sb.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, strings.TrimSpace(sb.String()))
			sb.Reset()
		default:
			sb.WriteRune(r)
		}
	}
	if sb.Len() > 0 {
		parts = append(parts, strings.TrimSpace(sb.String()))
	}
	return parts
}

// ValidateResponse runs the four digest sub-checks: the nonce is authentic,
// the nonce is not stale, the response matches the stored HA1, and nc is not
// an exact reuse of the last-seen value. Failed checks return false; only a
// corrupt nonce returns an error.
//
// The nc guard deliberately compares against the single last-seen value
// rather than enforcing a strictly increasing counter, so out-of-order reuse
// of an older nc is accepted.
func ValidateResponse(fields *DigestFields, clientAddress, serverSecret string, timeoutSeconds int, storedHA1, lastSeenNc string) (bool, error) {
	authentic, err := ValidateNonce(fields.Nonce, clientAddress, serverSecret)
	if err != nil {
		return false, err
	}
	if !authentic {
		return false, nil
	}
	stale, err := IsStale(fields.Nonce, timeoutSeconds)
	if err != nil {
		return false, err
	}
	if stale {
		return false, nil
	}
	if fields.Nc == lastSeenNc {
		return false, nil
	}
	ha2 := CalcHA2(fields.Method, fields.Uri)
	expected := CalcResponse(storedHA1, fields.Nonce, fields.Nc, fields.CNonce, fields.Qop, ha2)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(fields.Response)) == 1, nil
}
