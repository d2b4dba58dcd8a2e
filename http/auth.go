package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Request authentication headers.
const (
	HeaderToken     = "X-Token"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// RequestSigner adds HMAC request authentication headers to outbound requests.
type RequestSigner struct {
	token  string
	secret []byte
	now    func() time.Time
}

// NewRequestSigner creates a signer. secretHex must be hex encoded.
func NewRequestSigner(token, secretHex string) (*RequestSigner, error) {
	if token == "" {
		return nil, fmt.Errorf("auth token is required")
	}
	secret, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(secretHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid auth secret: %w", err)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("auth secret is required")
	}
	return &RequestSigner{token: token, secret: secret, now: time.Now}, nil
}

// Sign sets the token, timestamp and signature headers on req. body must be
// the exact bytes sent, or nil.
func (s *RequestSigner) Sign(req *http.Request, body []byte) {
	ts := s.now().Unix()
	canonical := CanonicalRequest(req.Method, req.URL.EscapedPath(), req.URL.RawQuery, body, ts)

	req.Header.Set(HeaderToken, s.token)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, s.signature(canonical))
}

func (s *RequestSigner) signature(canonical string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// CanonicalRequest builds the string covered by the request signature:
// method, path without its /api or /mcp prefix, raw query, hex SHA-256 of
// the body (empty when there is none) and the unix timestamp, one per line.
func CanonicalRequest(method, path, rawQuery string, body []byte, ts int64) string {
	for _, prefix := range []string{"/api/", "/mcp/"} {
		if strings.HasPrefix(path, prefix) {
			path = path[len(prefix)-1:]
			break
		}
	}

	var bodyHash string
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		bodyHash = hex.EncodeToString(sum[:])
	}

	return strings.Join([]string{
		strings.ToUpper(method),
		path,
		rawQuery,
		bodyHash,
		strconv.FormatInt(ts, 10),
	}, "\n")
}
