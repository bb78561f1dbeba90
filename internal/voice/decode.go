package voice

import (
	"encoding/base64"
	"strings"
)

var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// decodePayload decodes a base64 voice payload, tolerating a data URL prefix and any
// of the common alphabets. Payloads that are not base64 at all are kept as raw bytes.
func decodePayload(payload string) []byte {
	s := strings.TrimSpace(payload)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	for _, enc := range encodings {
		if b, err := enc.DecodeString(s); err == nil {
			return b
		}
	}
	return []byte(payload)
}
