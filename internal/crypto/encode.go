package crypto

import "encoding/base64"

// B64 returns standard base64 without padding or newlines.
func B64(b []byte) string { return base64.RawStdEncoding.EncodeToString(b) }
