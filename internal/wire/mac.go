package wire

import (
	"crypto/hmac"
	"crypto/sha256"
)

// MACSize is the length in bytes of every message authentication tag.
const MACSize = sha256.Size

// SignMAC computes the HMAC-SHA256 tag of data under key.
func SignMAC(data, key []byte) [MACSize]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	var tag [MACSize]byte
	mac.Sum(tag[:0])
	return tag
}

// VerifyMAC reports whether tag authenticates data under key. The
// comparison is constant-time.
func VerifyMAC(data, key, tag []byte) bool {
	if len(tag) != MACSize {
		return false
	}
	want := SignMAC(data, key)
	return hmac.Equal(want[:], tag)
}
