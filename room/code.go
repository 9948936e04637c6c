package room

import (
	"crypto/rand"
	"math/big"
)

// codeCharset 去掉了容易混淆的 I O 0 1
const codeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateCode returns a random uppercase alphanumeric room code.
func GenerateCode(length int) (string, error) {
	b := make([]byte, length)
	max := big.NewInt(int64(len(codeCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeCharset[n.Int64()]
	}
	return string(b), nil
}
