// room/code.go
package room

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"
)

const (
	// CodeAlphabet 去掉了容易混淆的 I/L/O/0/1
	CodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	// CodeLength 房间码长度
	CodeLength = 6
)

// GenerateCode 使用 crypto/rand 生成一个随机房间码
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(CodeAlphabet)))
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(CodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode strips every whitespace rune, upper-cases the rest and keeps
// at most CodeLength runes.
func NormalizeCode(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	runes := []rune(strings.ToUpper(cleaned))
	if len(runes) > CodeLength {
		runes = runes[:CodeLength]
	}
	return string(runes)
}

// ValidCode reports whether a normalized code has the expected length.
// Characters outside CodeAlphabet are accepted so that hand typed codes
// still reach a room if one happens to exist under them.
func ValidCode(code string) bool {
	return len([]rune(code)) == CodeLength
}
