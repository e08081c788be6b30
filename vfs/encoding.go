package vfs

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/wippyai/node-shim/errors"
)

// Decode converts raw file contents to text using a Node encoding name.
// Invalid UTF-8 sequences decode to U+FFFD.
func Decode(data []byte, encoding string) (string, error) {
	switch strings.ToLower(encoding) {
	case "", "utf8", "utf-8":
		return strings.ToValidUTF8(string(data), "\uFFFD"), nil
	case "latin1", "binary":
		r := make([]rune, len(data))
		for i, b := range data {
			r[i] = rune(b)
		}
		return string(r), nil
	case "ascii":
		b := make([]byte, len(data))
		for i, c := range data {
			b[i] = c & 0x7f
		}
		return string(b), nil
	case "hex":
		return hex.EncodeToString(data), nil
	case "base64":
		return base64.StdEncoding.EncodeToString(data), nil
	default:
		return "", errors.New(errors.PhaseTransport, errors.KindInvalidInput).
			Op("decode").
			Name(encoding).
			Detail("unknown encoding: %s", encoding).
			Build()
	}
}
