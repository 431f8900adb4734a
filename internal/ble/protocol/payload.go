// Package protocol holds the application payload convention shared by every
// supported peripheral: a single characteristic write of at most 20 bytes.
// The bytes themselves are opaque to the connection core.
package protocol

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// MaxPayloadBytes is the largest payload a single characteristic write carries.
const MaxPayloadBytes = 20

// DefaultPayload returns the 0..19 filler sent when the caller supplies none.
func DefaultPayload() []byte {
	data := make([]byte, MaxPayloadBytes)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

// Parse turns console input into a payload. It accepts a hex string with a
// "0x" or "hex:" prefix, or decimal byte values separated by spaces or commas.
// Empty input yields DefaultPayload.
func Parse(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultPayload(), nil
	}

	var data []byte
	if rest, ok := cutPrefixFold(s, "0x", "hex:"); ok {
		b, err := hex.DecodeString(strings.ReplaceAll(rest, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("protocol: parse hex payload: %w", err)
		}
		data = b
	} else {
		fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
		data = make([]byte, 0, len(fields))
		for _, f := range fields {
			v, err := strconv.ParseUint(f, 10, 8)
			if err != nil {
				return nil, fmt.Errorf("protocol: parse byte %q: %w", f, err)
			}
			data = append(data, byte(v))
		}
	}

	if len(data) > MaxPayloadBytes {
		return nil, fmt.Errorf("protocol: payload is %d bytes, max %d", len(data), MaxPayloadBytes)
	}
	return data, nil
}

// Format renders a payload as space-separated decimal bytes.
func Format(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(int(v)))
	}
	return b.String()
}

func cutPrefixFold(s string, prefixes ...string) (string, bool) {
	for _, p := range prefixes {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			return s[len(p):], true
		}
	}
	return s, false
}
