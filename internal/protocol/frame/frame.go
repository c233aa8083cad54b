package frame

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// EscapeChar introduces a two-digit raw byte inside typed text, e.g. `\02`.
const EscapeChar = '\\'

var (
	ErrMalformedFrame  = errors.New("frame: malformed frame")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrUnknownMode     = errors.New("frame: unknown input mode")
)

// Mode selects how user input is turned into wire bytes.
type Mode string

const (
	// ModeASCII treats input as text with `\xx` escapes.
	ModeASCII Mode = "ascii"
	// ModeHex treats input as paired hex digits; whitespace is ignored.
	ModeHex Mode = "hex"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeASCII:
		return ModeASCII, nil
	case ModeHex:
		return ModeHex, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, raw)
	}
}

// Limits constrains composed payload size.
type Limits struct {
	MaxPayloadBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 1024 * 1024}
}

// Encode converts typed text into a hex string. A backslash followed by two
// characters copies those characters as one hex byte group. A character up to
// U+00FF becomes the single byte with its code point, so it reads back the
// same through Text; anything wider contributes its UTF-8 bytes.
func Encode(text string) (string, error) {
	var b strings.Builder
	b.Grow(len(text) * 2)
	i := 0
	for i < len(text) {
		if text[i] == EscapeChar && i+2 < len(text) {
			group := text[i+1 : i+3]
			if !isHexDigit(group[0]) || !isHexDigit(group[1]) {
				return "", fmt.Errorf("%w: invalid escape %q at offset %d", ErrMalformedFrame, `\`+group, i)
			}
			b.WriteString(group)
			i += 3
			continue
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case r == utf8.RuneError && size <= 1:
			size = 1
			b.WriteString(hex.EncodeToString([]byte{text[i]}))
		case r <= 0xFF:
			b.WriteString(hex.EncodeToString([]byte{byte(r)}))
		default:
			b.WriteString(hex.EncodeToString([]byte(text[i : i+size])))
		}
		i += size
	}
	return b.String(), nil
}

// EncodeBytes runs Encode and converts the result to raw bytes.
func EncodeBytes(text string) ([]byte, error) {
	h, err := Encode(text)
	if err != nil {
		return nil, err
	}
	return Decode(h)
}

// Decode converts consecutive two-character hex groups into bytes.
func Decode(h string) ([]byte, error) {
	if len(h)%2 != 0 {
		return nil, fmt.Errorf("%w: odd hex length %d", ErrMalformedFrame, len(h))
	}
	out, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return out, nil
}

// ToHex renders bytes as lowercase paired hex digits.
func ToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// DisplayPair returns the byte-per-character text rendering and the hex rendering.
func DisplayPair(b []byte) (text string, hexText string) {
	return Text(b), ToHex(b)
}

// Text maps each byte to the character with the same code point.
func Text(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// Compose turns user input into wire bytes according to mode.
func Compose(mode Mode, input string, limits Limits) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch mode {
	case ModeASCII, "":
		out, err = EncodeBytes(input)
	case ModeHex:
		out, err = Decode(strings.Join(strings.Fields(input), ""))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if err != nil {
		return nil, err
	}
	if limits.MaxPayloadBytes > 0 && len(out) > limits.MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}
	return out, nil
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
