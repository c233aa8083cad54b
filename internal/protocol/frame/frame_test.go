package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/linkctl/internal/testutil/testlog"
)

func TestEncodeEscapeCopiesGroupVerbatim(t *testing.T) {
	testlog.Start(t)
	got, err := Encode(`\41`)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got != "41" {
		t.Fatalf("expected 41, got %q", got)
	}
}

func TestEncodeMixedTextAndEscapes(t *testing.T) {
	testlog.Start(t)
	got, err := Encode(`\02AB\03`)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got != "02414203" {
		t.Fatalf("unexpected hex=%q", got)
	}
	raw, err := EncodeBytes(`\02AB\03`)
	if err != nil {
		t.Fatalf("encode bytes: %v", err)
	}
	if !bytes.Equal(raw, []byte{0x02, 'A', 'B', 0x03}) {
		t.Fatalf("unexpected bytes=% x", raw)
	}
}

func TestEncodePadsControlCharacters(t *testing.T) {
	testlog.Start(t)
	got, err := Encode("a\n")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got != "610a" {
		t.Fatalf("unexpected hex=%q", got)
	}
}

func TestEncodeTrailingBackslashIsLiteral(t *testing.T) {
	testlog.Start(t)
	for in, want := range map[string]string{
		`\`:   "5c",
		`\4`:  "5c34",
		`x\4`: "785c34",
	} {
		got, err := Encode(in)
		if err != nil {
			t.Fatalf("encode %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("encode %q: got %q want %q", in, got, want)
		}
	}
}

func TestEncodeRejectsInvalidEscape(t *testing.T) {
	testlog.Start(t)
	if _, err := Encode(`\zz`); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
}

func TestEncodeLatin1RuneUsesCodePoint(t *testing.T) {
	testlog.Start(t)
	got, err := Encode("é")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got != "e9" {
		t.Fatalf("unexpected hex=%q", got)
	}
	out, err := EncodeBytes("Hié")
	if err != nil {
		t.Fatalf("encode bytes: %v", err)
	}
	if text, _ := DisplayPair(out); text != "Hié" {
		t.Fatalf("typed text should render back unchanged, got %q", text)
	}
}

func TestEncodeWideRuneUsesUTF8(t *testing.T) {
	testlog.Start(t)
	got, err := Encode("€")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got != "e282ac" {
		t.Fatalf("unexpected hex=%q", got)
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	testlog.Start(t)
	for _, in := range []string{"a", "abc", "zz", "0g"} {
		if _, err := Decode(in); !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("decode %q: expected ErrMalformedFrame, got %v", in, err)
		}
	}
}

func TestDecodeToHexRoundTrip(t *testing.T) {
	testlog.Start(t)
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	for _, in := range [][]byte{{}, {0x00}, {0xAA}, []byte("ISO8583"), all} {
		out, err := Decode(ToHex(in))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !bytes.Equal(out, in) {
			t.Fatalf("round trip mismatch: in=% x out=% x", in, out)
		}
	}
}

func TestDecodeAcceptsUppercase(t *testing.T) {
	testlog.Start(t)
	out, err := Decode("AAff")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(out, []byte{0xAA, 0xFF}) {
		t.Fatalf("unexpected bytes=% x", out)
	}
}

func TestDisplayPair(t *testing.T) {
	testlog.Start(t)
	text, h := DisplayPair([]byte{'H', 'i', 0xE9})
	if text != "Hié" {
		t.Fatalf("unexpected text=%q", text)
	}
	if h != "4869e9" {
		t.Fatalf("unexpected hex=%q", h)
	}
	if len([]rune(text)) != 3 {
		t.Fatalf("text must keep one character per byte")
	}
}

func TestComposeModes(t *testing.T) {
	testlog.Start(t)
	out, err := Compose(ModeHex, "AA bb\n0c", DefaultLimits())
	if err != nil {
		t.Fatalf("compose hex: %v", err)
	}
	if !bytes.Equal(out, []byte{0xAA, 0xBB, 0x0C}) {
		t.Fatalf("unexpected hex compose=% x", out)
	}
	out, err = Compose(ModeASCII, `ok\0d`, DefaultLimits())
	if err != nil {
		t.Fatalf("compose ascii: %v", err)
	}
	if string(out) != "ok\r" {
		t.Fatalf("unexpected ascii compose=%q", out)
	}
	if _, err := Compose(ModeHex, "aabb", Limits{MaxPayloadBytes: 1}); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if _, err := Compose(Mode("bin"), "x", DefaultLimits()); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	testlog.Start(t)
	if m, err := ParseMode(" HEX "); err != nil || m != ModeHex {
		t.Fatalf("unexpected mode=%q err=%v", m, err)
	}
	if m, err := ParseMode(""); err != nil || m != ModeASCII {
		t.Fatalf("empty mode should default to ascii, got %q err=%v", m, err)
	}
	if _, err := ParseMode("base64"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}
