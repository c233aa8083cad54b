package auth

import (
	"errors"
	"testing"

	"github.com/danmuck/linkctl/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		header  string
		want    string
		wantErr error
	}{
		{header: "Bearer s3cret", want: "s3cret"},
		{header: "bearer   s3cret ", want: "s3cret"},
		{header: "Basic s3cret", wantErr: ErrUnauthorized},
		{header: "Bearer", wantErr: ErrUnauthorized},
		{header: "Bearer  ", wantErr: ErrUnauthorized},
		{header: "", wantErr: ErrUnauthorized},
	}
	for _, tc := range tests {
		got, err := BearerToken(tc.header)
		if !errors.Is(err, tc.wantErr) || got != tc.want {
			t.Fatalf("header %q: got (%q, %v), want (%q, %v)", tc.header, got, err, tc.want, tc.wantErr)
		}
	}
}

func TestFromConfig(t *testing.T) {
	testlog.Start(t)
	if FromConfig("  ") != nil {
		t.Fatalf("blank token should disable auth")
	}
	v := FromConfig("abc")
	if v == nil || v.Validate("abc") != nil {
		t.Fatalf("configured token should validate")
	}
	fn := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})
	if err := fn.Validate("bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad token, got %v", err)
	}
}
