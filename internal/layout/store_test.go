package layout

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/linkctl/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

func field(pos int, name string) Field {
	return Field{
		BMPPosition:   pos,
		LengthType:    LengthFixed,
		DataType:      DataAlphanumeric,
		Justification: JustifyLeft,
		Filler:        " ",
		FieldName:     name,
	}
}

func TestOpenSeedsMissingFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "layouts.toml")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, err := s.Get(DefaultLayoutName)
	if err != nil {
		t.Fatalf("get default: %v", err)
	}
	if diff := cmp.Diff(DefaultLayout(), got); diff != "" {
		t.Fatalf("default layout mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("store file should exist after seeding: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if diff := cmp.Diff(s.All(), reopened.All()); diff != "" {
		t.Fatalf("reopened store mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenReinitializesCorruptFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "layouts.toml")
	if err := os.WriteFile(path, []byte("[layouts\nnot toml"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if names := s.Names(); len(names) != 1 || names[0] != DefaultLayoutName {
		t.Fatalf("unexpected names after reinit: %v", names)
	}
	aside, err := os.ReadFile(path + ".corrupt")
	if err != nil {
		t.Fatalf("corrupt copy missing: %v", err)
	}
	if string(aside) != "[layouts\nnot toml" {
		t.Fatalf("corrupt copy altered: %q", aside)
	}
}

func TestOpenTreatsInvalidFieldsAsCorrupt(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "layouts.toml")
	body := `
[[layouts.BAD.fields]]
bmp_position = 0
length_type = "fixed"
data_type = "numeric"
justification = "right"
filler = "0"
field_name = "broken"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Get("BAD"); !errors.Is(err, ErrLayoutNotFound) {
		t.Fatalf("invalid layout should be dropped, got %v", err)
	}
}

func TestSavePersistsAndSortsFields(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "nested", "layouts.toml")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	in := []Field{field(7, "seven"), field(3, "three")}
	in[0].LengthType = "Variable"
	got, err := s.Save("POS", in)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if got.Fields[0].BMPPosition != 3 || got.Fields[1].BMPPosition != 7 {
		t.Fatalf("fields not sorted: %+v", got.Fields)
	}
	if got.Fields[1].LengthType != LengthVariable {
		t.Fatalf("length type not normalized: %q", got.Fields[1].LengthType)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	persisted, err := reopened.Get("POS")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(got, persisted); diff != "" {
		t.Fatalf("persisted layout mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{DefaultLayoutName, "POS"}, reopened.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	testlog.Start(t)
	s := NewMemoryStore()

	cases := map[string][]Field{
		"duplicate position": {field(2, "a"), field(2, "b")},
		"position zero":      {field(0, "a")},
		"position too high":  {field(MaxBMPPosition+1, "a")},
		"empty name":         {field(1, "  ")},
		"long filler":        {func() Field { f := field(1, "a"); f.Filler = "00"; return f }()},
		"bad data type":      {func() Field { f := field(1, "a"); f.DataType = "binary"; return f }()},
		"numeric default":    {func() Field { f := field(1, "a"); f.DataType = DataNumeric; f.DefaultValue = "12a"; return f }()},
	}
	for name, fields := range cases {
		if _, err := s.Save("X", fields); !errors.Is(err, ErrInvalidField) {
			t.Fatalf("%s: expected ErrInvalidField, got %v", name, err)
		}
	}
	if _, err := s.Save("  ", nil); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if _, err := s.Get("X"); !errors.Is(err, ErrLayoutNotFound) {
		t.Fatalf("rejected saves must not create a layout")
	}
}

func TestFieldOperations(t *testing.T) {
	testlog.Start(t)
	s := NewMemoryStore()

	l, err := s.AddField(DefaultLayoutName, field(4, "Amount"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(l.Fields) != 3 || l.Fields[2].FieldName != "Amount" {
		t.Fatalf("unexpected fields after add: %+v", l.Fields)
	}
	if _, err := s.AddField(DefaultLayoutName, field(4, "Dup")); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("expected duplicate position rejection, got %v", err)
	}

	l, err = s.UpdateField(DefaultLayoutName, 0, field(10, "Moved"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	positions := []int{l.Fields[0].BMPPosition, l.Fields[1].BMPPosition, l.Fields[2].BMPPosition}
	if diff := cmp.Diff([]int{2, 4, 10}, positions); diff != "" {
		t.Fatalf("positions after update (-want +got):\n%s", diff)
	}
	if _, err := s.UpdateField(DefaultLayoutName, 3, field(11, "x")); !errors.Is(err, ErrFieldIndex) {
		t.Fatalf("expected ErrFieldIndex, got %v", err)
	}

	l, err = s.DeleteField(DefaultLayoutName, 1)
	if err != nil {
		t.Fatalf("delete field: %v", err)
	}
	if len(l.Fields) != 2 || l.Fields[1].FieldName != "Moved" {
		t.Fatalf("unexpected fields after delete: %+v", l.Fields)
	}
	if _, err := s.DeleteField(DefaultLayoutName, -1); !errors.Is(err, ErrFieldIndex) {
		t.Fatalf("expected ErrFieldIndex, got %v", err)
	}
	if _, err := s.AddField("missing", field(1, "a")); !errors.Is(err, ErrLayoutNotFound) {
		t.Fatalf("expected ErrLayoutNotFound, got %v", err)
	}
}

func TestDeleteLayout(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "layouts.toml")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Delete(DefaultLayoutName); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(DefaultLayoutName); !errors.Is(err, ErrLayoutNotFound) {
		t.Fatalf("expected ErrLayoutNotFound, got %v", err)
	}
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(reopened.Names()) != 0 {
		t.Fatalf("deletion not persisted: %v", reopened.Names())
	}
}

func TestGetReturnsCopy(t *testing.T) {
	testlog.Start(t)
	s := NewMemoryStore()
	l, _ := s.Get(DefaultLayoutName)
	l.Fields[0].FieldName = "mutated"
	again, _ := s.Get(DefaultLayoutName)
	if again.Fields[0].FieldName != "Transaction Code" {
		t.Fatalf("store state leaked through Get")
	}
}

func TestValidateLeavesFileUntouched(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "layouts.toml")
	if err := os.WriteFile(path, []byte("not = [toml"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Validate(path); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := os.Stat(path + ".corrupt"); err == nil {
		t.Fatalf("validate must not move the file aside")
	}
	if err := Validate(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
