package flagged

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	fixture "github.com/iDeFi-AI/api-v2/fixtures/flagged"
	"github.com/iDeFi-AI/api-v2/internal/risk"
)

func addr(c string) string { return "0x" + strings.Repeat(c, 40) }

func loadFixture(t *testing.T) *Dataset {
	t.Helper()
	d, err := Parse(fixture.JSON, FormatJSON)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return d
}

func TestParse_FixtureAddresses(t *testing.T) {
	d := loadFixture(t)
	if d.Len() != 2 {
		t.Fatalf("entries=%d", d.Len())
	}
	want := []string{
		addr("1"), addr("2"), addr("3"), addr("4"), addr("5"), addr("6"),
		addr("a"), addr("b"), addr("c"),
	}
	if diff := cmp.Diff(want, d.Addresses().Addresses()); diff != "" {
		t.Fatalf("addresses (-want +got):\n%s", diff)
	}
}

func TestCheck(t *testing.T) {
	d := loadFixture(t)
	tests := []struct {
		name string
		in   string
		want risk.AddressRecord
	}{
		{
			name: "grandparent",
			in:   strings.ToUpper(addr("a")),
			want: risk.AddressRecord{
				Address:     strings.ToUpper(addr("a")),
				Status:      risk.StatusFail,
				Grandparent: addr("a"),
				Parents:     []string{addr("b")},
				Children:    risk.Children{addr("b"): {addr("c")}},
			},
		},
		{
			name: "parent",
			in:   addr("3"),
			want: risk.AddressRecord{
				Address:     addr("3"),
				Status:      risk.StatusWarning,
				Grandparent: addr("1"),
				Parents:     []string{addr("2"), addr("3")},
				Children:    risk.Children{addr("3"): {addr("6")}},
			},
		},
		{
			name: "child",
			in:   addr("5"),
			want: risk.AddressRecord{
				Address:     addr("5"),
				Status:      risk.StatusWarning,
				Grandparent: addr("1"),
				Parents:     []string{addr("2")},
				Children:    risk.Children{addr("2"): {addr("4"), addr("5")}},
			},
		},
		{
			name: "clean",
			in:   addr("9"),
			want: risk.AddressRecord{Address: addr("9"), Status: risk.StatusPass},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Check(tt.in)
			if got.Description == "" {
				t.Fatal("description should explain the result")
			}
			got.Description = ""
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("check (-want +got):\n%s", diff)
			}
		})
	}
}

// A checked parent carries its flagged grandparent, so resolving against the
// dataset's own flagged set raises it to FAIL.
func TestCheckThenResolve(t *testing.T) {
	d := loadFixture(t)
	recs, err := d.CheckAddresses(context.Background(), "ethereum", []string{addr("2"), addr("6"), addr("9")})
	if err != nil {
		t.Fatal(err)
	}
	flagged, err := d.FlaggedAddresses(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got, err := risk.Resolve(recs, flagged)
	if err != nil {
		t.Fatal(err)
	}
	want := []risk.Status{risk.StatusFail, risk.StatusFail, risk.StatusPass}
	for i, r := range got {
		if r.Status != want[i] {
			t.Fatalf("record %d (%s) status %v want %v", i, r.Address, r.Status, want[i])
		}
	}
}

func TestParse_YAML(t *testing.T) {
	doc := `
- grandparent: "0xAB"
  parents: ["0xCD", ""]
  children:
    "0xCD": ["0xEF"]
`
	d, err := Parse([]byte(doc), FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"0xab", "0xcd", "0xef"}, d.Addresses().Addresses()); diff != "" {
		t.Fatalf("addresses (-want +got):\n%s", diff)
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse([]byte(`{"grandparent":"0x1"}`), FormatJSON); err == nil {
		t.Fatal("expected error for non-list json")
	}
	if _, err := Parse([]byte(`[{"children":{"0x1":"0x2"}}]`), FormatJSON); err == nil {
		t.Fatal("expected error for malformed children")
	}
	if _, err := Parse([]byte("- parents: {a: b}"), FormatYAML); err == nil {
		t.Fatal("expected error for malformed yaml parents")
	}
	if _, err := Parse(nil, Format("toml")); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err=%v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "flagged.json")
	if err := os.WriteFile(jsonPath, fixture.JSON, 0o600); err != nil {
		t.Fatal(err)
	}
	d, err := Load(jsonPath)
	if err != nil || d.Len() != 2 {
		t.Fatalf("load json: d=%v err=%v", d, err)
	}
	ymlPath := filepath.Join(dir, "flagged.yml")
	if err := os.WriteFile(ymlPath, []byte("- grandparent: \"0x1\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if d, err := Load(ymlPath); err != nil || !d.Addresses().Has("0x1") {
		t.Fatalf("load yml: err=%v", err)
	}
	if _, err := Load(filepath.Join(dir, "flagged.txt")); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err=%v", err)
	}
	if _, err := Load(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	d := loadFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.CheckAddresses(ctx, "", []string{addr("1")}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if _, err := d.FlaggedAddresses(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}
