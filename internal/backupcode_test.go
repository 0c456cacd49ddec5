package internal

import (
	"strings"
	"testing"
)

func TestNewBackupCodeUsesAlphabet(t *testing.T) {
	code, err := NewBackupCode(10)
	if err != nil {
		t.Fatalf("NewBackupCode failed: %v", err)
	}
	if len(code) != 10 {
		t.Fatalf("expected 10 characters, got %d", len(code))
	}
	for _, c := range code {
		if !strings.ContainsRune(BackupCodeAlphabet, c) {
			t.Fatalf("unexpected character %q in %s", c, code)
		}
	}
	for _, ambiguous := range "01OI" {
		if strings.ContainsRune(code, ambiguous) {
			t.Fatalf("ambiguous character %q in %s", ambiguous, code)
		}
	}
}

func TestFormatBackupCode(t *testing.T) {
	if got := FormatBackupCode("ABCDE23456"); got != "ABCDE-23456" {
		t.Fatalf("unexpected format: %s", got)
	}
	// Short codes are left alone.
	if got := FormatBackupCode("ABC"); got != "ABC" {
		t.Fatalf("unexpected format: %s", got)
	}
}

func TestCanonicalizeBackupCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ABCDE-23456", "ABCDE23456"},
		{"  abcde 23456  ", "ABCDE23456"},
		{"abcde23456", "ABCDE23456"},
	}
	for _, tc := range cases {
		if got := CanonicalizeBackupCode(tc.in); got != tc.want {
			t.Fatalf("CanonicalizeBackupCode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBackupCodeHashBindsIdentity(t *testing.T) {
	a := BackupCodeHash("staff-1", "ABCDE23456")
	b := BackupCodeHash("staff-2", "ABCDE23456")
	if a == b {
		t.Fatal("expected identity-bound hashes to differ")
	}
	if a != BackupCodeHash("staff-1", "ABCDE23456") {
		t.Fatal("expected deterministic hash")
	}

	// The separator prevents boundary ambiguity between identity and code.
	if BackupCodeHash("staff-1X", "Y") == BackupCodeHash("staff-1", "XY") {
		t.Fatal("expected separator to disambiguate inputs")
	}
}
