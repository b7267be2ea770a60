package util

import (
	"strings"
	"testing"
)

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	if version == "" {
		t.Error("Expected a non-empty version")
	}
	if strings.ContainsAny(version, " \n") {
		t.Errorf("Expected trimmed version, got '%s'", version)
	}
}

func TestGetNameAndVersion(t *testing.T) {
	result := GetNameAndVersion()
	expected := "mangafedi / " + GetVersion()
	if result != expected {
		t.Errorf("Expected '%s', got '%s'", expected, result)
	}
}

func TestNormalizeInput(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"plain", "plain"},
		{"line1\nline2", "line1 line2"},
		{"crlf\r\nline", "crlf line"},
		{"  padded\n", "padded"},
	}
	for _, tt := range tests {
		if got := NormalizeInput(tt.input); got != tt.expected {
			t.Errorf("NormalizeInput(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "One Piece", "one-piece"},
		{"punctuation", "Re:Zero - Starting Life!", "re-zero-starting-life"},
		{"accents", "Café Brûlé", "cafe-brule"},
		{"leading and trailing", "  --Hello--  ", "hello"},
		{"empty", "", "series"},
		{"only symbols", "!!!", "series"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.input); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestSlugifyLength(t *testing.T) {
	slug := Slugify(strings.Repeat("abc ", 50))
	if len(slug) > 80 {
		t.Errorf("Expected slug of at most 80 chars, got %d", len(slug))
	}
	if strings.HasSuffix(slug, "-") {
		t.Errorf("Slug should not end with a dash: %s", slug)
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		valid    bool
	}{
		{"Example.COM", "example.com", true},
		{"  spam.example.org. ", "spam.example.org", true},
		{"localhost", "localhost", false},
		{"bad_domain.com", "bad_domain.com", false},
		{"-lead.com", "-lead.com", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeDomain(tt.input)
		if got != tt.expected || ok != tt.valid {
			t.Errorf("NormalizeDomain(%q): expected (%q, %v), got (%q, %v)", tt.input, tt.expected, tt.valid, got, ok)
		}
	}
}

func TestDomainFromURI(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://Mastodon.Social/users/alice", "mastodon.social"},
		{"https://example.com:8443/inbox", "example.com"},
		{"not a uri", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DomainFromURI(tt.input); got != tt.expected {
			t.Errorf("DomainFromURI(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestStripTags(t *testing.T) {
	got := StripTags(`<p>Hello <a href="https://x">@bob</a> &amp; friends</p>`)
	if got != "Hello @bob & friends" {
		t.Errorf("Expected stripped content, got '%s'", got)
	}
}

func TestExtractUUID(t *testing.T) {
	uri := "https://example.com/users/11111111-2222-3333-4444-555555555555/comments/AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE"
	if got := ExtractUUID(uri); got != "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee" {
		t.Errorf("Expected last uuid, got '%s'", got)
	}
	if got := ExtractUUID("https://example.com/no-id"); got != "" {
		t.Errorf("Expected empty result, got '%s'", got)
	}
}
