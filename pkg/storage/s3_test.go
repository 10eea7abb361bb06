package storage

import (
	"strings"
	"testing"
)

func TestValidateAvatarFileType(t *testing.T) {
	tests := []struct {
		contentType, filename string
		want                  string
		ok                    bool
	}{
		{"image/png", "", "image/png", true},
		{"IMAGE/JPG", "", "image/jpeg", true},
		{"", "me.webp", "image/webp", true},
		{"", "clip.mp4", "", false},
		{"video/mp4", "x.gif", "image/gif", true},
		{"", "", "", false},
	}
	for _, tt := range tests {
		got, ok := ValidateAvatarFileType(tt.contentType, tt.filename)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ValidateAvatarFileType(%q, %q) = %q %v", tt.contentType, tt.filename, got, ok)
		}
	}
}

func TestAvatarKey(t *testing.T) {
	key := AvatarKey(42, "image/png")
	if !strings.HasPrefix(key, "avatars/42/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("unexpected key %q", key)
	}
	if AvatarKey(42, "image/png") == key {
		t.Fatal("keys must be unique")
	}
}

func TestKeyFromURL(t *testing.T) {
	key := "avatars/7/abc.png"
	direct := ObjectURL("", "club-avatars", "eu-west-1", key)
	if direct != "https://club-avatars.s3.eu-west-1.amazonaws.com/avatars/7/abc.png" {
		t.Fatalf("direct url = %q", direct)
	}
	if got, ok := KeyFromURL("", "club-avatars", "eu-west-1", direct); !ok || got != key {
		t.Fatalf("round trip = %q %v", got, ok)
	}

	cdn := ObjectURL("https://cdn.example.com/", "club-avatars", "eu-west-1", key)
	if got, ok := KeyFromURL("https://cdn.example.com/", "club-avatars", "eu-west-1", cdn); !ok || got != key {
		t.Fatalf("cdn round trip = %q %v", got, ok)
	}

	for _, foreign := range []string{
		"https://images.example.org/avatars/7/abc.png",
		"https://club-avatars.s3.eu-west-1.amazonaws.com/other/7/abc.png",
		"https://club-avatars.s3.eu-west-1.amazonaws.com/avatars/../secret",
	} {
		if _, ok := KeyFromURL("", "club-avatars", "eu-west-1", foreign); ok {
			t.Errorf("accepted foreign url %q", foreign)
		}
	}
}
