package downloader

import (
	"errors"
	"net/url"
	"testing"
)

func TestValidateInputURL(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid http", input: "http://example.com/video.mp4", wantErr: false},
		{name: "valid https", input: "https://example.com/watch?v=123", wantErr: false},
		{name: "missing scheme", input: "example.com/video.mp4", wantErr: true},
		{name: "empty", input: " ", wantErr: true},
		{name: "unsupported scheme", input: "ftp://example.com/video.mp4", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := validateInputURL(tc.input)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for %q", tc.input)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.input, err)
			}
		})
	}
}

func TestValidateExtractsSameID(t *testing.T) {
	inputs := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://youtube.com/shorts/dQw4w9WgXcQ",
		"https://m.youtube.com/watch?v=dQw4w9WgXcQ&t=42",
		"https://music.youtube.com/watch?v=dQw4w9WgXcQ&si=abc",
		"https://www.youtube.com/embed/dQw4w9WgXcQ",
		"https://www.youtube.com/v/dQw4w9WgXcQ",
		"  https://www.youtu.be/dQw4w9WgXcQ?si=share  ",
	}
	for _, input := range inputs {
		ref, err := Validate(input)
		if err != nil {
			t.Fatalf("Validate(%q): %v", input, err)
		}
		if ref.VideoID != "dQw4w9WgXcQ" {
			t.Fatalf("Validate(%q) id = %q", input, ref.VideoID)
		}
		if ref.CanonicalURL != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
			t.Fatalf("Validate(%q) canonical = %q", input, ref.CanonicalURL)
		}
	}
}

func TestValidateRejectsForeignHosts(t *testing.T) {
	inputs := []string{
		"https://vimeo.com/123",
		"https://youtube.com.evil.example/watch?v=dQw4w9WgXcQ",
		"https://notyoutube.com/watch?v=dQw4w9WgXcQ",
		"javascript:alert(1)",
		"ftp://youtube.com/watch?v=dQw4w9WgXcQ",
		"",
	}
	for _, input := range inputs {
		_, err := Validate(input)
		if err == nil {
			t.Fatalf("expected error for %q", input)
		}
		if CategoryOf(err) != CategoryInvalidURL {
			t.Fatalf("expected invalid_url for %q, got %s", input, CategoryOf(err))
		}
		if errors.Is(err, ErrUnsupportedShape) {
			t.Fatalf("foreign host %q reported as unsupported shape", input)
		}
	}
}

func TestValidateUnsupportedShape(t *testing.T) {
	inputs := []string{
		"https://www.youtube.com/",
		"https://www.youtube.com/channel/UC38IQsAvIsxxjztdMZQtwHA",
		"https://www.youtube.com/watch?v=short",
		"https://youtu.be/",
		"https://www.youtube.com/playlist?list=PL590L5WQmH8fJ54F369BLDSqIwcs-TCfs",
	}
	for _, input := range inputs {
		_, err := Validate(input)
		if !errors.Is(err, ErrUnsupportedShape) {
			t.Fatalf("expected unsupported shape for %q, got %v", input, err)
		}
		if CategoryOf(err) != CategoryInvalidURL {
			t.Fatalf("expected invalid_url for %q, got %s", input, CategoryOf(err))
		}
	}
}

func TestExtractVideoIDNoMatch(t *testing.T) {
	u, _ := url.Parse("https://www.youtube.com/shorts/")
	if got := ExtractVideoID(u); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
	if got := ExtractVideoID(nil); got != "" {
		t.Fatalf("expected empty id for nil, got %q", got)
	}
}
