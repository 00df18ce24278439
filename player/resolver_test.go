package player

import (
	"context"
	"errors"
	"net/url"
	"testing"
)

func TestYTDLPResolverRejectsInvalidURL(t *testing.T) {
	r := &YTDLPResolver{Passthrough: true}
	for _, raw := range []string{"", "not a url", "bad-url", "/relative/path.mp3"} {
		_, err := r.Resolve(context.Background(), raw)
		var re *ResolveError
		if !errors.As(err, &re) {
			t.Fatalf("Resolve(%q) err = %v, want *ResolveError", raw, err)
		}
		if re.Class != ErrorClassFatal {
			t.Errorf("Resolve(%q) class = %s, want fatal", raw, re.Class)
		}
	}
}

func TestYTDLPResolverPassthrough(t *testing.T) {
	r := &YTDLPResolver{Passthrough: true}
	src, err := r.Resolve(context.Background(), "https://cdn.example.com/music/track.MP3?sig=1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if src != "https://cdn.example.com/music/track.MP3?sig=1" {
		t.Errorf("src = %q", src)
	}
}

func TestIsDirectMedia(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"https://example.com/a.mp3", true},
		{"https://example.com/live/index.m3u8", true},
		{"https://example.com/a.opus", true},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", false},
		{"https://soundcloud.com/artist/track", false},
		{"https://example.com/page.html", false},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		if err != nil {
			t.Fatal(err)
		}
		if got := IsDirectMedia(u); got != tt.want {
			t.Errorf("IsDirectMedia(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestFirstURLLine(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
	}{
		{"single", "https://rr1.example/audio\n", "https://rr1.example/audio"},
		{"two formats", "https://rr1.example/video\nhttps://rr1.example/audio\n", "https://rr1.example/video"},
		{"noise first", "WARNING: something\n  http://a.example/x  \n", "http://a.example/x"},
		{"empty", "", ""},
		{"no url", "ERROR: nope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstURLLine(tt.out); got != tt.want {
				t.Errorf("firstURLLine = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolverFunc(t *testing.T) {
	var r Resolver = ResolverFunc(func(_ context.Context, raw string) (string, error) {
		return raw + "#resolved", nil
	})
	got, err := r.Resolve(context.Background(), "u")
	if err != nil || got != "u#resolved" {
		t.Errorf("got %q, %v", got, err)
	}
}
