package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/lrstanley/go-ytdlp"
)

// Resolver turns a user-supplied URL into a source ffmpeg can read directly.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(ctx context.Context, rawURL string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, rawURL string) (string, error) {
	return f(ctx, rawURL)
}

// directExtensions are streamed as-is when passthrough is enabled.
var directExtensions = map[string]bool{
	".mp3":  true,
	".aac":  true,
	".m4a":  true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
	".flac": true,
	".m3u8": true,
}

// YTDLPResolver resolves page URLs (YouTube, SoundCloud, ...) to the direct
// audio URL via yt-dlp.
type YTDLPResolver struct {
	// Binary overrides the yt-dlp executable; empty uses PATH.
	Binary string
	// Format is the yt-dlp format selector, "bestaudio/best" when empty.
	Format string
	// Passthrough skips yt-dlp for URLs that already point at an audio file.
	Passthrough bool
}

// Resolve runs `yt-dlp -f <format> --no-playlist --get-url <url>` and returns
// the first URL printed on stdout.
func (r *YTDLPResolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		if err == nil {
			err = errors.New("invalid url: missing scheme or host")
		}
		return "", &ResolveError{URL: rawURL, Class: ErrorClassFatal, Err: err}
	}
	if r.Passthrough && IsDirectMedia(u) {
		slog.Debug("resolver passthrough", slog.String("url", rawURL), slog.String("component", "resolver"))
		return u.String(), nil
	}

	format := r.Format
	if format == "" {
		format = "bestaudio/best"
	}
	cmd := ytdlp.New().
		Format(format).
		NoPlaylist().
		NoWarnings().
		GetURL()
	if r.Binary != "" {
		cmd = cmd.SetExecutable(r.Binary)
	}
	res, err := cmd.Run(ctx, u.String())
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return "", &ResolveError{URL: rawURL, Class: ClassifyResolveError(err), Err: err}
	}
	src := firstURLLine(res.Stdout)
	if src == "" {
		err := errors.New("empty stream url from yt-dlp")
		return "", &ResolveError{URL: rawURL, Class: ErrorClassFatal, Err: err}
	}
	return src, nil
}

// IsDirectMedia reports whether the URL path ends in a known audio extension.
func IsDirectMedia(u *url.URL) bool {
	return directExtensions[strings.ToLower(path.Ext(u.Path))]
}

// firstURLLine picks the first line that looks like a URL; yt-dlp prints one
// line per requested format, so video+audio merges yield two.
func firstURLLine(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			return line
		}
	}
	return ""
}
