package player

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Process is a running streamer owned by a single session.
type Process interface {
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// Err returns the exit error; only meaningful after Done is closed.
	// A nil error means the stream ended naturally.
	Err() error
	// Terminate asks the process to exit. Safe to call more than once and
	// after the process has already exited.
	Terminate() error
}

// Runner spawns the external streaming process for a resolved source.
type Runner interface {
	Start(ctx context.Context, sessionID, source string) (Process, error)
}

// Relay describes the Icecast ingest the streamer pushes to.
type Relay struct {
	Host     string
	Port     string
	Mount    string
	User     string
	Password string
	// Encoding is "mp3" or "aac".
	Encoding string
	// Bitrate is passed to -b:a, e.g. "128k".
	Bitrate string
}

// URL builds the icecast:// target with embedded credentials.
func (r Relay) URL() *url.URL {
	return &url.URL{
		Scheme: "icecast",
		User:   url.UserPassword(r.User, r.Password),
		Host:   net.JoinHostPort(r.Host, r.Port),
		Path:   "/" + strings.TrimPrefix(r.Mount, "/"),
	}
}

// FFmpegRunner streams a source to the relay with ffmpeg.
type FFmpegRunner struct {
	Binary string
	Relay  Relay
	// KillGrace is how long to wait after SIGTERM before SIGKILL.
	KillGrace time.Duration
}

// Args returns the ffmpeg argument list for a source.
func (f *FFmpegRunner) Args(source string) []string {
	codec, format, contentType := "libmp3lame", "mp3", "audio/mpeg"
	if strings.EqualFold(f.Relay.Encoding, "aac") {
		codec, format, contentType = "aac", "adts", "audio/aac"
	}
	bitrate := f.Relay.Bitrate
	if bitrate == "" {
		bitrate = "128k"
	}
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "warning",
		"-re",
		"-i", source,
		"-vn",
		"-acodec", codec,
		"-ar", "44100",
		"-ac", "2",
		"-b:a", bitrate,
		"-content_type", contentType,
		"-f", format,
		f.Relay.URL().String(),
	}
}

// Start launches ffmpeg. Canceling ctx terminates the process the same way
// Terminate does.
func (f *FFmpegRunner) Start(ctx context.Context, sessionID, source string) (Process, error) {
	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	grace := f.KillGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	cmd := exec.CommandContext(ctx, bin, f.Args(source)...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = grace
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Source: source, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Source: source, Err: err}
	}
	logger := slog.Default().With(slog.String("component", "ffmpeg"), slog.String("session_id", sessionID), slog.Int("pid", cmd.Process.Pid))
	logger.Info("streamer started", slog.String("relay", f.Relay.URL().Redacted()))

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		pipeLines(stderr, logger)
		p.err = cmd.Wait()
		close(p.done)
		logger.Info("streamer exited", slog.Any("err", p.err))
	}()
	return p, nil
}

// pipeLines forwards ffmpeg diagnostics to the log until EOF.
func pipeLines(r io.Reader, logger *slog.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 16*1024), 256*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.Contains(strings.ToLower(line), "error") {
			logger.Warn("ffmpeg", slog.String("line", line))
		} else {
			logger.Debug("ffmpeg", slog.String("line", line))
		}
	}
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *execProcess) Terminate() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal streamer: %w", err)
	}
	return nil
}
