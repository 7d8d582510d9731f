// Command earshot-probe simulates a device. It streams a raw 16-bit mono PCM
// file to an earshot server, prints every line the server sends, and saves
// the synthesized speech it receives.
//
//	earshot-probe -in hello.pcm -lang en -out replies.pcm
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/MrWong99/earshot/internal/protocol"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "localhost:6000", "earshot server address")
	in := flag.String("in", "", "raw 16-bit mono PCM file to stream, - for stdin")
	lang := flag.String("lang", "", "send a language marker first (ru or en)")
	out := flag.String("out", "", "append received speech PCM to this file")
	chunk := flag.Int("chunk", 3200, "bytes per write")
	sampleRate := flag.Int("rate", 16000, "sample rate used to pace the stream")
	realtime := flag.Bool("realtime", true, "pace writes at the audio's real-time rate")
	linger := flag.Duration("linger", 10*time.Second, "how long to keep listening after the audio ends")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if *in == "" {
		fmt.Fprintln(os.Stderr, "earshot-probe: -in is required")
		flag.Usage()
		return 2
	}
	marker, err := markerFor(*lang)
	if err != nil {
		fmt.Fprintf(os.Stderr, "earshot-probe: %v\n", err)
		return 2
	}

	var audio io.Reader = os.Stdin
	if *in != "-" {
		f, err := os.Open(*in)
		if err != nil {
			fmt.Fprintf(os.Stderr, "earshot-probe: %v\n", err)
			return 1
		}
		defer f.Close()
		audio = f
	}

	var speech io.Writer = io.Discard
	if *out != "" {
		f, err := os.OpenFile(*out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "earshot-probe: %v\n", err)
			return 1
		}
		defer f.Close()
		speech = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := (&net.Dialer{Timeout: 5 * time.Second}).DialContext(ctx, "tcp", *addr)
	if err != nil {
		slog.Error("dial failed", "addr", *addr, "err", err)
		return 1
	}
	slog.Info("connected", "addr", *addr)

	opts := streamOptions{Marker: marker, Chunk: *chunk}
	if *realtime {
		opts.Limiter = pacer(*sampleRate, *chunk)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer conn.Close()
		n, err := stream(gctx, conn, audio, opts)
		if err != nil {
			return err
		}
		slog.Info("audio sent", "bytes", n)
		select {
		case <-time.After(*linger):
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		frames, err := receive(conn, os.Stdout, speech)
		slog.Info("connection closed", "speech_frames", frames)
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("probe failed", "err", err)
		return 1
	}
	return 0
}

func markerFor(lang string) (string, error) {
	switch lang {
	case "":
		return "", nil
	case "ru":
		return protocol.MarkerLangRU, nil
	case "en":
		return protocol.MarkerLangEN, nil
	}
	return "", fmt.Errorf("unknown language %q, want ru or en", lang)
}

// pacer allows one chunk per chunk's playback time at sampleRate.
func pacer(sampleRate, chunk int) *rate.Limiter {
	perChunk := time.Duration(float64(chunk) / float64(2*sampleRate) * float64(time.Second))
	return rate.NewLimiter(rate.Every(perChunk), 1)
}

type streamOptions struct {
	// Marker is written before the audio when non-empty.
	Marker string

	// Chunk is the write size in bytes. Default: 3200.
	Chunk int

	// Limiter paces writes when set.
	Limiter *rate.Limiter
}

// stream copies audio to w in chunks and returns the number of audio bytes
// written, excluding the marker.
func stream(ctx context.Context, w io.Writer, audio io.Reader, opts streamOptions) (int64, error) {
	if opts.Marker != "" {
		if _, err := io.WriteString(w, opts.Marker); err != nil {
			return 0, fmt.Errorf("write marker: %w", err)
		}
	}
	if opts.Chunk <= 0 {
		opts.Chunk = 3200
	}
	buf := make([]byte, opts.Chunk)
	var total int64
	for {
		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				return total, err
			}
		} else if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := io.ReadFull(audio, buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, fmt.Errorf("write audio: %w", werr)
			}
			total += int64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("read audio: %w", err)
		}
	}
}

// receive prints each server line to lines and appends speech payloads to
// speech until the stream ends. It returns the number of speech frames.
func receive(r io.Reader, lines, speech io.Writer) (int, error) {
	pr := protocol.NewReader(r)
	frames := 0
	for {
		f, err := pr.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		switch f.Kind {
		case protocol.FrameLine:
			fmt.Fprintf(lines, "< %s\n", f.Line)
		case protocol.FrameSpeech:
			frames++
			fmt.Fprintf(lines, "< [speech %d bytes]\n", len(f.Audio))
			if _, err := speech.Write(f.Audio); err != nil {
				return frames, fmt.Errorf("save speech: %w", err)
			}
		}
	}
}
