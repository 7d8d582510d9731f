package playback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/types"
)

const defaultSynthTimeout = 30 * time.Second

// Delivery outcomes reported to metrics.
const (
	outcomeSpoken   = "spoken"
	outcomeTextOnly = "text_only"
	outcomeSkipped  = "skipped"
	outcomeFailed   = "failed"
)

// WorkerOption configures a [Worker].
type WorkerOption func(*Worker)

// WithVoice selects the synthesis voice.
func WithVoice(v types.VoiceProfile) WorkerOption {
	return func(w *Worker) { w.voice = v }
}

// WithSynthTimeout bounds one synthesis call. Default: 30 s.
func WithSynthTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) { w.synthTimeout = d }
}

// WithMetrics records delivery outcomes and synthesis latency.
func WithMetrics(m *observe.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// Worker delivers mailbox items. A nil synthesiser makes every delivery
// text-only.
type Worker struct {
	mb           *Mailbox
	tts          tts.Provider
	voice        types.VoiceProfile
	synthTimeout time.Duration
	metrics      *observe.Metrics
}

// NewWorker creates a Worker draining mb.
func NewWorker(mb *Mailbox, synth tts.Provider, opts ...WorkerOption) *Worker {
	w := &Worker{mb: mb, tts: synth, synthTimeout: defaultSynthTimeout}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run starts n delivery goroutines and blocks until ctx is cancelled or the
// mailbox is closed. n below 1 is treated as 1.
func (w *Worker) Run(ctx context.Context, n int) error {
	if n < 1 {
		n = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for range n {
		g.Go(func() error { return w.loop(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		item, err := w.mb.Next(ctx)
		if err != nil {
			return err
		}
		w.deliver(ctx, item)
		w.mb.Done(item.Session.ID())
	}
}

// deliver writes the text line, then the speech frame if synthesis produced
// audio. Items for sessions that have ended are skipped.
func (w *Worker) deliver(ctx context.Context, item Item) {
	sink := item.Session
	ctx, span := observe.StartSpan(ctx, "playback.deliver",
		trace.WithAttributes(attribute.String("session", sink.ID())),
	)
	defer span.End()
	log := observe.Logger(ctx).With("session", sink.ID())

	outcome := w.speak(ctx, log, item)
	span.SetAttributes(attribute.String("outcome", outcome))
	if w.metrics != nil {
		w.metrics.RecordDelivery(ctx, outcome)
	}
}

func (w *Worker) speak(ctx context.Context, log *slog.Logger, item Item) string {
	sink := item.Session
	if !sink.Alive() {
		return outcomeSkipped
	}
	if err := sink.WriteLine(item.Text); err != nil {
		log.Debug("playback: write text failed", "err", err)
		return outcomeFailed
	}
	if w.tts == nil {
		return outcomeTextOnly
	}

	synthCtx, cancel := context.WithTimeout(ctx, w.synthTimeout)
	start := time.Now()
	pcm, err := tts.Collect(synthCtx, w.tts, item.Text, w.voice)
	cancel()
	if w.metrics != nil {
		w.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		log.Warn("playback: synthesis failed, text only", "err", err)
		return outcomeTextOnly
	}

	// The device may have gone while synthesis ran.
	if !sink.Alive() {
		return outcomeSkipped
	}
	if err := sink.WriteSpeech(pcm); err != nil {
		log.Debug("playback: write speech failed", "err", err)
		return outcomeFailed
	}
	return outcomeSpoken
}
