package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/earshot/internal/journal"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/pkg/types"
)

// runTurns executes content turns in order until the queue is closed. Turns
// queued under an older generation are skipped, and results that arrive
// after a transition are discarded instead of spoken.
func (s *Session) runTurns(ctx context.Context) {
	defer close(s.workerDone)
	for t := range s.turns {
		if ctx.Err() != nil {
			continue
		}
		if t.gen != s.gen.Load() {
			s.log.Debug("session: dropping stale turn", "text", t.text)
			continue
		}
		s.handleTurn(ctx, t)
	}
}

func (s *Session) handleTurn(ctx context.Context, t turn) {
	ctx, span := observe.StartSpan(ctx, "session.turn",
		trace.WithAttributes(attribute.String("locale", string(t.locale))),
	)
	defer span.End()

	if s.cfg.Commands != nil {
		start := time.Now()
		res, ok := s.cfg.Commands.Dispatch(ctx, t.locale, t.text)
		if ok {
			span.SetAttributes(attribute.String("route", "command"), attribute.String("action", string(res.Action)))
			s.cfg.Metrics.RecordCommand(ctx, string(res.Action), string(res.Status), time.Since(start).Seconds())
			s.record(ctx, journal.Entry{
				Kind:      journal.KindCommand,
				Locale:    t.locale,
				Utterance: t.text,
				Response:  res.Reply,
				Detail:    string(res.Action) + ":" + string(res.Status),
			})
			s.deliver(t, res.Reply)
			return
		}
	}

	span.SetAttributes(attribute.String("route", "reply"))
	history, epoch := s.conv.Snapshot()
	start := time.Now()
	answer, err := s.cfg.Replies.Reply(ctx, history, t.text)
	s.cfg.Metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		span.RecordError(err)
		s.log.Warn("session: reply failed", "err", err)
		answer = s.cfg.Replies.Fallback(t.locale)
	} else {
		s.conv.Append(epoch,
			types.Message{Role: "user", Content: t.text},
			types.Message{Role: "assistant", Content: answer},
		)
	}
	s.record(ctx, journal.Entry{Kind: journal.KindReply, Locale: t.locale, Utterance: t.text, Response: answer})
	s.deliver(t, answer)
}

// deliver speaks a turn result unless a transition happened meanwhile.
func (s *Session) deliver(t turn, msg string) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	if t.gen != s.gen.Load() {
		s.log.Debug("session: discarding result of stale turn", "text", t.text)
		return
	}
	s.speak(msg)
}
