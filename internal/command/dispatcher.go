package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/earshot/internal/text"
	"github.com/MrWong99/earshot/pkg/types"
)

const defaultTimeout = 15 * time.Second

// Status is the outcome of a dispatched command.
type Status string

const (
	StatusOK       Status = "ok"
	StatusFailed   Status = "failed"
	StatusRejected Status = "rejected"
)

// Result describes a matched command.
type Result struct {
	// Reply is the phrase to speak back.
	Reply string

	Action ActionID
	Arg    string
	Status Status

	// Err is the executor or querier error when Status is StatusFailed.
	Err error
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithTimeout bounds a single action execution. Default: 15 s.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.timeout = d }
}

// WithRules replaces the default rule table.
func WithRules(rules []Rule) Option {
	return func(disp *Dispatcher) { disp.rules = rules }
}

// WithQuerier sets the answerer for query actions. Without one every query
// action fails.
func WithQuerier(q Querier) Option {
	return func(disp *Dispatcher) { disp.querier = q }
}

// Dispatcher matches utterances against the rule table and runs the
// resulting action. It is read-only after construction and safe for
// concurrent use.
type Dispatcher struct {
	exec    Executor
	querier Querier
	timeout time.Duration
	rules   []Rule
	buckets map[types.Locale][]Rule
}

// New builds a Dispatcher over exec with [DefaultRules] of [DefaultCatalog]
// unless [WithRules] is given. The table is validated.
func New(exec Executor, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		exec:    exec,
		timeout: defaultTimeout,
		rules:   DefaultRules(DefaultCatalog()),
	}
	for _, o := range opts {
		o(d)
	}
	if err := Validate(d.rules); err != nil {
		return nil, err
	}

	d.buckets = make(map[types.Locale][]Rule, len(types.Locales))
	for _, r := range d.rules {
		d.buckets[r.Locale] = append(d.buckets[r.Locale], r.normalized())
	}
	return d, nil
}

// Match finds the rule for raw without executing it. The locale bucket is
// searched first, then the other one.
func (d *Dispatcher) Match(locale types.Locale, raw string) (Rule, string, bool) {
	joined := text.Phrase(raw)
	if joined == "" {
		return Rule{}, "", false
	}
	for _, loc := range []types.Locale{locale, locale.Other()} {
		for _, r := range d.buckets[loc] {
			if arg, ok := r.match(joined, raw); ok {
				return r, arg, true
			}
		}
	}
	return Rule{}, "", false
}

// Dispatch runs the command in raw. ok is false when raw is not a command
// and should go to the conversation instead.
func (d *Dispatcher) Dispatch(ctx context.Context, locale types.Locale, raw string) (res Result, ok bool) {
	r, arg, ok := d.Match(locale, raw)
	if !ok {
		return Result{}, false
	}

	res = Result{Action: r.Action, Arg: arg}
	if r.Resolve != nil {
		resolved, allowed := r.Resolve(arg)
		if !allowed {
			slog.Info("command: argument not allowed", "action", r.Action, "arg", arg)
			res.Status, res.Reply = StatusRejected, r.Reject
			return res, true
		}
		res.Arg = resolved
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	req := ActionRequest{Action: r.Action, Arg: res.Arg, Locale: locale}

	if r.Query {
		reply, err := d.query(ctx, req)
		if err != nil {
			res.Status, res.Reply, res.Err = StatusFailed, r.Fail, err
		} else {
			res.Status, res.Reply = StatusOK, reply
		}
	} else if err := d.exec.Execute(ctx, req); err != nil {
		res.Status, res.Reply, res.Err = StatusFailed, r.Fail, err
	} else {
		res.Status, res.Reply = StatusOK, r.OK
	}

	if res.Err != nil {
		slog.Warn("command: action failed", "action", r.Action, "arg", res.Arg, "err", res.Err)
	} else {
		slog.Info("command: action done", "action", r.Action, "arg", res.Arg)
	}
	return res, true
}

func (d *Dispatcher) query(ctx context.Context, req ActionRequest) (string, error) {
	if d.querier == nil {
		return "", fmt.Errorf("command: no querier for %s", req.Action)
	}
	return d.querier.Query(ctx, req)
}
