package settlement

import (
	"context"
	"log/slog"
)

// Step is one fallible transform of the settlement context.
type Step func(ctx context.Context, sc Context) (Context, error)

// Hook observes every named step after it runs.
type Hook func(step string, sc Context, err error)

// Lift turns an infallible transform into a Step.
func Lift(fn func(Context) Context) Step {
	return func(_ context.Context, sc Context) (Context, error) {
		return fn(sc), nil
	}
}

// Chain runs steps left to right. The first failure stops the chain and is
// returned unchanged together with the Context the chain was called with.
func Chain(steps ...Step) Step {
	return func(ctx context.Context, sc Context) (Context, error) {
		current := sc
		for _, step := range steps {
			if step == nil {
				continue
			}
			next, err := step(ctx, current)
			if err != nil {
				return sc, err
			}
			current = next
		}
		return current, nil
	}
}

// Named reports the outcome of step to the context hook under name.
func Named(name string, step Step) Step {
	return func(ctx context.Context, sc Context) (Context, error) {
		next, err := step(ctx, sc)
		if sc.Hook != nil {
			observed := next
			if err != nil {
				observed = sc
			}
			sc.Hook(name, observed, err)
		}
		return next, err
	}
}

// LogHook logs each step at debug level.
func LogHook(logger *slog.Logger) Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(step string, sc Context, err error) {
		attrs := []any{
			slog.String("step", step),
			slog.String("user_pool", string(sc.UserPool)),
			slog.Int("staged_deltas", len(sc.Deltas)),
		}
		if sc.Want.Keyword() != "" {
			attrs = append(attrs, slog.String("want", sc.Want.String()))
		}
		if sc.HasGive {
			attrs = append(attrs, slog.String("give", sc.Give.String()))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			logger.Debug("settlement step failed", attrs...)
			return
		}
		logger.Debug("settlement step", attrs...)
	}
}

// JoinHooks fans a step notification out to every non-nil hook.
func JoinHooks(hooks ...Hook) Hook {
	return func(step string, sc Context, err error) {
		for _, hook := range hooks {
			if hook != nil {
				hook(step, sc, err)
			}
		}
	}
}
