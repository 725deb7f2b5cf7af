package profiler

import "context"

// Context keys are unexported struct types so they cannot collide with other packages.
type (
	profilerKey struct{}
	headKey     struct{}
	ignoreKey   struct{}
	userKey     struct{}
)

// NewContext returns a context carrying p, with p's root as the active timing.
func NewContext(ctx context.Context, p *Profiler) context.Context {
	ctx = context.WithValue(ctx, profilerKey{}, p)
	if p != nil {
		ctx = context.WithValue(ctx, headKey{}, p.Root)
	}
	return ctx
}

// Current returns the session carried by ctx, or nil.
func Current(ctx context.Context) *Profiler {
	if ctx == nil {
		return nil
	}
	p, _ := ctx.Value(profilerKey{}).(*Profiler)
	return p
}

// FromContext is an alias for Current.
func FromContext(ctx context.Context) *Profiler {
	return Current(ctx)
}

// Head returns the timing that new steps in ctx would attach to, or nil when ctx has
// no active session.
func Head(ctx context.Context) *Timing {
	p := Current(ctx)
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive {
		return nil
	}
	return p.openAncestorLocked(p.contextHeadLocked(ctx))
}

// Step opens a timing on the session in ctx. Without a session it returns ctx and a
// nil Timing, whose Stop is a no-op.
func Step(ctx context.Context, name string) (context.Context, *Timing) {
	return Current(ctx).Step(ctx, name)
}

// StepIf opens a conditional timing on the session in ctx. See Profiler.StepIf.
func StepIf(ctx context.Context, name string, minMilliseconds float64, keepIfChildren bool) (context.Context, *Timing) {
	return Current(ctx).StepIf(ctx, name, minMilliseconds, keepIfChildren)
}

// StartCustomTiming records an external operation on the session in ctx.
func StartCustomTiming(ctx context.Context, category, commandString, executeType string) *CustomTiming {
	return Current(ctx).CustomTiming(ctx, category, commandString, executeType)
}

// StartCustomTimingIf records an external operation that is kept only when it lasts at
// least minSaveMilliseconds.
func StartCustomTimingIf(ctx context.Context, category, commandString, executeType string, minSaveMilliseconds float64) *CustomTiming {
	return Current(ctx).CustomTimingIf(ctx, category, commandString, executeType, minSaveMilliseconds)
}

// Ignore returns a context in which steps and custom timings are not recorded. The
// session itself keeps running for other branches.
func Ignore(ctx context.Context) context.Context {
	return context.WithValue(ctx, ignoreKey{}, true)
}

// IsActive reports whether ctx carries an active session and is not ignored.
func IsActive(ctx context.Context) bool {
	return !isIgnored(ctx) && Current(ctx).IsActive()
}

func isIgnored(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	ignored, _ := ctx.Value(ignoreKey{}).(bool)
	return ignored
}

// WithUser returns a context naming the user that sessions started from it are
// attributed to.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the user set with WithUser, or "".
func UserFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	user, _ := ctx.Value(userKey{}).(string)
	return user
}
