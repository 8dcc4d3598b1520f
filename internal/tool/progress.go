package tool

import "context"

// Progress is an intermediate update reported by a long-running tool.
type Progress struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type progressKey struct{}

// WithProgress returns a context whose ReportProgress calls reach fn.
func WithProgress(ctx context.Context, fn func(Progress)) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress forwards p to the function installed by WithProgress, if
// any.
func ReportProgress(ctx context.Context, p Progress) {
	if fn, ok := ctx.Value(progressKey{}).(func(Progress)); ok && fn != nil {
		fn(p)
	}
}
