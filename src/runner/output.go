package runner

import (
	"context"
	"io"
)

type outputKey struct{}

// WithOutput returns a context whose commands also stream their output to w.
func WithOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, outputKey{}, w)
}

// OutputFrom returns the writer installed by WithOutput, or nil.
func OutputFrom(ctx context.Context) io.Writer {
	w, _ := ctx.Value(outputKey{}).(io.Writer)
	return w
}
