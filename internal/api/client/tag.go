package client

import "context"

// Tag identifies the polling loop a request belongs to. It travels as
// request headers so backend logs can correlate a burst of polls.
type Tag struct {
	ScanID     string
	Generation uint64
}

type tagKey struct{}

// WithTag attaches t to every request made with the returned context.
func WithTag(ctx context.Context, t Tag) context.Context {
	return context.WithValue(ctx, tagKey{}, t)
}

func tagFrom(ctx context.Context) (Tag, bool) {
	t, ok := ctx.Value(tagKey{}).(Tag)
	return t, ok
}
