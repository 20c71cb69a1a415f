package obs

import "context"

type routePatternKey struct{}

// WithRoutePattern annotates ctx with the router pattern that matched the
// request, so logs and metrics label by template ("/api/v1/quotes/{id}")
// instead of the raw URL.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext returns the matched pattern, or "" when the request
// never hit a templated route.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	pattern, _ := ctx.Value(routePatternKey{}).(string)
	return pattern
}
