package checkout

// Resolve picks the first present value in priority order: the server record,
// then the route parameter, then the fallback. A candidate is present when it
// is non-nil and not the zero value of its type, so an empty string or a 0
// price falls through to the next source.
func Resolve[T comparable](server, param *T, fallback T) T {
	var zero T
	if server != nil && *server != zero {
		return *server
	}
	if param != nil && *param != zero {
		return *param
	}
	return fallback
}

// First returns the first present candidate, or the zero value.
func First[T comparable](candidates ...*T) T {
	var zero T
	for _, c := range candidates {
		if c != nil && *c != zero {
			return *c
		}
	}
	return zero
}

func ptr[T any](v T) *T {
	return &v
}
