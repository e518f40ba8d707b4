//go:build production

package assert

// Invariant is a no-op in production builds: a caching bug must not crash the client.
func Invariant(ok bool, format string, args ...interface{}) {}

// Enabled reports whether invariant violations are fatal.
func Enabled() bool {
	return false
}
