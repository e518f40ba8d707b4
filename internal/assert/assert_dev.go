//go:build !production

package assert

import "fmt"

// Invariant panics when the condition does not hold.
// Non-production builds surface caching bugs immediately.
func Invariant(ok bool, format string, args ...interface{}) {
	if !ok {
		panic(fmt.Sprintf("INVARIANT VIOLATION: "+format, args...))
	}
}

// Enabled reports whether invariant violations are fatal.
func Enabled() bool {
	return true
}
