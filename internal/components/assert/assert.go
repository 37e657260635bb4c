// Package assert panics on programmer errors. It is never used for conditions
// that depend on what the portal returns.
package assert

func NotNil(value any) {
	if value == nil {
		panic("expected value to be not nil")
	}
}
