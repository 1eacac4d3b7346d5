//go:build !unix

package filelock

// With runs fn. Platforms without flock get in-process serialisation only.
func With(path string, fn func() error) error {
	return fn()
}
