// Package iox provides I/O helpers for resource cleanup.
package iox

import (
	"errors"
	"io"
)

// maxDrain bounds how much of an unwanted response body is read before close.
const maxDrain = 64 * 1024

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DrainClose reads up to 64 KiB of rc and closes it.
// HTTP clients use it for bodies they do not need so keep-alive
// connections can be reused:
//
//	defer iox.DrainClose(resp.Body)
func DrainClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, maxDrain))
	_ = rc.Close()
}

// ReadAtMost reads r fully, failing with ErrTooLarge beyond limit bytes.
func ReadAtMost(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

// ErrTooLarge is returned by ReadAtMost when the input exceeds the limit.
var ErrTooLarge = errors.New("input exceeds size limit")
