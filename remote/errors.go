package remote

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
)

// IsOffline reports whether err is a connection-level failure that means
// the peer is simply not reachable right now: connection refused, DNS
// failure, unreachable network, or a dial/request timeout. Loops log these
// at debug level only, since an offline kiosk hits them on every tick.
func IsOffline(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsRetriable reports whether a failed call may succeed on a later attempt.
// 4xx responses (other than 408 and 429) are permanent.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == 408 || statusErr.Code == 429
	}
	return true
}
