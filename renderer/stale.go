package renderer

import (
	"errors"
	"strings"

	"github.com/go-rod/rod/lib/cdp"
)

// ErrStaleElement marks an element handle that the page invalidated between
// enumeration and read. Pages that keep mutating after load (lazy loaders
// swapping nodes, virtualized lists recycling them) produce these routinely,
// so callers treat them as skippable rather than fatal.
var ErrStaleElement = errors.New("stale element handle")

// staleMessages are the DevTools protocol error messages Chromium returns
// when a remote node or its execution context no longer exists.
var staleMessages = []string{
	"could not find node with given id",
	"node with given id does not belong to the document",
	"could not find object with given id",
	"cannot find context with specified id",
	"execution context was destroyed",
	"node is detached from document",
}

// isStale reports whether err is a protocol-level complaint about an
// invalidated node rather than a broken session. Anything that is not a CDP
// error (lost websocket, canceled context) stays fatal.
func isStale(err error) bool {
	var cdpErr *cdp.Error
	if !errors.As(err, &cdpErr) {
		return false
	}
	msg := strings.ToLower(cdpErr.Message)
	for _, s := range staleMessages {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
