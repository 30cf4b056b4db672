//go:build !linux

package reactor

import "errors"

// New returns a "platform is not supported" error outside Linux. The teacher repo splits the
// same way (epoll on Linux, IOCP on Windows); this repo carries only the
// Linux side plus this stub, see DESIGN.md for the scope cut.
func New() (Reactor, error) {
	return nil, errors.New("reactor: this platform is not supported")
}
