// SPDX-License-Identifier: MIT
package offline

import "golang.org/x/sys/unix"

// Notifier is a pollable completion signal. The read end can sit in a
// caller's poll set alongside sockets; the write end is signalled once
// when rendering finishes. Both ends are nonblocking and close-on-exec.
type Notifier struct {
	r, w int
}

func NewNotifier() (*Notifier, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	return &Notifier{r: fds[0], w: fds[1]}, nil
}

// ReadFD returns the descriptor to poll for readability.
func (n *Notifier) ReadFD() int { return n.r }

// Signal marks the notifier readable. Signalling more than once is
// harmless; a full pipe just drops the extra byte.
func (n *Notifier) Signal() {
	var b [1]byte
	_, _ = unix.Write(n.w, b[:])
}

// Drain consumes any pending signal bytes so the descriptor can be
// reused with level-triggered pollers.
func (n *Notifier) Drain() {
	var buf [16]byte
	for {
		nr, err := unix.Read(n.r, buf[:])
		if nr <= 0 || err != nil {
			return
		}
	}
}

func (n *Notifier) Close() error {
	err1 := unix.Close(n.r)
	err2 := unix.Close(n.w)
	if err1 != nil {
		return err1
	}
	return err2
}
