//go:build linux

package loop

import "golang.org/x/sys/unix"

// createWakeFD creates an eventfd used as the pending-wakeup fd (spec.md
// §4.2: "ensure the pending-wakeup fd is armed so poll returns
// immediately"). Grounded on eventloop/wakeup_linux.go.
func createWakeFD() (readFD, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

func closeWakeFD(readFD, writeFD int) error {
	if readFD >= 0 {
		return unix.Close(readFD)
	}
	return nil
}

// arm writes one 8-byte counter increment to the eventfd, waking any
// blocked epoll_wait.
func armWakeFD(writeFD int) error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(writeFD, buf[:])
	return err
}

// drainWakeFD reads (and discards) the eventfd counter so it doesn't
// immediately re-trigger readiness.
func drainWakeFD(readFD int) error {
	var buf [8]byte
	for {
		_, err := unix.Read(readFD, buf[:])
		if err != nil {
			return nil
		}
	}
}
