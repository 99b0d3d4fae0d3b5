//go:build darwin

package loop

import "golang.org/x/sys/unix"

// createWakeFD creates a self-pipe used as the pending-wakeup fd on Darwin,
// where kqueue has no eventfd equivalent. Grounded on
// eventloop/wakeup_darwin.go.
func createWakeFD() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		return -1, -1, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func closeWakeFD(readFD, writeFD int) error {
	_ = unix.Close(writeFD)
	if readFD != writeFD {
		_ = unix.Close(readFD)
	}
	return nil
}

func armWakeFD(writeFD int) error {
	_, err := unix.Write(writeFD, []byte{1})
	if err == unix.EAGAIN {
		return nil // pipe already has a pending byte, no need for another
	}
	return err
}

func drainWakeFD(readFD int) error {
	var buf [64]byte
	for {
		_, err := unix.Read(readFD, buf[:])
		if err != nil {
			return nil
		}
	}
}
