//go:build darwin

package loop

import (
	"sync"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the Darwin Poller, grounded on eventloop/poller_darwin.go:
// a single kqueue instance with separate EVFILT_READ/EVFILT_WRITE
// registrations per fd (kqueue has no combined read+write event the way
// epoll does, so ModifyFD issues up to two kevent changes).
type kqueuePoller struct {
	mu       sync.RWMutex
	kq       int
	fds      map[int]fdEntry
	eventBuf [128]unix.Kevent_t
}

func newPoller() Poller {
	return &kqueuePoller{fds: make(map[int]fdEntry)}
}

func (p *kqueuePoller) Init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	p.kq = kq
	return nil
}

func (p *kqueuePoller) Close() error {
	if p.kq == 0 {
		return nil
	}
	return unix.Close(p.kq)
}

func (p *kqueuePoller) changes(fd int, events Events, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if events&EventRead != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&EventWrite != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

func (p *kqueuePoller) RegisterFD(fd int, events Events, cb Callback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.fds[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	changes := p.changes(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(changes) > 0 {
		if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
			return err
		}
	}
	p.fds[fd] = fdEntry{cb: cb, events: events}
	return nil
}

func (p *kqueuePoller) ModifyFD(fd int, events Events) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.fds[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	// remove whatever was there, then add the new set
	_, _ = unix.Kevent(p.kq, p.changes(fd, EventRead|EventWrite, unix.EV_DELETE), nil, nil)
	changes := p.changes(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(changes) > 0 {
		if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
			return err
		}
	}
	entry.events = events
	p.fds[fd] = entry
	return nil
}

func (p *kqueuePoller) UnregisterFD(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.fds[fd]; !ok {
		return ErrFDNotRegistered
	}
	_, _ = unix.Kevent(p.kq, p.changes(fd, EventRead|EventWrite, unix.EV_DELETE), nil, nil)
	delete(p.fds, fd)
	return nil
}

func (p *kqueuePoller) Poll(timeoutMs int) (int, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		p.mu.RLock()
		entry, ok := p.fds[fd]
		p.mu.RUnlock()
		if !ok || entry.cb == nil {
			continue
		}
		var ev Events
		switch p.eventBuf[i].Filter {
		case unix.EVFILT_READ:
			ev = EventRead
		case unix.EVFILT_WRITE:
			ev = EventWrite
		}
		if p.eventBuf[i].Flags&unix.EV_EOF != 0 {
			ev |= EventHangup
		}
		if p.eventBuf[i].Flags&unix.EV_ERROR != 0 {
			ev |= EventError
		}
		entry.cb(ev)
	}
	return n, nil
}
