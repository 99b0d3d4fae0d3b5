package loop

import "errors"

var (
	ErrFDAlreadyRegistered = errors.New("loop: fd already registered")
	ErrFDNotRegistered     = errors.New("loop: fd not registered")
	ErrLoopClosed          = errors.New("loop: closed")
	ErrLoopRunning         = errors.New("loop: already running")
)
