package health

import "errors"

var (
	errNotRunning  = errors.New("scheduler is not running")
	errStuckCycle  = errors.New("cycle lock held beyond 3x expected runtime")
)
