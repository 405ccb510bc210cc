package rule

import (
	"errors"

	"cronpump/internal/task/bitfield"
)

var (
	ErrFieldOutOfRange = bitfield.ErrFieldOutOfRange
	ErrOverflow        = errors.New("evaluated year precedes the representable window")
	ErrNoTask          = errors.New("rule has no task")
	ErrInvalidCron     = errors.New("invalid cron expression")
	ErrUnsupportedCron = errors.New("unsupported schedule expression")
	ErrInvalidLocation = errors.New("invalid location")
)
