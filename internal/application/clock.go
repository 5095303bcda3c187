package application

import "time"

// Clock abstracts time so analysis timestamps can be pinned in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock, backed by time.Now in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
