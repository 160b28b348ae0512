package ports

import "time"

// Clock is the source of wall time for expirations
type Clock interface {
	Now() time.Time
}
