package cache

import "time"

func SetClock(s *BoltStore, now func() time.Time) {
	s.now = now
}
