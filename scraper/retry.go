package scraper

import "time"

type backoff struct {
	base time.Duration
	max  time.Duration
}

func (b backoff) delay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := b.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if b.max > 0 && delay > b.max {
		delay = b.max
	}
	return delay
}
