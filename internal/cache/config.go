package cache

import "time"

// TTLs holds how long each kind of platform lookup stays cached.
type TTLs struct {
	Message  time.Duration
	Channel  time.Duration
	Member   time.Duration
	Roles    time.Duration
	NotFound time.Duration
}

// DefaultTTLs returns the defaults used when configuration leaves them unset.
func DefaultTTLs() TTLs {
	return TTLs{
		Message:  10 * time.Minute, // reply and forward targets rarely change
		Channel:  5 * time.Minute,
		Member:   2 * time.Minute, // role changes should show up quickly
		Roles:    10 * time.Minute,
		NotFound: 30 * time.Second,
	}
}
