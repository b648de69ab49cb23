package cache

import "errors"

// ErrCacheMiss is returned by helpers that surface a miss as an error.
var ErrCacheMiss = errors.New("cache miss")
