package client

import (
	"time"

	"github.com/Pablu23/fsp/internal/common"
	"github.com/Pablu23/fsp/internal/metrics"
)

type Options struct {
	// Delay is the first resend delay, clamped to [common.MinDelay, common.MaxDelay].
	Delay time.Duration
	// MaxDelay caps the resend delay, at most common.MaxDelay.
	MaxDelay time.Duration
	// Timeout bounds the accumulated wait of one request. 0 waits forever.
	Timeout time.Duration
	// ByeTimeout bounds the BYE sent by Close.
	ByeTimeout time.Duration
	// LocalAddress is the local UDP address to bind, empty for any.
	LocalAddress string
	// RateLimit paces file transfers in bytes per second. 0 disables pacing.
	RateLimit int
	// Keys is shared by every session to the same servers. A private registry
	// is created when nil.
	Keys    *KeyRegistry
	Metrics metrics.Metrics
}

func NewDefaultOptions() *Options {
	return &Options{
		Delay:      common.DefaultDelay,
		MaxDelay:   common.MaxDelay,
		Timeout:    common.DefaultTimeout,
		ByeTimeout: 7 * time.Second,
	}
}

func (o *Options) normalize() {
	if o.Delay < common.MinDelay {
		o.Delay = common.MinDelay
	} else if o.Delay > common.MaxDelay {
		o.Delay = common.MaxDelay
	}
	if o.MaxDelay <= 0 || o.MaxDelay > common.MaxDelay {
		o.MaxDelay = common.MaxDelay
	}
	if o.Timeout < 0 {
		o.Timeout = 0
	}
	if o.ByeTimeout <= 0 {
		o.ByeTimeout = 7 * time.Second
	}
}

// WithKeyRegistry shares keys between every session created with keys.
func WithKeyRegistry(keys *KeyRegistry) func(*Options) {
	return func(o *Options) {
		o.Keys = keys
	}
}

// WithRateLimit paces downloads and uploads to bytesPerSecond.
func WithRateLimit(bytesPerSecond int) func(*Options) {
	return func(o *Options) {
		o.RateLimit = bytesPerSecond
	}
}

func WithMetrics(m metrics.Metrics) func(*Options) {
	return func(o *Options) {
		o.Metrics = m
	}
}

func WithTimeout(timeout time.Duration) func(*Options) {
	return func(o *Options) {
		o.Timeout = timeout
	}
}
