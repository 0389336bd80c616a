package sps30

import "time"

const DEFAULTBAUDRATE = 115200

// PortConfig holds serial settings. SPS30 talks 115200 8N1 only, baud is adjustable for adapters and simulators
type PortConfig struct {
	BaudRate    int
	ReadTimeout time.Duration //Granularity 100ms (termios VTIME)
}

type Option func(*PortConfig) error

func DefaultPortConfig() PortConfig {
	return PortConfig{
		BaudRate:    DEFAULTBAUDRATE,
		ReadTimeout: 100 * time.Millisecond,
	}
}

var supportedBauds = map[int]bool{9600: true, 19200: true, 38400: true, 57600: true, 115200: true, 230400: true}

func WithBaudRate(rate int) Option {
	return func(c *PortConfig) error {
		if !supportedBauds[rate] {
			return ErrInvalidBaud
		}
		c.BaudRate = rate
		return nil
	}
}

func WithReadTimeout(timeout time.Duration) Option {
	return func(c *PortConfig) error {
		if timeout < 0 || 25500*time.Millisecond < timeout || timeout%(100*time.Millisecond) != 0 {
			return ErrInvalidConfig
		}
		c.ReadTimeout = timeout
		return nil
	}
}

func buildPortConfig(opts []Option) (PortConfig, error) {
	config := DefaultPortConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return config, err
		}
	}
	return config, nil
}
