package event

// BusOption configures a LocalBus.
type BusOption func(*busConfig)

type busConfig struct {
	errorHandler ErrorHandler
}

func defaultBusConfig() busConfig {
	return busConfig{}
}

// WithErrorHandler sets the callback for handler errors and panics during Emit.
func WithErrorHandler(h ErrorHandler) BusOption {
	return func(c *busConfig) {
		c.errorHandler = h
	}
}
