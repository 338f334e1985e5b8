package config

// ConfigCallback distributes parsed configuration to interested packages
// (e.g., the logger) that need to reconfigure themselves once the config
// file has been read.
type ConfigCallback[T any] struct {
	callbacks []func(T)
}

func (c *ConfigCallback[T]) AddCallback(f func(T)) {
	c.callbacks = append(c.callbacks, f)
}

func (c *ConfigCallback[T]) Call(o T) {
	for _, callback := range c.callbacks {
		callback(o)
	}
}
