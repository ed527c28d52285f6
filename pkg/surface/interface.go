package surface

// Info describes the foreground surface a secure flag was applied to
type Info struct {
	WindowID      uint32
	AppName       string
	WindowTitle   string
	DisplayServer string // "x11" or "memory"
}

// Accessor is the narrow handle on the foreground surface's secure flag
type Accessor interface {
	// SetSecure requests the foreground surface to render in privacy-protected mode (or not).
	// It is "set to X", never "flip".
	SetSecure(secure bool) error

	// IsSecure reports the flag of the current foreground surface
	IsSecure() (bool, error)

	// Describe returns information about the current foreground surface
	Describe() (*Info, error)

	// IsAvailable checks if this accessor can run on the current system
	IsAvailable() bool

	// GetDisplayServer returns the display server type
	GetDisplayServer() string

	// Close cleans up any resources used by the accessor
	Close() error
}
