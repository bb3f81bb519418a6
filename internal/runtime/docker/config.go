package docker

const (
	defaultCodeMount  = "/code"
	defaultStdinMount = "/stdin"
	defaultLabel      = "cortex.managed"
	namePrefix        = "cortex-"
)

var defaultKeepAlive = []string{"tail", "-f", "/dev/null"}

// Config describes how run containers are created.
type Config struct {
	// PullImages pulls each language image once before its first run.
	PullImages bool
	// CodeMount is the in-container path of the code directory, also the working directory.
	CodeMount string
	// StdinMount is the in-container path of the stdin directory.
	StdinMount string
	// Label marks containers created by this engine.
	Label string
	// KeepAlive is the idle command the container runs while waiting for exec.
	KeepAlive []string
}

func (c Config) withDefaults() Config {
	if c.CodeMount == "" {
		c.CodeMount = defaultCodeMount
	}
	if c.StdinMount == "" {
		c.StdinMount = defaultStdinMount
	}
	if c.Label == "" {
		c.Label = defaultLabel
	}
	if len(c.KeepAlive) == 0 {
		c.KeepAlive = append([]string(nil), defaultKeepAlive...)
	}
	return c
}
