package execution

import "time"

// ContainerInfo describes a container as listed by the container engine.
type ContainerInfo struct {
	ID        string
	Name      string
	State     string
	CreatedAt time.Time
}

// Age returns how long ago the container was created.
func (c ContainerInfo) Age(now time.Time) time.Duration {
	return now.Sub(c.CreatedAt)
}

// EngineInfo reports the version of the container engine.
type EngineInfo struct {
	Version       string `json:"version"`
	APIVersion    string `json:"apiVersion"`
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	KernelVersion string `json:"kernelVersion"`
	GoVersion     string `json:"goVersion"`
	Experimental  bool   `json:"experimentalBuild"`
	ServerVersion string `json:"serverVersion"`
}
