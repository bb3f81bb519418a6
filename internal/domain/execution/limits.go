package execution

import "time"

// RunLimits describes the resource boundaries applied to a single run.
//
// A zero field means "use the language default".
type RunLimits struct {
	// Timeout caps how long the exec wait may block.
	Timeout time.Duration
	// MemoryLimitBytes caps the container memory usage in bytes.
	MemoryLimitBytes int64
	// CPULimit is the number of CPUs the container may use.
	CPULimit float64
}

// Normalize clamps negative values to zero.
func (l RunLimits) Normalize() RunLimits {
	if l.Timeout < 0 {
		l.Timeout = 0
	}
	if l.MemoryLimitBytes < 0 {
		l.MemoryLimitBytes = 0
	}
	if l.CPULimit < 0 {
		l.CPULimit = 0
	}
	return l
}

// Merge returns l with every zero field filled from fallback.
func (l RunLimits) Merge(fallback RunLimits) RunLimits {
	effective := fallback.Normalize()
	overrides := l.Normalize()

	if overrides.Timeout > 0 {
		effective.Timeout = overrides.Timeout
	}
	if overrides.MemoryLimitBytes > 0 {
		effective.MemoryLimitBytes = overrides.MemoryLimitBytes
	}
	if overrides.CPULimit > 0 {
		effective.CPULimit = overrides.CPULimit
	}
	return effective
}

// LimitsFor computes the limits of a run of req in the given language.
//
// CPU time overrides on the request (seconds) replace the language timeout
// when present; the result never exceeds maxTimeout when maxTimeout is positive.
func LimitsFor(spec LanguageSpec, req SubmissionRequest, maxTimeout time.Duration) RunLimits {
	limits := RunLimits{
		Timeout:          spec.Timeout,
		MemoryLimitBytes: spec.MemoryLimitBytes,
		CPULimit:         spec.CPULimit,
	}

	if req.CPUTimeLimit != nil && *req.CPUTimeLimit > 0 {
		seconds := *req.CPUTimeLimit
		if req.CPUExtraTime != nil && *req.CPUExtraTime > 0 {
			seconds += *req.CPUExtraTime
		}
		limits.Timeout = time.Duration(seconds * float64(time.Second))
	}

	if maxTimeout > 0 && limits.Timeout > maxTimeout {
		limits.Timeout = maxTimeout
	}
	return limits.Normalize()
}
