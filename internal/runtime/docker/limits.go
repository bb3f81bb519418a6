package docker

import (
	"github.com/docker/docker/api/types/container"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
)

func hostResources(l execution.RunLimits) container.Resources {
	l = l.Normalize()

	var res container.Resources
	if l.MemoryLimitBytes > 0 {
		res.Memory = l.MemoryLimitBytes
		res.MemorySwap = l.MemoryLimitBytes
	}
	if l.CPULimit > 0 {
		res.NanoCPUs = int64(l.CPULimit * 1e9)
	}
	return res
}
