// Package hardware 读取主机的 CPU 与内存信息。
package hardware

import (
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
)

var (
	cpuNumOnce sync.Once
	cpuNum     int
)

// GetCPUNum 返回可用的逻辑 CPU 数。
//
// 说明：取 gopsutil 统计的主机核数与 GOMAXPROCS 中的较小值，
// 容器内设置了 automaxprocs 时以 cgroup 限额为准。
func GetCPUNum() int {
	cpuNumOnce.Do(func() {
		cpuNum = runtime.GOMAXPROCS(0)
		n, err := cpu.Counts(true)
		if err != nil {
			log.Warn("failed to get cpu counts", zap.Error(err))
			return
		}
		if n > 0 && n < cpuNum {
			cpuNum = n
		}
	})
	return cpuNum
}

// GetMemoryCount 返回主机物理内存字节数，获取失败时返回 0。
func GetMemoryCount() uint64 {
	stats, err := mem.VirtualMemory()
	if err != nil {
		log.Warn("failed to get memory count", zap.Error(err))
		return 0
	}
	return stats.Total
}

// GetUsedMemoryCount 返回主机已使用的内存字节数，获取失败时返回 0。
func GetUsedMemoryCount() uint64 {
	stats, err := mem.VirtualMemory()
	if err != nil {
		log.Warn("failed to get used memory count", zap.Error(err))
		return 0
	}
	return stats.Used
}
