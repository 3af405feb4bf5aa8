package monitor

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// CPUMonitor samples per-core utilisation since its previous call.
type CPUMonitor struct{}

func NewCPUMonitor() *CPUMonitor { return &CPUMonitor{} }

func (*CPUMonitor) Name() string { return "cpu" }

func (*CPUMonitor) Collect() (any, error) {
	cores, err := cpu.Percent(0, true)
	if err != nil {
		return nil, err
	}
	return &CPUState{UsagePercent: mean(cores), Cores: cores}, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

type MemoryMonitor struct{}

func NewMemoryMonitor() *MemoryMonitor { return &MemoryMonitor{} }

func (*MemoryMonitor) Name() string { return "memory" }

func (*MemoryMonitor) Collect() (any, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}
	return &MemoryState{
		UsedBytes:      v.Used,
		AvailableBytes: v.Available,
		TotalBytes:     v.Total,
		UsagePercent:   v.UsedPercent,
	}, nil
}

// AvailableMemory is the probe the training pipeline uses to size the
// in-memory image set.
func AvailableMemory() (uint64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return v.Available, nil
}

// StorageMonitor reports the filesystems holding the dataset and the
// artifact directory. A path that does not exist yet is measured at its
// nearest existing ancestor, so a fresh artifacts dir still shows how much
// room a save has.
type StorageMonitor struct {
	paths []string
}

func NewStorageMonitor(paths []string) *StorageMonitor {
	seen := make(map[string]bool, len(paths))
	var uniq []string
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		uniq = append(uniq, p)
	}
	if len(uniq) == 0 {
		uniq = []string{string(filepath.Separator)}
	}
	return &StorageMonitor{paths: uniq}
}

func (*StorageMonitor) Name() string { return "storage" }

func (m *StorageMonitor) Collect() (any, error) {
	state := make(StorageState, len(m.paths))
	for _, p := range m.paths {
		usage, err := disk.Usage(existingAncestor(p))
		if err != nil {
			continue
		}
		state[p] = DiskState{
			FreeBytes:    usage.Free,
			UsedBytes:    usage.Used,
			TotalBytes:   usage.Total,
			UsagePercent: usage.UsedPercent,
		}
	}
	return state, nil
}

func existingAncestor(p string) string {
	p = filepath.Clean(p)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
