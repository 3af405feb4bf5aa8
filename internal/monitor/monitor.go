// Package monitor samples host resources with gopsutil. Training uses it to
// size the in-memory image set and to log resource use per stage; the HTTP
// server reports the latest sample on /health.
package monitor

import "time"

type Monitor interface {
	Name() string
	Collect() (any, error)
}

type CPUState struct {
	UsagePercent float64   `json:"usage_percent"`
	Cores        []float64 `json:"cores"`
}

type MemoryState struct {
	UsedBytes      uint64  `json:"used_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	TotalBytes     uint64  `json:"total_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
}

type DiskState struct {
	FreeBytes    uint64  `json:"free_bytes"`
	UsedBytes    uint64  `json:"used_bytes"`
	TotalBytes   uint64  `json:"total_bytes"`
	UsagePercent float64 `json:"usage_percent"`
}

// StorageState is keyed by the monitored path.
type StorageState map[string]DiskState

type HostState struct {
	CPU       CPUState     `json:"cpu"`
	Memory    MemoryState  `json:"memory"`
	Storage   StorageState `json:"storage"`
	Timestamp time.Time    `json:"timestamp"`
}

func (s *HostState) Clone() *HostState {
	clone := *s
	clone.CPU.Cores = make([]float64, len(s.CPU.Cores))
	copy(clone.CPU.Cores, s.CPU.Cores)
	clone.Storage = make(StorageState, len(s.Storage))
	for k, v := range s.Storage {
		clone.Storage[k] = v
	}
	return &clone
}

// LogAttrs flattens the state into slog key/value pairs.
func (s *HostState) LogAttrs() []any {
	attrs := []any{
		"cpu_percent", s.CPU.UsagePercent,
		"mem_percent", s.Memory.UsagePercent,
		"mem_available_mb", s.Memory.AvailableBytes >> 20,
	}
	for path, d := range s.Storage {
		attrs = append(attrs, "disk_free_mb:"+path, d.FreeBytes>>20)
	}
	return attrs
}
