package wechat

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// gopsutilLister enumerates processes through gopsutil.
type gopsutilLister struct{}

func NewProcessLister() ProcessLister {
	return gopsutilLister{}
}

// Processes lists running processes. Entries whose name cannot be read are skipped; a missing
// executable path leaves Exe empty.
func (gopsutilLister) Processes(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		exe, _ := p.ExeWithContext(ctx)
		out = append(out, ProcessInfo{PID: p.Pid, Name: name, Exe: exe})
	}
	return out, nil
}
