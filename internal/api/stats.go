package api

import (
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

type memoryStats struct {
	RSSBytes uint64 `json:"rss_bytes"`
	VMSBytes uint64 `json:"vms_bytes"`
}

type statsResponse struct {
	UptimeSeconds       int64        `json:"uptime_seconds"`
	Memory              *memoryStats `json:"memory,omitempty"`
	Goroutines          int          `json:"goroutines"`
	EventsStored        int          `json:"events_stored"`
	EventsReceivedTotal uint64       `json:"events_received_total"`
	Clients             int          `json:"clients"`
	HookQueueUtil       float64      `json:"hook_queue_utilization"`
	Timestamp           time.Time    `json:"timestamp"`
}

var (
	selfOnce sync.Once
	self     *process.Process
)

func currentProcess() *process.Process {
	selfOnce.Do(func() {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			slog.Warn("process stats unavailable", "err", err)
			return
		}
		self = p
	})
	return self
}

// GET /stats reports uptime, process memory, and relay counters.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Stats()
	resp := statsResponse{
		UptimeSeconds:       int64(st.Uptime / time.Second),
		Goroutines:          runtime.NumGoroutine(),
		EventsStored:        st.Stored,
		EventsReceivedTotal: st.ReceivedTotal,
		Clients:             st.Clients,
		Timestamp:           h.svc.Now().UTC(),
	}
	if eng := h.svc.Engine(); eng != nil {
		resp.HookQueueUtil = eng.QueueUtilization()
	}
	if p := currentProcess(); p != nil {
		if mem, err := p.MemoryInfoWithContext(r.Context()); err == nil {
			resp.Memory = &memoryStats{RSSBytes: mem.RSS, VMSBytes: mem.VMS}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
