package controlapi

import (
	"context"
	"net/http"

	"github.com/shirou/gopsutil/v3/disk"
)

// healthComponent reports the reachability of one dependency.
type healthComponent struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// diskUsage reports free/total bytes under one directory, used to surface
// cache/history disk pressure without requiring a separate metrics scrape.
type diskUsage struct {
	Path           string  `json:"path"`
	TotalBytes     uint64  `json:"total_bytes"`
	FreeBytes      uint64  `json:"free_bytes"`
	UsedPercent    float64 `json:"used_percent"`
	Error          string  `json:"error,omitempty"`
}

type healthResponse struct {
	Success    bool              `json:"success"`
	Status     string            `json:"status"`
	Components []healthComponent `json:"components"`
	Disk       []diskUsage       `json:"disk,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := []healthComponent{s.executorComponent(), s.llmComponent(), s.historyComponent()}

	ok := true
	for _, c := range components {
		if !c.Available {
			ok = false
		}
	}

	status := "ok"
	if !ok {
		status = "degraded"
	}

	resp := healthResponse{Success: true, Status: status, Components: components}
	for _, dir := range s.diskPaths() {
		resp.Disk = append(resp.Disk, measureDisk(dir))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) executorComponent() healthComponent {
	c := healthComponent{Name: "executor"}
	if s.Orchestrator == nil {
		c.Detail = "orchestrator not configured"
		return c
	}
	path, err := s.Orchestrator.ResolveExecutor()
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	c.Available = true
	c.Detail = path
	return c
}

func (s *Server) llmComponent() healthComponent {
	c := healthComponent{Name: "llm"}
	if s.Generator == nil || s.Generator.Provider == nil {
		c.Detail = "generator not configured"
		return c
	}
	c.Available = s.Generator.Provider.Available()
	c.Detail = s.Generator.Provider.Name()
	return c
}

func (s *Server) historyComponent() healthComponent {
	c := healthComponent{Name: "history"}
	if s.History == nil {
		c.Detail = "history backend not configured"
		return c
	}
	ctx := context.Background()
	if _, err := s.History.Stats(ctx); err != nil {
		c.Detail = err.Error()
		return c
	}
	c.Available = true
	return c
}

func (s *Server) diskPaths() []string {
	var paths []string
	if s.CacheDir != "" {
		paths = append(paths, s.CacheDir)
	}
	if s.HistoryDir != "" {
		paths = append(paths, s.HistoryDir)
	}
	return paths
}

func measureDisk(path string) diskUsage {
	usage, err := disk.Usage(path)
	if err != nil {
		return diskUsage{Path: path, Error: err.Error()}
	}
	return diskUsage{
		Path:        path,
		TotalBytes:  usage.Total,
		FreeBytes:   usage.Free,
		UsedPercent: usage.UsedPercent,
	}
}
