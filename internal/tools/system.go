package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

type SystemTool struct{}

func NewSystemTool() *SystemTool {
	return &SystemTool{}
}

func (s *SystemTool) Name() string {
	return "system"
}

func (s *SystemTool) Description() string {
	return "Inspect host health. Actions: 'disk_usage', 'memory', 'uptime', 'load', 'overview'."
}

func (s *SystemTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"disk_usage", "memory", "uptime", "load", "overview"},
				"description": "The diagnostic to run.",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Mount point for disk_usage. Default is '/'.",
			},
		},
		"required": []string{"action"},
	}
}

func (s *SystemTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Action string `json:"action"`
		Path   string `json:"path"`
	}

	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	switch args.Action {
	case "disk_usage":
		return s.diskUsage(ctx, args.Path)
	case "memory":
		return s.memory(ctx)
	case "uptime":
		return s.uptime(ctx)
	case "load":
		return s.loadAvg(ctx)
	case "overview":
		return s.overview(ctx, args.Path)
	default:
		return "Invalid action. Use 'disk_usage', 'memory', 'uptime', 'load', or 'overview'.", nil
	}
}

func (s *SystemTool) diskUsage(ctx context.Context, path string) (string, error) {
	if path == "" {
		path = "/"
	}
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return fmt.Sprintf("Error reading disk usage for %s: %v", path, err), nil
	}
	return fmt.Sprintf("Disk %s: used %.0f%% (%.1f GB of %.1f GB)",
		path, usage.UsedPercent,
		float64(usage.Used)/1e9, float64(usage.Total)/1e9), nil
}

func (s *SystemTool) memory(ctx context.Context) (string, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return fmt.Sprintf("Error reading memory stats: %v", err), nil
	}
	return fmt.Sprintf("Memory: used %.0f%% (%.1f GB of %.1f GB)",
		vm.UsedPercent, float64(vm.Used)/1e9, float64(vm.Total)/1e9), nil
}

func (s *SystemTool) uptime(ctx context.Context) (string, error) {
	seconds, err := host.UptimeWithContext(ctx)
	if err != nil {
		return fmt.Sprintf("Error reading uptime: %v", err), nil
	}
	return fmt.Sprintf("Uptime: %s", (time.Duration(seconds) * time.Second).String()), nil
}

func (s *SystemTool) loadAvg(ctx context.Context) (string, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return fmt.Sprintf("Error reading load average: %v", err), nil
	}
	return fmt.Sprintf("Load average: %.2f %.2f %.2f", avg.Load1, avg.Load5, avg.Load15), nil
}

func (s *SystemTool) overview(ctx context.Context, path string) (string, error) {
	var b strings.Builder
	for _, fn := range []func() (string, error){
		func() (string, error) { return s.diskUsage(ctx, path) },
		func() (string, error) { return s.memory(ctx) },
		func() (string, error) { return s.uptime(ctx) },
		func() (string, error) { return s.loadAvg(ctx) },
	} {
		line, err := fn()
		if err != nil {
			return "", err
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String(), nil
}
