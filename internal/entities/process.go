package entities

import "time"

type Process struct {
	ID          int       `json:"pm_id"`
	Name        string    `json:"name"`
	Namespace   string    `json:"namespace"`
	Version     string    `json:"version"`
	Status      string    `json:"status"`
	Restarts    int       `json:"restart_time"`
	UptimeSince time.Time `json:"uptime_since"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryBytes int64     `json:"memory_bytes"`
	PID         int       `json:"pid"`
	ExecMode    string    `json:"exec_mode"`
}
