// Package report shapes runtime results into the payloads rendered by CLI
// commands. The same payload feeds json, table, yaml and TUI output.
package report

import (
	"sort"
	"strconv"
	"time"

	"github.com/pithecene-io/scriptrun/runtime"
	"github.com/pithecene-io/scriptrun/types"
)

// Execution is the rendered form of one run.
type Execution struct {
	ExecutionID  string   `json:"execution_id" yaml:"execution_id"`
	Language     string   `json:"language" yaml:"language"`
	Driver       string   `json:"driver" yaml:"driver"`
	Outcome      string   `json:"outcome" yaml:"outcome"`
	Message      string   `json:"message" yaml:"message"`
	ExitCode     int      `json:"exit_code" yaml:"exit_code"`
	Duration     string   `json:"duration" yaml:"duration"`
	CacheHit     bool     `json:"cache_hit" yaml:"cache_hit"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Result       *string  `json:"result" yaml:"result"`
	Error        *string  `json:"error" yaml:"error"`
	Logs         []string `json:"logs" yaml:"logs"`
}

// FromRun converts a runtime result.
func FromRun(res *runtime.RunResult) *Execution {
	e := &Execution{
		ExecutionID:  res.ExecutionID,
		Language:     string(res.Language),
		Driver:       res.Driver,
		ExitCode:     res.ExitCode,
		Duration:     res.Duration.Round(time.Millisecond).String(),
		CacheHit:     res.CacheHit,
		Dependencies: res.Dependencies,
		Result:       res.Result.Result,
		Error:        res.Result.Error,
		Logs:         res.Result.Logs,
	}
	if e.Logs == nil {
		e.Logs = []string{}
	}
	if res.Outcome != nil {
		e.Outcome = string(res.Outcome.Status)
		e.Message = res.Outcome.Message
	}
	return e
}

// Record returns the envelope record {logs, result, error}.
func (e *Execution) Record() types.ExecutionResult {
	return types.ExecutionResult{Logs: e.Logs, Result: e.Result, Error: e.Error}
}

// Rows lists label/value pairs for table output. Each log line is its own row.
func (e *Execution) Rows() [][2]string {
	rows := [][2]string{
		{"execution_id", e.ExecutionID},
		{"language", e.Language},
		{"driver", e.Driver},
		{"outcome", e.Outcome},
		{"exit_code", strconv.Itoa(e.ExitCode)},
		{"duration", e.Duration},
		{"cache_hit", strconv.FormatBool(e.CacheHit)},
	}
	for _, dep := range e.Dependencies {
		rows = append(rows, [2]string{"dependency", dep})
	}
	if e.Result != nil {
		rows = append(rows, [2]string{"result", *e.Result})
	}
	if e.Error != nil {
		rows = append(rows, [2]string{"error", *e.Error})
	}
	for _, line := range e.Logs {
		rows = append(rows, [2]string{"log", line})
	}
	return rows
}

// CacheEntry is one row of `cache list`.
type CacheEntry struct {
	Hash     string `json:"hash" yaml:"hash"`
	Language string `json:"language" yaml:"language"`
	Size     int64  `json:"size" yaml:"size"`
	Hits     int64  `json:"hits" yaml:"hits"`
	Created  string `json:"created" yaml:"created"`
	LastUsed string `json:"last_used" yaml:"last_used"`
}

// shortHashLen is the hash prefix shown in listings.
const shortHashLen = 12

// CacheEntries converts cache index entries, most recently used first.
func CacheEntries(entries []runtime.CacheEntry) []CacheEntry {
	sorted := append([]runtime.CacheEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastUsed.After(sorted[j].LastUsed)
	})

	out := make([]CacheEntry, 0, len(sorted))
	for _, e := range sorted {
		hash := e.Hash
		if len(hash) > shortHashLen {
			hash = hash[:shortHashLen]
		}
		out = append(out, CacheEntry{
			Hash:     hash,
			Language: string(e.Language),
			Size:     e.Size,
			Hits:     e.Hits,
			Created:  e.CreatedAt.Format(time.RFC3339),
			LastUsed: e.LastUsed.Format(time.RFC3339),
		})
	}
	return out
}

// CacheClear is the result of `cache clear`.
type CacheClear struct {
	Language string `json:"language" yaml:"language"`
	Removed  int    `json:"removed" yaml:"removed"`
	Dir      string `json:"dir" yaml:"dir"`
}

// WarmupStep is one row of `warmup`.
type WarmupStep struct {
	Step     string `json:"step" yaml:"step"`
	OK       bool   `json:"ok" yaml:"ok"`
	Duration string `json:"duration" yaml:"duration"`
	Detail   string `json:"detail" yaml:"detail"`
}

// WarmupSteps converts runtime warmup results.
func WarmupSteps(steps []runtime.WarmupStep) []WarmupStep {
	out := make([]WarmupStep, 0, len(steps))
	for _, s := range steps {
		detail := s.Output
		if !s.OK {
			detail = s.Error
		}
		out = append(out, WarmupStep{
			Step:     s.Name,
			OK:       s.OK,
			Duration: s.Duration.Round(time.Millisecond).String(),
			Detail:   detail,
		})
	}
	return out
}

// WarmupFailed reports whether any step failed.
func WarmupFailed(steps []WarmupStep) bool {
	for _, s := range steps {
		if !s.OK {
			return true
		}
	}
	return false
}
