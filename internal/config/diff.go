package config

import (
	"encoding/json"
	"sort"
	"strings"
)

// ScheduleDiff lists schedule names by what a reload does to them.
type ScheduleDiff struct {
	Added   []string
	Changed []string
	Removed []string
}

func (d ScheduleDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// DiffSchedules compares two configs by schedule name and content hash.
// Either side may be nil.
func DiffSchedules(old, next *Config) ScheduleDiff {
	before := scheduleHashes(old)
	after := scheduleHashes(next)

	var d ScheduleDiff
	for name, h := range after {
		prev, ok := before[name]
		switch {
		case !ok:
			d.Added = append(d.Added, name)
		case prev != h:
			d.Changed = append(d.Changed, name)
		}
	}
	for name := range before {
		if _, ok := after[name]; !ok {
			d.Removed = append(d.Removed, name)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Changed)
	sort.Strings(d.Removed)
	return d
}

func scheduleHashes(cfg *Config) map[string]uint64 {
	out := map[string]uint64{}
	if cfg == nil {
		return out
	}
	for _, s := range cfg.Schedules {
		out[strings.TrimSpace(s.Name)] = s.Hash()
	}
	return out
}

// SummarizeChange names the top-level sections that differ, plus the
// schedule diff. Sections needing a restart are marked with "(restart)".
func SummarizeChange(old, next *Config) (sections []string, schedules ScheduleDiff) {
	if old == nil || next == nil {
		return nil, DiffSchedules(old, next)
	}
	if !sameJSON(old.Logging, next.Logging) {
		sections = append(sections, "logging")
	}
	if !sameJSON(old.Runtime, next.Runtime) {
		sections = append(sections, "runtime(restart)")
	}
	if !sameJSON(old.HTTP, next.HTTP) {
		sections = append(sections, "http(restart)")
	}
	if !sameJSON(old.Storage, next.Storage) {
		sections = append(sections, "storage(restart)")
	}
	if !sameJSON(old.Systemd, next.Systemd) {
		sections = append(sections, "systemd(restart)")
	}
	schedules = DiffSchedules(old, next)
	if !schedules.Empty() {
		sections = append(sections, "schedules")
	}
	return sections, schedules
}

func sameJSON(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}
