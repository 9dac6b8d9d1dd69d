package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Entry is one parsed line of teamwork.log.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	Team      string         `json:"team,omitempty"`
	Teammate  string         `json:"teammate,omitempty"`
	Component string         `json:"component,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	// MinLevel keeps entries at or above this level.
	MinLevel  string
	Since     time.Time
	Team      string
	Teammate  string
	Component string
	// Contains is matched case-insensitively against the message.
	Contains string
}

var levelRank = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ReadLogs returns every entry in dir's teamwork.log and its rotated
// backups, oldest first. Lines that are not JSON are skipped.
func ReadLogs(dir string) ([]Entry, error) {
	base := filepath.Join(dir, LogFileName)

	var paths []string
	for i := 1; ; i++ {
		p := BackupPath(base, i)
		if _, err := os.Stat(p); err != nil {
			break
		}
		paths = append(paths, p)
	}
	slices.Reverse(paths)
	if _, err := os.Stat(base); err == nil {
		paths = append(paths, base)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no log file in %s", dir)
	}

	var entries []Entry
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		got, err := ParseEntries(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		entries = append(entries, got...)
	}
	slices.SortStableFunc(entries, func(a, b Entry) int { return a.Time.Compare(b.Time) })
	return entries, nil
}

// ParseEntries reads JSON log lines from r, skipping any that do not parse.
func ParseEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if e, ok := parseEntry(line); ok {
			entries = append(entries, e)
		}
	}
	return entries, scanner.Err()
}

func parseEntry(line []byte) (Entry, bool) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return Entry{}, false
	}

	var e Entry
	take := func(key string) string {
		v, _ := raw[key].(string)
		delete(raw, key)
		return v
	}
	if ts := take("time"); ts != "" {
		e.Time, _ = time.Parse(time.RFC3339Nano, ts)
	}
	e.Level = take("level")
	e.Message = take("msg")
	e.Team = take("team")
	e.Teammate = take("teammate")
	e.Component = take("component")
	if len(raw) > 0 {
		e.Attrs = raw
	}
	return e, true
}

// Match reports whether e passes every criterion in f.
func (f Filter) Match(e Entry) bool {
	if f.MinLevel != "" {
		want, ok := levelRank[strings.ToUpper(f.MinLevel)]
		if ok && levelRank[e.Level] < want {
			return false
		}
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if f.Team != "" && e.Team != f.Team {
		return false
	}
	if f.Teammate != "" && e.Teammate != f.Teammate {
		return false
	}
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	if f.Contains != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(f.Contains)) {
		return false
	}
	return true
}

// FilterEntries returns the entries f matches.
func FilterEntries(entries []Entry, f Filter) []Entry {
	var out []Entry
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// FormatEntry renders e as a single human-readable line.
func FormatEntry(e Entry) string {
	var sb strings.Builder
	sb.WriteString(e.Time.Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(&sb, " %-5s", e.Level)

	var scope []string
	for _, s := range []string{e.Team, e.Teammate, e.Component} {
		if s != "" {
			scope = append(scope, s)
		}
	}
	if len(scope) > 0 {
		fmt.Fprintf(&sb, " [%s]", strings.Join(scope, "/"))
	}
	sb.WriteString(" ")
	sb.WriteString(e.Message)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Attrs[k])
	}
	return sb.String()
}
