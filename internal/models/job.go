// Package models holds the wire/record types shared across codr's
// components: the Job record, its status enum, the language enum, and
// the execution result shape the external sandbox hands back.
package models

import "fmt"

// Status is the closed set of job lifecycle states.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	// StatusUnknown is never stored; it is the read-only response when a
	// job record is absent or has expired.
	StatusUnknown Status = "unknown"
)

// order gives the monotonic position of each stored status, used to
// enforce invariant 1 (no transition goes backwards, none skips
// "processing"). StatusUnknown has no stored position — it's a read-time
// synthetic value, not a transition target.
var order = map[Status]int{
	StatusQueued:     0,
	StatusProcessing: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// IsValidTransition reports whether moving from `from` to `to` respects
// invariant 1. The Job Store (internal/jobstore) does not itself enforce
// this — per spec it is the worker loop's responsibility — but the check
// is exposed here so both the worker and tests can share it.
func IsValidTransition(from, to Status) bool {
	fromPos, ok := order[from]
	if !ok {
		return false
	}
	toPos, ok := order[to]
	if !ok {
		return false
	}
	if toPos == fromPos && fromPos == order[StatusCompleted] {
		return false // completed/failed are both terminal; no lateral move
	}
	if toPos > fromPos+1 {
		return false // skips "processing"
	}
	return toPos >= fromPos
}

// IsTerminal reports whether a status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Language is the closed set of supported submission languages, L in
// the spec.
type Language string

const (
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangJava       Language = "java"
	LangCPP        Language = "cpp"
	LangC          Language = "c"
	LangGo         Language = "go"
	LangRust       Language = "rust"
)

// AllLanguages enumerates L in spec order.
var AllLanguages = []Language{
	LangPython, LangJavaScript, LangTypeScript, LangJava,
	LangCPP, LangC, LangGo, LangRust,
}

// Valid reports whether l is a member of L.
func (l Language) Valid() bool {
	for _, v := range AllLanguages {
		if v == l {
			return true
		}
	}
	return false
}

// Result is the structured execution outcome produced by the sandbox.
// TimedOut and MemoryUsedKB are optional fields the original worker
// threads through when the sandbox reports them; zero-valued when absent.
type Result struct {
	Success       bool    `json:"success"`
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	ExitCode      int     `json:"exit_code"`
	ExecutionTime float64 `json:"execution_time,omitempty"`
	TimedOut      bool    `json:"timed_out,omitempty"`
	MemoryUsedKB  int64   `json:"memory_used_kb,omitempty"`
}

// Job is the authoritative record, keyed by ID, stored as a broker hash
// with a 1-hour TTL.
type Job struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"`
	Language    Language `json:"language"`
	Filename    string   `json:"filename"`
	Status      Status   `json:"status"`
	CreatedAt   int64    `json:"created_at"`
	CompletedAt int64    `json:"completed_at,omitempty"`
	Result      *Result  `json:"result,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// CodeSubmission is the inbound payload for POST /api/submit_code.
type CodeSubmission struct {
	Code     string   `json:"code"`
	Language Language `json:"language"`
	Filename string   `json:"filename"`
}

// MaxCodeBytes and MaxFilenameBytes are the spec's §3 size limits on
// submission shape, enforced by the admission gateway.
const (
	MaxCodeBytes     = 10000
	MaxFilenameBytes = 255
)

func (j *Job) String() string {
	return fmt.Sprintf("Job{id=%s lang=%s status=%s}", j.ID, j.Language, j.Status)
}
