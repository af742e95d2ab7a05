package report

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

type Severity string

const (
	SevError   Severity = "error"
	SevWarning Severity = "warning"
)

// Issue codes. Errors abort the run; warnings exclude or degrade one entity.
const (
	CodeBusMissingSpeed   = "BUS_001"
	CodeBusBadController  = "BUS_002"
	CodeBusDuplicate      = "BUS_003"
	CodeSetMissingName    = "SET_001"
	CodeSetDuplicate      = "SET_002"
	CodeSignalIncomplete  = "SIGNAL_001"
	CodeSignalTooMany     = "SIGNAL_010"
	CodeSignalThrottle    = "SIGNAL_020"
	CodeSignalFrequency   = "SIGNAL_030"
	CodeSignalRange       = "SIGNAL_040"
	CodeSignalDuplicate   = "SIGNAL_050"
	CodeMessageNoBus      = "MESSAGE_001"
	CodeMessageBadID      = "MESSAGE_002"
	CodeMappingEmpty      = "MAPPING_001"
	CodeMappingDisabled   = "MAPPING_002"
	CodeMappingNoBus      = "MAPPING_003"
	CodeMappingUndefBus   = "MAPPING_004"
	CodeMappingNoFile     = "MAPPING_005"
	CodeDatabaseMissingID = "DATABASE_001"
	CodeDatabaseUnusable  = "DATABASE_002"
	CodeLoadFailed        = "LOAD_001"
)

type Issue struct {
	Code       string         `json:"code" yaml:"code"`
	Severity   Severity       `json:"severity" yaml:"severity"`
	Message    string         `json:"message" yaml:"message"`
	MessageSet string         `json:"message_set,omitempty" yaml:"message_set,omitempty"`
	Path       string         `json:"path,omitempty" yaml:"path,omitempty"` // "/buses/hs/speed"
	Hint       string         `json:"hint,omitempty" yaml:"hint,omitempty"`
	Meta       map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

func (i Issue) String() string {
	s := fmt.Sprintf("%s %s", i.Code, i.Message)
	if i.MessageSet != "" || i.Path != "" {
		s += fmt.Sprintf(" (%s%s)", i.MessageSet, i.Path)
	}
	return s
}

type Report struct {
	Valid    bool    `json:"valid" yaml:"valid"`
	Errors   []Issue `json:"errors" yaml:"errors"`
	Warnings []Issue `json:"warnings" yaml:"warnings"`
}

func New() *Report {
	return &Report{Valid: true}
}

func (r *Report) AddError(i Issue) {
	if i.Severity == "" {
		i.Severity = SevError
	}
	r.Errors = append(r.Errors, i)
	r.Valid = false
}

func (r *Report) AddWarning(i Issue) {
	if i.Severity == "" {
		i.Severity = SevWarning
	}
	r.Warnings = append(r.Warnings, i)
}

// Errorf and Warnf are shorthands for issues that only need a code, a path
// and a message.
func (r *Report) Errorf(code, set, path, format string, args ...any) {
	r.AddError(Issue{Code: code, MessageSet: set, Path: path, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) Warnf(code, set, path, format string, args ...any) {
	r.AddWarning(Issue{Code: code, MessageSet: set, Path: path, Message: fmt.Sprintf(format, args...)})
}

// Merge appends the issues of other.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	for _, i := range other.Errors {
		r.AddError(i)
	}
	for _, i := range other.Warnings {
		r.AddWarning(i)
	}
}

func (r *Report) HasErrors() bool {
	return len(r.Errors) > 0
}

// Finalize sorts issues so a report prints identically run after run.
func (r *Report) Finalize() {
	sortIssues(r.Errors)
	sortIssues(r.Warnings)
	r.Valid = len(r.Errors) == 0
}

// Log writes every issue once to logger.
func (r *Report) Log(logger *zap.Logger) {
	for _, i := range r.Errors {
		logger.Error(i.Message, fields(i)...)
	}
	for _, i := range r.Warnings {
		logger.Warn(i.Message, fields(i)...)
	}
}

func fields(i Issue) []zap.Field {
	fs := []zap.Field{zap.String("code", i.Code)}
	if i.MessageSet != "" {
		fs = append(fs, zap.String("message_set", i.MessageSet))
	}
	if i.Path != "" {
		fs = append(fs, zap.String("path", i.Path))
	}
	if i.Hint != "" {
		fs = append(fs, zap.String("hint", i.Hint))
	}
	return fs
}

func sortIssues(list []Issue) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.MessageSet != b.MessageSet {
			return a.MessageSet < b.MessageSet
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})
}
