// Package stage runs the fixed sequence of language-model stages over a
// dataset schema and turns every outcome, including failures, into a
// complete set of results.
package stage

import (
	"fmt"
	"strings"
	"time"

	"github.com/KaramelBytes/datacrew-cli/internal/ai"
	"github.com/KaramelBytes/datacrew-cli/internal/analysis"
)

// ID names a stage.
type ID string

const (
	Clean    ID = "clean"
	Validate ID = "validate"
	Relate   ID = "relate"
	Codegen  ID = "codegen"
	Insight  ID = "insight"
)

// All lists every stage in run order. Clean is produced locally by the
// cleaner; the others call the runtime.
func All() []ID { return []ID{Clean, Validate, Relate, Codegen, Insight} }

// External lists the stages that call the runtime, in run order.
func External() []ID { return []ID{Validate, Relate, Codegen, Insight} }

// Status is the outcome of one stage.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result is the outcome of one stage. Text is always non-empty: failed and
// skipped stages carry a placeholder.
type Result struct {
	Stage     ID            `json:"stage"`
	Status    Status        `json:"status"`
	Text      string        `json:"text"`
	Err       error         `json:"-"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Attempts  int           `json:"attempts"`
	Duration  time.Duration `json:"duration"`
	Usage     ai.Usage      `json:"usage"`
	Model     string        `json:"model,omitempty"`
}

// OK reports whether the stage produced its own text.
func (r Result) OK() bool { return r.Status == StatusOK }

// Placeholder is the deterministic text used when a stage has no output of
// its own: the column list followed by a note explaining why.
func Placeholder(schema []analysis.Field, note string) string {
	names := make([]string, len(schema))
	for i, f := range schema {
		names[i] = f.Name
	}
	s := "the columns in the dataset are: " + strings.Join(names, ", ")
	if note != "" {
		s += "\n(" + note + ")"
	}
	return s
}

func failedResult(id ID, schema []analysis.Field, err error, attempts int, d time.Duration) Result {
	kind := KindOf(err)
	return Result{
		Stage:     id,
		Status:    StatusFailed,
		Text:      Placeholder(schema, fmt.Sprintf("%s stage unavailable: %s: %v", id, kind, err)),
		Err:       err,
		ErrorKind: kind,
		Error:     err.Error(),
		Attempts:  attempts,
		Duration:  d,
	}
}

func skippedResult(id ID, schema []analysis.Field, note string) Result {
	return Result{Stage: id, Status: StatusSkipped, Text: Placeholder(schema, note)}
}
