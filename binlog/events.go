// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package binlog

import (
	"github.com/danjacques/gobinlog/binlog/archive"
	"github.com/danjacques/gobinlog/support/logging"
)

// Event is a single decoded event record.
//
// Concrete events are pointers to the struct types in this file. Every one of
// them embeds Fields.
type Event interface {
	// Kind returns the record kind this event is encoded as.
	Kind() RecordKind
	// Common returns the event's common fields.
	Common() *Fields

	encodeFields(e *recordEncoder) error
	decodeFields(d *recordDecoder) error
}

// diagnosticEvent is implemented by events that carry a Diagnostic.
type diagnosticEvent interface {
	diagnostic() *Diagnostic
}

// importanceEvent is implemented by events that carry an Importance.
type importanceEvent interface {
	importance() *Importance
}

// BuildStarted is raised once, when the build begins.
type BuildStarted struct {
	Fields
	Environment []Property
}

// BuildFinished is raised once, when the build ends.
type BuildFinished struct {
	Fields
	Succeeded bool
}

// ProjectStarted is raised when a project begins building.
type ProjectStarted struct {
	Fields
	ProjectID        int32
	ProjectFile      string
	TargetNames      string
	ToolsVersion     string
	ParentContext    *BuildEventContext
	GlobalProperties []Property
}

// ProjectFinished is raised when a project finishes building.
type ProjectFinished struct {
	Fields
	ProjectFile string
	Succeeded   bool
}

// TargetStarted is raised when a target begins executing.
type TargetStarted struct {
	Fields
	TargetName   string
	ProjectFile  string
	TargetFile   string
	ParentTarget string
	BuildReason  int32
}

// TargetFinished is raised when a target finishes executing.
type TargetFinished struct {
	Fields
	TargetName  string
	ProjectFile string
	TargetFile  string
	Succeeded   bool
}

// TaskStarted is raised when a task begins executing.
type TaskStarted struct {
	Fields
	TaskName    string
	ProjectFile string
	TaskFile    string
}

// TaskFinished is raised when a task finishes executing.
type TaskFinished struct {
	Fields
	TaskName    string
	ProjectFile string
	TaskFile    string
	Succeeded   bool
}

// Error is a build error.
type Error struct {
	Fields
	Diagnostic
}

// Warning is a build warning.
type Warning struct {
	Fields
	Diagnostic
}

// Message is an informational message.
type Message struct {
	Fields
	Diagnostic
	Importance Importance
}

func (ev *Message) importance() *Importance { return &ev.Importance }

// CriticalBuildMessage is a message that is always shown, regardless of
// verbosity.
type CriticalBuildMessage struct {
	Fields
	Diagnostic
	Importance Importance
}

func (ev *CriticalBuildMessage) importance() *Importance { return &ev.Importance }

// TaskCommandLine records the command line a task executed.
type TaskCommandLine struct {
	Fields
	Importance  Importance
	CommandLine string
	TaskName    string
}

func (ev *TaskCommandLine) importance() *Importance { return &ev.Importance }

// CustomEvent is an event defined outside of the build engine. Its Data is
// opaque to this package.
type CustomEvent struct {
	Fields
	TypeName string
	Data     []byte
}

// EmbeddedArchive is a block of embedded content, typically a zip archive of
// the build's project files.
type EmbeddedArchive struct {
	Fields
	Data []byte
}

// Archive opens the embedded content as an archive.
//
// Archive never fails: if the content is corrupt, an empty archive is
// returned and a warning is logged to logger.
func (ev *EmbeddedArchive) Archive(logger logging.L) *archive.Archive {
	return archive.Open(ev.Data, logger)
}

// Kind implementations.
func (*BuildStarted) Kind() RecordKind         { return KindBuildStarted }
func (*BuildFinished) Kind() RecordKind        { return KindBuildFinished }
func (*ProjectStarted) Kind() RecordKind       { return KindProjectStarted }
func (*ProjectFinished) Kind() RecordKind      { return KindProjectFinished }
func (*TargetStarted) Kind() RecordKind        { return KindTargetStarted }
func (*TargetFinished) Kind() RecordKind       { return KindTargetFinished }
func (*TaskStarted) Kind() RecordKind          { return KindTaskStarted }
func (*TaskFinished) Kind() RecordKind         { return KindTaskFinished }
func (*Error) Kind() RecordKind                { return KindError }
func (*Warning) Kind() RecordKind              { return KindWarning }
func (*Message) Kind() RecordKind              { return KindMessage }
func (*TaskCommandLine) Kind() RecordKind      { return KindTaskCommandLine }
func (*CriticalBuildMessage) Kind() RecordKind { return KindCriticalBuildMessage }
func (*CustomEvent) Kind() RecordKind          { return KindCustomEvent }
func (*EmbeddedArchive) Kind() RecordKind      { return KindEmbeddedArchive }

// newEvent maps each event kind to a constructor for its zero value.
//
// String and EndOfFile records are handled by the Reader directly.
var newEvent = map[RecordKind]func() Event{
	KindBuildStarted:         func() Event { return &BuildStarted{} },
	KindBuildFinished:        func() Event { return &BuildFinished{} },
	KindProjectStarted:       func() Event { return &ProjectStarted{} },
	KindProjectFinished:      func() Event { return &ProjectFinished{} },
	KindTargetStarted:        func() Event { return &TargetStarted{} },
	KindTargetFinished:       func() Event { return &TargetFinished{} },
	KindTaskStarted:          func() Event { return &TaskStarted{} },
	KindTaskFinished:         func() Event { return &TaskFinished{} },
	KindError:                func() Event { return &Error{} },
	KindWarning:              func() Event { return &Warning{} },
	KindMessage:              func() Event { return &Message{} },
	KindTaskCommandLine:      func() Event { return &TaskCommandLine{} },
	KindCriticalBuildMessage: func() Event { return &CriticalBuildMessage{} },
	KindCustomEvent:          func() Event { return &CustomEvent{} },
	KindEmbeddedArchive:      func() Event { return &EmbeddedArchive{} },
}

// allowedFlags returns the field flags that ev's kind can carry.
func allowedFlags(ev Event) FieldFlags {
	flags := commonFlags
	if _, ok := ev.(diagnosticEvent); ok {
		flags |= diagnosticFlags
	}
	if _, ok := ev.(importanceEvent); ok {
		flags |= FlagImportance
	}
	return flags
}

// eventFlags returns the field flags that ev should be written with.
func eventFlags(ev Event) FieldFlags {
	f := ev.Common()
	flags := f.flags()
	if d, ok := ev.(diagnosticEvent); ok {
		flags |= d.diagnostic().flags()
	}
	if imp, ok := ev.(importanceEvent); ok && *imp.importance() != ImportanceHigh {
		flags |= FlagImportance
	}
	return (flags | f.Present) & allowedFlags(ev)
}

// VisitStrings calls fn with a pointer to every string field of ev, allowing
// the field to be inspected or replaced in place.
//
// Binary payloads (CustomEvent.Data, EmbeddedArchive.Data) are not strings
// and are not visited.
func VisitStrings(ev Event, fn func(*string)) {
	f := ev.Common()
	fn(&f.Message)
	fn(&f.HelpKeyword)
	fn(&f.SenderName)

	if d, ok := ev.(diagnosticEvent); ok {
		diag := d.diagnostic()
		fn(&diag.Subcategory)
		fn(&diag.Code)
		fn(&diag.File)
		fn(&diag.ProjectFile)
	}

	visitProperties := func(props []Property) {
		for i := range props {
			fn(&props[i].Name)
			fn(&props[i].Value)
		}
	}

	switch ev := ev.(type) {
	case *BuildStarted:
		visitProperties(ev.Environment)
	case *ProjectStarted:
		fn(&ev.ProjectFile)
		fn(&ev.TargetNames)
		fn(&ev.ToolsVersion)
		visitProperties(ev.GlobalProperties)
	case *ProjectFinished:
		fn(&ev.ProjectFile)
	case *TargetStarted:
		fn(&ev.TargetName)
		fn(&ev.ProjectFile)
		fn(&ev.TargetFile)
		fn(&ev.ParentTarget)
	case *TargetFinished:
		fn(&ev.TargetName)
		fn(&ev.ProjectFile)
		fn(&ev.TargetFile)
	case *TaskStarted:
		fn(&ev.TaskName)
		fn(&ev.ProjectFile)
		fn(&ev.TaskFile)
	case *TaskFinished:
		fn(&ev.TaskName)
		fn(&ev.ProjectFile)
		fn(&ev.TaskFile)
	case *TaskCommandLine:
		fn(&ev.CommandLine)
		fn(&ev.TaskName)
	case *CustomEvent:
		fn(&ev.TypeName)
	}
}
