// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package binlog

import (
	"time"

	"github.com/danjacques/gobinlog/wire"
)

// FieldFlags selects which optional fields are present in a record.
//
// Present fields are written in the order of their flag bits.
type FieldFlags int32

// Field flags.
const (
	FlagMessage FieldFlags = 1 << iota
	FlagBuildEventContext
	FlagThreadID
	FlagHelpKeyword
	FlagSenderName
	FlagTimestamp
	FlagImportance
	FlagSubcategory
	FlagCode
	FlagFile
	FlagProjectFile
	FlagLineNumber
	FlagColumnNumber
	FlagEndLineNumber
	FlagEndColumnNumber

	// commonFlags are the flags that apply to every event.
	commonFlags = FlagMessage | FlagBuildEventContext | FlagThreadID | FlagHelpKeyword |
		FlagSenderName | FlagTimestamp

	// diagnosticFlags are the flags that apply to events carrying a Diagnostic.
	diagnosticFlags = FlagSubcategory | FlagCode | FlagFile | FlagProjectFile |
		FlagLineNumber | FlagColumnNumber | FlagEndLineNumber | FlagEndColumnNumber
)

// BuildEventContext identifies where in the execution an event originated.
type BuildEventContext struct {
	NodeID            int32
	ProjectContextID  int32
	TargetID          int32
	TaskID            int32
	SubmissionID      int32
	ProjectInstanceID int32
}

// InvalidID is the value used for an unset context identifier.
const InvalidID int32 = -1

// Fields are the fields shared by every event kind. Each is written only if
// it differs from its zero value.
type Fields struct {
	Message       string
	Context       *BuildEventContext
	ThreadID      int32
	HelpKeyword   string
	SenderName    string
	Timestamp     time.Time
	TimestampKind wire.TimestampKind

	// Present holds the field flags an event was decoded with. When it is set,
	// a Writer writes at least these fields, even if they have since been
	// changed to their zero values, so that a rewritten stream keeps the
	// original field presence.
	Present FieldFlags
}

// Common implements Event.
func (f *Fields) Common() *Fields { return f }

func (f *Fields) flags() FieldFlags {
	var flags FieldFlags
	if f.Message != "" {
		flags |= FlagMessage
	}
	if f.Context != nil {
		flags |= FlagBuildEventContext
	}
	if f.ThreadID != 0 {
		flags |= FlagThreadID
	}
	if f.HelpKeyword != "" {
		flags |= FlagHelpKeyword
	}
	if f.SenderName != "" {
		flags |= FlagSenderName
	}
	if !f.Timestamp.IsZero() {
		flags |= FlagTimestamp
	}
	return flags
}

// Importance is the verbosity class of a message.
type Importance int32

// Message importances.
const (
	ImportanceHigh   Importance = 0
	ImportanceNormal Importance = 1
	ImportanceLow    Importance = 2
)

// Diagnostic holds the source location fields of errors, warnings and
// messages.
type Diagnostic struct {
	Subcategory     string
	Code            string
	File            string
	ProjectFile     string
	LineNumber      int32
	ColumnNumber    int32
	EndLineNumber   int32
	EndColumnNumber int32
}

func (d *Diagnostic) diagnostic() *Diagnostic { return d }

func (d *Diagnostic) flags() FieldFlags {
	var flags FieldFlags
	if d.Subcategory != "" {
		flags |= FlagSubcategory
	}
	if d.Code != "" {
		flags |= FlagCode
	}
	if d.File != "" {
		flags |= FlagFile
	}
	if d.ProjectFile != "" {
		flags |= FlagProjectFile
	}
	if d.LineNumber != 0 {
		flags |= FlagLineNumber
	}
	if d.ColumnNumber != 0 {
		flags |= FlagColumnNumber
	}
	if d.EndLineNumber != 0 {
		flags |= FlagEndLineNumber
	}
	if d.EndColumnNumber != 0 {
		flags |= FlagEndColumnNumber
	}
	return flags
}

// Property is a name/value pair.
type Property struct {
	Name  string
	Value string
}
