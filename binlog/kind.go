// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package binlog

import (
	"fmt"
)

// RecordKind is the tag identifying which variant a record encodes.
//
// These values are written to files; they must never be renumbered.
type RecordKind int32

// Record kinds.
const (
	KindEndOfFile            RecordKind = 0
	KindBuildStarted         RecordKind = 1
	KindBuildFinished        RecordKind = 2
	KindProjectStarted       RecordKind = 3
	KindProjectFinished      RecordKind = 4
	KindTargetStarted        RecordKind = 5
	KindTargetFinished       RecordKind = 6
	KindTaskStarted          RecordKind = 7
	KindTaskFinished         RecordKind = 8
	KindError                RecordKind = 9
	KindWarning              RecordKind = 10
	KindMessage              RecordKind = 11
	KindTaskCommandLine      RecordKind = 12
	KindCriticalBuildMessage RecordKind = 13
	KindCustomEvent          RecordKind = 14
	KindString               RecordKind = 15
	KindEmbeddedArchive      RecordKind = 16

	// maxKnownKind is the largest kind this package understands.
	maxKnownKind = KindEmbeddedArchive
)

var kindNames = [...]string{
	KindEndOfFile:            "EndOfFile",
	KindBuildStarted:         "BuildStarted",
	KindBuildFinished:        "BuildFinished",
	KindProjectStarted:       "ProjectStarted",
	KindProjectFinished:      "ProjectFinished",
	KindTargetStarted:        "TargetStarted",
	KindTargetFinished:       "TargetFinished",
	KindTaskStarted:          "TaskStarted",
	KindTaskFinished:         "TaskFinished",
	KindError:                "Error",
	KindWarning:              "Warning",
	KindMessage:              "Message",
	KindTaskCommandLine:      "TaskCommandLine",
	KindCriticalBuildMessage: "CriticalBuildMessage",
	KindCustomEvent:          "CustomEvent",
	KindString:               "String",
	KindEmbeddedArchive:      "EmbeddedArchive",
}

func (k RecordKind) String() string {
	if k.Known() {
		return kindNames[k]
	}
	return fmt.Sprintf("RecordKind(%d)", int32(k))
}

// Known returns true if this package understands k.
func (k RecordKind) Known() bool { return k >= 0 && k <= maxKnownKind }

// introducedIn returns the file format version in which k first appeared.
//
// A file may only contain kinds introduced at or before its FormatVersion.
func (k RecordKind) introducedIn() uint16 {
	switch k {
	case KindCriticalBuildMessage, KindEmbeddedArchive:
		return 2
	case KindString:
		return 3
	default:
		return 1
	}
}
