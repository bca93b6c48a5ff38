// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package binlog

import (
	"time"

	"github.com/danjacques/gobinlog/stringtable"
	"github.com/danjacques/gobinlog/support/formaterr"
	"github.com/danjacques/gobinlog/wire"
)

// recordEncoder writes the fields of a single record payload.
//
// Its methods record the first error encountered and become no-ops
// afterwards; the error is returned by finish.
type recordEncoder struct {
	enc *wire.Encoder

	// intern, if not nil, returns the string table handle for a string,
	// defining it in the stream if necessary.
	intern func(string) (stringtable.Handle, error)

	err error
}

func (e *recordEncoder) finish() error { return e.err }

func (e *recordEncoder) varint(v int32) {
	if e.err == nil {
		e.err = e.enc.WriteVarInt(v)
	}
}

func (e *recordEncoder) boolean(v bool) {
	if e.err == nil {
		e.err = e.enc.WriteBool(v)
	}
}

func (e *recordEncoder) bytes(v []byte) {
	if e.err == nil {
		e.err = e.enc.WriteBytes(v)
	}
}

func (e *recordEncoder) timestamp(t time.Time, kind wire.TimestampKind) {
	if e.err == nil {
		e.err = e.enc.WriteTimestamp(t, kind)
	}
}

func (e *recordEncoder) str(s string) {
	if e.err != nil {
		return
	}
	if e.intern == nil {
		e.err = e.enc.WriteString(s)
		return
	}

	h := stringtable.None
	if s != "" {
		if h, e.err = e.intern(s); e.err != nil {
			return
		}
	}
	e.err = e.enc.WriteVarInt(int32(h))
}

func (e *recordEncoder) context(c *BuildEventContext) {
	if c == nil {
		c = &BuildEventContext{}
	}
	e.varint(c.NodeID)
	e.varint(c.ProjectContextID)
	e.varint(c.TargetID)
	e.varint(c.TaskID)
	e.varint(c.SubmissionID)
	e.varint(c.ProjectInstanceID)
}

func (e *recordEncoder) properties(props []Property) {
	e.varint(int32(len(props)))
	for _, p := range props {
		e.str(p.Name)
		e.str(p.Value)
	}
}

// common writes the flag word and every flagged field shared between kinds.
func (e *recordEncoder) common(ev Event, flags FieldFlags) {
	f := ev.Common()

	e.varint(int32(flags))
	if flags&FlagMessage != 0 {
		e.str(f.Message)
	}
	if flags&FlagBuildEventContext != 0 {
		e.context(f.Context)
	}
	if flags&FlagThreadID != 0 {
		e.varint(f.ThreadID)
	}
	if flags&FlagHelpKeyword != 0 {
		e.str(f.HelpKeyword)
	}
	if flags&FlagSenderName != 0 {
		e.str(f.SenderName)
	}
	if flags&FlagTimestamp != 0 {
		e.timestamp(f.Timestamp, f.TimestampKind)
	}

	if imp, ok := ev.(importanceEvent); ok && flags&FlagImportance != 0 {
		e.varint(int32(*imp.importance()))
	}

	if de, ok := ev.(diagnosticEvent); ok {
		d := de.diagnostic()
		if flags&FlagSubcategory != 0 {
			e.str(d.Subcategory)
		}
		if flags&FlagCode != 0 {
			e.str(d.Code)
		}
		if flags&FlagFile != 0 {
			e.str(d.File)
		}
		if flags&FlagProjectFile != 0 {
			e.str(d.ProjectFile)
		}
		if flags&FlagLineNumber != 0 {
			e.varint(d.LineNumber)
		}
		if flags&FlagColumnNumber != 0 {
			e.varint(d.ColumnNumber)
		}
		if flags&FlagEndLineNumber != 0 {
			e.varint(d.EndLineNumber)
		}
		if flags&FlagEndColumnNumber != 0 {
			e.varint(d.EndColumnNumber)
		}
	}
}

// recordDecoder reads the fields of a single record payload.
//
// Like recordEncoder, it retains the first error encountered.
type recordDecoder struct {
	dec *wire.Decoder

	// strings, if not nil, resolves string handles. If nil, strings are
	// inline.
	strings *stringtable.Table

	err error
}

func (d *recordDecoder) finish() error { return d.err }

func (d *recordDecoder) varint(v *int32) {
	if d.err == nil {
		*v, d.err = d.dec.ReadVarInt()
	}
}

func (d *recordDecoder) boolean(v *bool) {
	if d.err == nil {
		*v, d.err = d.dec.ReadBool()
	}
}

func (d *recordDecoder) bytes(v *[]byte) {
	if d.err == nil {
		*v, d.err = d.dec.ReadBytes()
	}
}

func (d *recordDecoder) timestamp(t *time.Time, kind *wire.TimestampKind) {
	if d.err == nil {
		*t, *kind, d.err = d.dec.ReadTimestamp()
	}
}

func (d *recordDecoder) str(s *string) {
	if d.err != nil {
		return
	}
	if d.strings == nil {
		*s, d.err = d.dec.ReadString()
		return
	}

	off := d.dec.Offset()
	h, err := d.dec.ReadVarInt()
	if err != nil {
		d.err = err
		return
	}
	if stringtable.Handle(h) == stringtable.None {
		*s = ""
		return
	}

	v, ok := d.strings.Lookup(stringtable.Handle(h))
	if !ok {
		d.err = formaterr.Errorf(formaterr.InvalidFormat, "read string",
			"undefined string handle %d (table has %d)", h, d.strings.Len()).At(off, "")
		return
	}
	*s = v
}

func (d *recordDecoder) count(v *int) {
	var n int32
	d.varint(&n)
	if d.err == nil && n < 0 {
		d.err = formaterr.Errorf(formaterr.InvalidFormat, "read count", "negative count %d", n)
		return
	}
	*v = int(n)
}

func (d *recordDecoder) context(c **BuildEventContext) {
	var v BuildEventContext
	d.varint(&v.NodeID)
	d.varint(&v.ProjectContextID)
	d.varint(&v.TargetID)
	d.varint(&v.TaskID)
	d.varint(&v.SubmissionID)
	d.varint(&v.ProjectInstanceID)
	*c = &v
}

func (d *recordDecoder) properties(props *[]Property) {
	var n int
	d.count(&n)
	if d.err != nil || n == 0 {
		return
	}

	// Grow incrementally, so a corrupt count can't force a huge allocation.
	for i := 0; i < n && d.err == nil; i++ {
		var p Property
		d.str(&p.Name)
		d.str(&p.Value)
		*props = append(*props, p)
	}
}

// common reads the flag word and every flagged field shared between kinds.
func (d *recordDecoder) common(ev Event, flags FieldFlags) {
	f := ev.Common()
	f.Present = flags

	if flags&FlagMessage != 0 {
		d.str(&f.Message)
	}
	if flags&FlagBuildEventContext != 0 {
		d.context(&f.Context)
	}
	if flags&FlagThreadID != 0 {
		d.varint(&f.ThreadID)
	}
	if flags&FlagHelpKeyword != 0 {
		d.str(&f.HelpKeyword)
	}
	if flags&FlagSenderName != 0 {
		d.str(&f.SenderName)
	}
	if flags&FlagTimestamp != 0 {
		d.timestamp(&f.Timestamp, &f.TimestampKind)
	}

	if imp, ok := ev.(importanceEvent); ok && flags&FlagImportance != 0 {
		var v int32
		d.varint(&v)
		*imp.importance() = Importance(v)
	}

	if de, ok := ev.(diagnosticEvent); ok {
		diag := de.diagnostic()
		if flags&FlagSubcategory != 0 {
			d.str(&diag.Subcategory)
		}
		if flags&FlagCode != 0 {
			d.str(&diag.Code)
		}
		if flags&FlagFile != 0 {
			d.str(&diag.File)
		}
		if flags&FlagProjectFile != 0 {
			d.str(&diag.ProjectFile)
		}
		if flags&FlagLineNumber != 0 {
			d.varint(&diag.LineNumber)
		}
		if flags&FlagColumnNumber != 0 {
			d.varint(&diag.ColumnNumber)
		}
		if flags&FlagEndLineNumber != 0 {
			d.varint(&diag.EndLineNumber)
		}
		if flags&FlagEndColumnNumber != 0 {
			d.varint(&diag.EndColumnNumber)
		}
	}
}

// Kind-specific fields. Each decodeFields mirrors its encodeFields exactly.

func (ev *BuildStarted) encodeFields(e *recordEncoder) error {
	e.properties(ev.Environment)
	return e.finish()
}

func (ev *BuildStarted) decodeFields(d *recordDecoder) error {
	d.properties(&ev.Environment)
	return d.finish()
}

func (ev *BuildFinished) encodeFields(e *recordEncoder) error {
	e.boolean(ev.Succeeded)
	return e.finish()
}

func (ev *BuildFinished) decodeFields(d *recordDecoder) error {
	d.boolean(&ev.Succeeded)
	return d.finish()
}

func (ev *ProjectStarted) encodeFields(e *recordEncoder) error {
	e.varint(ev.ProjectID)
	e.str(ev.ProjectFile)
	e.str(ev.TargetNames)
	e.str(ev.ToolsVersion)
	e.boolean(ev.ParentContext != nil)
	if ev.ParentContext != nil {
		e.context(ev.ParentContext)
	}
	e.properties(ev.GlobalProperties)
	return e.finish()
}

func (ev *ProjectStarted) decodeFields(d *recordDecoder) error {
	d.varint(&ev.ProjectID)
	d.str(&ev.ProjectFile)
	d.str(&ev.TargetNames)
	d.str(&ev.ToolsVersion)

	var hasParent bool
	if d.boolean(&hasParent); hasParent {
		d.context(&ev.ParentContext)
	}
	d.properties(&ev.GlobalProperties)
	return d.finish()
}

func (ev *ProjectFinished) encodeFields(e *recordEncoder) error {
	e.str(ev.ProjectFile)
	e.boolean(ev.Succeeded)
	return e.finish()
}

func (ev *ProjectFinished) decodeFields(d *recordDecoder) error {
	d.str(&ev.ProjectFile)
	d.boolean(&ev.Succeeded)
	return d.finish()
}

func (ev *TargetStarted) encodeFields(e *recordEncoder) error {
	e.str(ev.TargetName)
	e.str(ev.ProjectFile)
	e.str(ev.TargetFile)
	e.str(ev.ParentTarget)
	e.varint(ev.BuildReason)
	return e.finish()
}

func (ev *TargetStarted) decodeFields(d *recordDecoder) error {
	d.str(&ev.TargetName)
	d.str(&ev.ProjectFile)
	d.str(&ev.TargetFile)
	d.str(&ev.ParentTarget)
	d.varint(&ev.BuildReason)
	return d.finish()
}

func (ev *TargetFinished) encodeFields(e *recordEncoder) error {
	e.str(ev.TargetName)
	e.str(ev.ProjectFile)
	e.str(ev.TargetFile)
	e.boolean(ev.Succeeded)
	return e.finish()
}

func (ev *TargetFinished) decodeFields(d *recordDecoder) error {
	d.str(&ev.TargetName)
	d.str(&ev.ProjectFile)
	d.str(&ev.TargetFile)
	d.boolean(&ev.Succeeded)
	return d.finish()
}

func (ev *TaskStarted) encodeFields(e *recordEncoder) error {
	e.str(ev.TaskName)
	e.str(ev.ProjectFile)
	e.str(ev.TaskFile)
	return e.finish()
}

func (ev *TaskStarted) decodeFields(d *recordDecoder) error {
	d.str(&ev.TaskName)
	d.str(&ev.ProjectFile)
	d.str(&ev.TaskFile)
	return d.finish()
}

func (ev *TaskFinished) encodeFields(e *recordEncoder) error {
	e.str(ev.TaskName)
	e.str(ev.ProjectFile)
	e.str(ev.TaskFile)
	e.boolean(ev.Succeeded)
	return e.finish()
}

func (ev *TaskFinished) decodeFields(d *recordDecoder) error {
	d.str(&ev.TaskName)
	d.str(&ev.ProjectFile)
	d.str(&ev.TaskFile)
	d.boolean(&ev.Succeeded)
	return d.finish()
}

// Errors, warnings and messages carry only common and diagnostic fields.

func (ev *Error) encodeFields(e *recordEncoder) error   { return e.finish() }
func (ev *Error) decodeFields(d *recordDecoder) error   { return d.finish() }
func (ev *Warning) encodeFields(e *recordEncoder) error { return e.finish() }
func (ev *Warning) decodeFields(d *recordDecoder) error { return d.finish() }
func (ev *Message) encodeFields(e *recordEncoder) error { return e.finish() }
func (ev *Message) decodeFields(d *recordDecoder) error { return d.finish() }

func (ev *CriticalBuildMessage) encodeFields(e *recordEncoder) error { return e.finish() }
func (ev *CriticalBuildMessage) decodeFields(d *recordDecoder) error { return d.finish() }

func (ev *TaskCommandLine) encodeFields(e *recordEncoder) error {
	e.str(ev.CommandLine)
	e.str(ev.TaskName)
	return e.finish()
}

func (ev *TaskCommandLine) decodeFields(d *recordDecoder) error {
	d.str(&ev.CommandLine)
	d.str(&ev.TaskName)
	return d.finish()
}

func (ev *CustomEvent) encodeFields(e *recordEncoder) error {
	e.str(ev.TypeName)
	e.bytes(ev.Data)
	return e.finish()
}

func (ev *CustomEvent) decodeFields(d *recordDecoder) error {
	d.str(&ev.TypeName)
	d.bytes(&ev.Data)
	return d.finish()
}

func (ev *EmbeddedArchive) encodeFields(e *recordEncoder) error {
	e.bytes(ev.Data)
	return e.finish()
}

func (ev *EmbeddedArchive) decodeFields(d *recordDecoder) error {
	d.bytes(&ev.Data)
	return d.finish()
}
