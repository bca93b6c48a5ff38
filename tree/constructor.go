// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package tree

import (
	"context"
	"strconv"

	"github.com/danjacques/gobinlog/binlog"
	"github.com/danjacques/gobinlog/replay"
	"github.com/danjacques/gobinlog/support/formaterr"
	"github.com/danjacques/gobinlog/support/logging"

	"github.com/pkg/errors"
)

// Attribute keys set by the Constructor.
const (
	AttrSucceeded    = "Succeeded"
	AttrStartTime    = "StartTime"
	AttrEndTime      = "EndTime"
	AttrValue        = "Value"
	AttrCode         = "Code"
	AttrFile         = "File"
	AttrLine         = "Line"
	AttrColumn       = "Column"
	AttrImportance   = "Importance"
	AttrTargetNames  = "TargetNames"
	AttrToolsVersion = "ToolsVersion"
	AttrTargetFile   = "TargetFile"
	AttrParentTarget = "ParentTarget"
	AttrTaskFile     = "TaskFile"
	AttrCommandLine  = "CommandLine"
	AttrType         = "Type"
	AttrErrors       = "Errors"
	AttrWarnings     = "Warnings"

	// IncompleteMessage names the Error node added to a tree built from a
	// binary log that ended prematurely.
	IncompleteMessage = "file is incomplete"
)

// Folder names used by the Constructor.
const (
	FolderEnvironment      = "Environment"
	FolderGlobalProperties = "Global Properties"
	FolderFiles            = "Files"
)

type targetKey struct {
	projectContext int32
	target         int32
}

type taskKey struct {
	targetKey
	task int32
}

// Constructor builds a tree from a sequence of build events.
//
// Projects, targets and tasks are nested according to the BuildEventContext
// of the events that start them. Messages, warnings and errors are attached
// to the innermost node their context identifies, falling back to the build
// node.
type Constructor struct {
	// Logger, if not nil, is used to log unusual events.
	Logger logging.L

	root     *MutableNode
	projects map[int32]*MutableNode
	targets  map[targetKey]*MutableNode
	tasks    map[taskKey]*MutableNode

	numErrors   int
	numWarnings int
	sealed      bool
}

// NewConstructor returns a Constructor with an empty build node.
func NewConstructor() *Constructor {
	return &Constructor{
		root:     NewNode(KindBuild, "Build"),
		projects: make(map[int32]*MutableNode),
		targets:  make(map[targetKey]*MutableNode),
		tasks:    make(map[taskKey]*MutableNode),
	}
}

// Root returns the build node under construction.
func (c *Constructor) Root() *MutableNode { return c.root }

func (c *Constructor) logger() logging.L { return logging.Must(c.Logger) }

// Add incorporates ev into the tree.
func (c *Constructor) Add(ev binlog.Event) error {
	if c.sealed {
		return errors.New("constructor is finished")
	}

	f := ev.Common()
	switch ev := ev.(type) {
	case *binlog.BuildStarted:
		if !f.Timestamp.IsZero() {
			c.root.SetAttr(AttrStartTime, f.Timestamp.Format(timeFormat))
		}
		if len(ev.Environment) > 0 {
			addProperties(c.root.AddChild(KindFolder, FolderEnvironment), ev.Environment)
		}

	case *binlog.BuildFinished:
		c.root.SetAttr(AttrSucceeded, strconv.FormatBool(ev.Succeeded))
		if !f.Timestamp.IsZero() {
			c.root.SetAttr(AttrEndTime, f.Timestamp.Format(timeFormat))
		}

	case *binlog.ProjectStarted:
		parent := c.root
		if ev.ParentContext != nil {
			if p := c.projects[ev.ParentContext.ProjectContextID]; p != nil {
				parent = p
			}
		}

		n := parent.AddChild(KindProject, ev.ProjectFile)
		setNonEmpty(n, AttrTargetNames, ev.TargetNames)
		setNonEmpty(n, AttrToolsVersion, ev.ToolsVersion)
		if len(ev.GlobalProperties) > 0 {
			addProperties(n.AddChild(KindFolder, FolderGlobalProperties), ev.GlobalProperties)
		}
		if f.Context != nil {
			c.projects[f.Context.ProjectContextID] = n
		}

	case *binlog.ProjectFinished:
		if f.Context != nil {
			if n := c.projects[f.Context.ProjectContextID]; n != nil {
				n.SetAttr(AttrSucceeded, strconv.FormatBool(ev.Succeeded))
				return nil
			}
		}
		c.logger().Debugf("ProjectFinished for unknown project %q.", ev.ProjectFile)

	case *binlog.TargetStarted:
		parent := c.root
		if f.Context != nil {
			if p := c.projects[f.Context.ProjectContextID]; p != nil {
				parent = p
			}
		}

		n := parent.AddChild(KindTarget, ev.TargetName)
		setNonEmpty(n, AttrTargetFile, ev.TargetFile)
		setNonEmpty(n, AttrParentTarget, ev.ParentTarget)
		if f.Context != nil {
			c.targets[targetKeyOf(f.Context)] = n
		}

	case *binlog.TargetFinished:
		if f.Context != nil {
			if n := c.targets[targetKeyOf(f.Context)]; n != nil {
				n.SetAttr(AttrSucceeded, strconv.FormatBool(ev.Succeeded))
				return nil
			}
		}
		c.logger().Debugf("TargetFinished for unknown target %q.", ev.TargetName)

	case *binlog.TaskStarted:
		parent := c.parentFor(f.Context, false)
		n := parent.AddChild(KindTask, ev.TaskName)
		setNonEmpty(n, AttrTaskFile, ev.TaskFile)
		if f.Context != nil {
			c.tasks[taskKeyOf(f.Context)] = n
		}

	case *binlog.TaskFinished:
		if f.Context != nil {
			if n := c.tasks[taskKeyOf(f.Context)]; n != nil {
				n.SetAttr(AttrSucceeded, strconv.FormatBool(ev.Succeeded))
				return nil
			}
		}
		c.logger().Debugf("TaskFinished for unknown task %q.", ev.TaskName)

	case *binlog.TaskCommandLine:
		n := c.parentFor(f.Context, true).AddChild(KindMessage, ev.CommandLine)
		n.SetAttr(AttrCommandLine, "true")

	case *binlog.Message:
		n := c.parentFor(f.Context, true).AddChild(KindMessage, f.Message)
		n.SetAttr(AttrImportance, importanceName(ev.Importance))
		setDiagnostic(n, &ev.Diagnostic)

	case *binlog.CriticalBuildMessage:
		n := c.parentFor(f.Context, true).AddChild(KindMessage, f.Message)
		n.SetAttr(AttrImportance, importanceName(binlog.ImportanceHigh))
		setDiagnostic(n, &ev.Diagnostic)

	case *binlog.Warning:
		c.numWarnings++
		setDiagnostic(c.parentFor(f.Context, true).AddChild(KindWarning, f.Message), &ev.Diagnostic)

	case *binlog.Error:
		c.numErrors++
		setDiagnostic(c.parentFor(f.Context, true).AddChild(KindError, f.Message), &ev.Diagnostic)

	case *binlog.CustomEvent:
		n := c.parentFor(f.Context, true).AddChild(KindNote, f.Message)
		setNonEmpty(n, AttrType, ev.TypeName)
		n.Payload = ev.Data

	case *binlog.EmbeddedArchive:
		a := ev.Archive(c.logger())
		if a.Len() == 0 {
			return nil
		}

		folder := c.root.FindChild(KindFolder, FolderFiles)
		if folder == nil {
			folder = c.root.AddChild(KindFolder, FolderFiles)
		}
		for _, path := range a.Paths() {
			content, err := a.Lookup(path)
			if err != nil {
				c.logger().Warnf("Skipping unreadable archived file %q: %s", path, err)
				continue
			}
			folder.AddChild(KindNote, path).Payload = content
		}

	default:
		c.logger().Debugf("Ignoring %s event.", ev.Kind())
	}
	return nil
}

// parentFor returns the innermost node identified by ctx. Tasks are only
// considered if includeTasks is true.
func (c *Constructor) parentFor(ctx *binlog.BuildEventContext, includeTasks bool) *MutableNode {
	if ctx == nil {
		return c.root
	}
	if includeTasks {
		if n := c.tasks[taskKeyOf(ctx)]; n != nil {
			return n
		}
	}
	if n := c.targets[targetKeyOf(ctx)]; n != nil {
		return n
	}
	if n := c.projects[ctx.ProjectContextID]; n != nil {
		return n
	}
	return c.root
}

// MarkIncomplete records that the event sequence ended prematurely, adding an
// Error node describing err to the build node.
func (c *Constructor) MarkIncomplete(err error) {
	n := c.root.AddChild(KindError, IncompleteMessage)
	if err != nil {
		n.SetAttr(AttrValue, err.Error())
	}
	c.numErrors++
}

// Finish seals the tree. The Constructor may not be used afterwards.
func (c *Constructor) Finish() *Tree {
	c.sealed = true
	c.root.SetAttr(AttrErrors, strconv.Itoa(c.numErrors))
	c.root.SetAttr(AttrWarnings, strconv.Itoa(c.numWarnings))
	return Seal(c.root)
}

// ConstructOptions configures ConstructFile.
type ConstructOptions struct {
	// ReaderOptions are the options used to open the binary log.
	ReaderOptions binlog.ReaderOptions

	// ToleratePartial returns the tree built so far, with an Error node
	// noting that it is incomplete, when the log ends prematurely.
	ToleratePartial bool

	// Progress, if not nil, receives the fraction of the file read so far. It
	// is called from a separate goroutine.
	Progress func(float64)

	// Logger, if not nil, is used to log construction.
	Logger logging.L
}

// ConstructFile replays the binary log at path and builds its tree.
func ConstructFile(c context.Context, path string, opts *ConstructOptions) (*Tree, error) {
	if opts == nil {
		opts = &ConstructOptions{}
	}

	r, err := opts.ReaderOptions.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
	}()

	con := NewConstructor()
	con.Logger = opts.Logger

	p := replay.Player{
		Handler:  con.Add,
		Progress: opts.Progress,
		Logger:   opts.Logger,
	}
	if err := p.Play(c, r); err != nil {
		if !(opts.ToleratePartial && formaterr.Is(formaterr.TruncatedData, err)) {
			return nil, err
		}

		logging.Must(opts.Logger).Warnf("Binary log %q is incomplete: %s", path, err)
		con.MarkIncomplete(err)
	}
	return con.Finish(), nil
}

const timeFormat = "2006-01-02T15:04:05.0000000Z07:00"

func targetKeyOf(ctx *binlog.BuildEventContext) targetKey {
	return targetKey{ctx.ProjectContextID, ctx.TargetID}
}

func taskKeyOf(ctx *binlog.BuildEventContext) taskKey {
	return taskKey{targetKeyOf(ctx), ctx.TaskID}
}

func addProperties(n *MutableNode, props []binlog.Property) {
	for _, p := range props {
		n.AddChild(KindProperty, p.Name).SetAttr(AttrValue, p.Value)
	}
}

func setNonEmpty(n *MutableNode, key, value string) {
	if value != "" {
		n.SetAttr(key, value)
	}
}

func setDiagnostic(n *MutableNode, d *binlog.Diagnostic) {
	setNonEmpty(n, AttrCode, d.Code)
	setNonEmpty(n, AttrFile, d.File)
	if d.LineNumber != 0 {
		n.SetAttr(AttrLine, strconv.Itoa(int(d.LineNumber)))
	}
	if d.ColumnNumber != 0 {
		n.SetAttr(AttrColumn, strconv.Itoa(int(d.ColumnNumber)))
	}
}

func importanceName(imp binlog.Importance) string {
	switch imp {
	case binlog.ImportanceHigh:
		return "High"
	case binlog.ImportanceNormal:
		return "Normal"
	case binlog.ImportanceLow:
		return "Low"
	default:
		return strconv.Itoa(int(imp))
	}
}
