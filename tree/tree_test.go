// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package tree

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danjacques/gobinlog/binlog"
	"github.com/danjacques/gobinlog/binlog/archive"
	"github.com/danjacques/gobinlog/support/formaterr"
	"github.com/danjacques/gobinlog/wire"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func ctxFor(project, target, task int32) *binlog.BuildEventContext {
	return &binlog.BuildEventContext{
		NodeID:            1,
		ProjectContextID:  project,
		TargetID:          target,
		TaskID:            task,
		SubmissionID:      binlog.InvalidID,
		ProjectInstanceID: binlog.InvalidID,
	}
}

// buildEvents returns a small, complete build: one project with one target
// running one task that logs a message and a warning.
func buildEvents() []binlog.Event {
	ts := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	task := ctxFor(1, 2, 3)

	return []binlog.Event{
		&binlog.BuildStarted{
			Fields:      binlog.Fields{Message: "Build started.", Timestamp: ts, TimestampKind: wire.TimestampUTC},
			Environment: []binlog.Property{{Name: "PATH", Value: "/usr/bin"}},
		},
		&binlog.ProjectStarted{
			Fields:           binlog.Fields{Context: ctxFor(1, binlog.InvalidID, binlog.InvalidID)},
			ProjectFile:      "/src/app.proj",
			TargetNames:      "Build",
			GlobalProperties: []binlog.Property{{Name: "Configuration", Value: "Release"}},
		},
		&binlog.TargetStarted{
			Fields:     binlog.Fields{Context: ctxFor(1, 2, binlog.InvalidID)},
			TargetName: "Compile",
		},
		&binlog.TaskStarted{
			Fields:   binlog.Fields{Context: task},
			TaskName: "Exec",
		},
		&binlog.Message{
			Fields:     binlog.Fields{Message: "compiling main.c", Context: task},
			Importance: binlog.ImportanceLow,
		},
		&binlog.Warning{
			Fields:     binlog.Fields{Message: "unused variable", Context: task},
			Diagnostic: binlog.Diagnostic{Code: "W100", File: "main.c", LineNumber: 12},
		},
		&binlog.TaskFinished{Fields: binlog.Fields{Context: task}, TaskName: "Exec", Succeeded: true},
		&binlog.TargetFinished{Fields: binlog.Fields{Context: ctxFor(1, 2, binlog.InvalidID)}, TargetName: "Compile", Succeeded: true},
		&binlog.ProjectFinished{Fields: binlog.Fields{Context: ctxFor(1, binlog.InvalidID, binlog.InvalidID)}, Succeeded: true},
		&binlog.BuildFinished{Fields: binlog.Fields{Timestamp: ts.Add(time.Minute), TimestampKind: wire.TimestampUTC}, Succeeded: true},
	}
}

func attr(t *Tree, id NodeID, key string) string {
	v, ok := t.Attr(id, key)
	Expect(ok).To(BeTrue(), "attribute %q is missing", key)
	return v
}

var _ = Describe("Tree", func() {
	var t *Tree

	BeforeEach(func() {
		root := NewNode(KindBuild, "root")
		a := root.AddChild(KindProject, "a")
		a.AddChild(KindTarget, "a1")
		a.AddChild(KindTarget, "a2")
		root.AddChild(KindProject, "b").AddChild(KindTask, "b1")
		t = Seal(root)
	})

	It("assigns IDs in pre-order", func() {
		var names []string
		for id := NodeID(0); int(id) < t.Len(); id++ {
			names = append(names, t.Name(id))
		}
		Expect(names).To(Equal([]string{"root", "a", "a1", "a2", "b", "b1"}))
	})

	It("links parents and children", func() {
		Expect(t.Parent(t.Root())).To(Equal(NoNode))
		Expect(t.Children(t.Root())).To(Equal([]NodeID{1, 4}))
		Expect(t.Children(1)).To(Equal([]NodeID{2, 3}))
		Expect(t.Parent(5)).To(Equal(NodeID(4)))
		Expect(t.Children(5)).To(BeEmpty())
	})

	It("walks with depths and can prune subtrees", func() {
		var visited []string
		var depths []int
		t.Walk(func(id NodeID, depth int) bool {
			visited = append(visited, t.Name(id))
			depths = append(depths, depth)
			return t.Name(id) != "a"
		})
		Expect(visited).To(Equal([]string{"root", "a", "b", "b1"}))
		Expect(depths).To(Equal([]int{0, 1, 1, 2}))
	})

	It("finds and counts nodes", func() {
		Expect(t.Find(KindTarget, "a2")).To(Equal(NodeID(3)))
		Expect(t.Find(KindTarget, "b1")).To(Equal(NoNode))
		Expect(t.Count(KindTarget)).To(Equal(2))
		Expect(t.Valid(5)).To(BeTrue())
		Expect(t.Valid(6)).To(BeFalse())
	})

	It("seals a nil root into an empty tree", func() {
		empty := Seal(nil)
		Expect(empty.Len()).To(Equal(0))
		Expect(empty.Root()).To(Equal(NoNode))
		empty.Walk(func(NodeID, int) bool {
			Fail("visited a node of an empty tree")
			return true
		})
	})

	It("does not share attributes or payloads with the builder", func() {
		root := NewNode(KindMessage, "msg")
		root.Payload = []byte("original")
		root.SetAttr("Importance", "High")
		sealed := Seal(root)

		root.Payload[0] = 'X'
		root.SetAttr("Importance", "Low")

		Expect(sealed.Payload(sealed.Root())).To(Equal([]byte("original")))
		v, ok := sealed.Attr(sealed.Root(), "Importance")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("High"))
	})

	It("refuses to reparent a node", func() {
		child := NewNode(KindFolder, "child")
		NewNode(KindFolder, "p1").Add(child)
		Expect(func() { NewNode(KindFolder, "p2").Add(child) }).To(Panic())
	})
})

var _ = Describe("Constructor", func() {
	It("nests events by their build event context", func() {
		con := NewConstructor()
		for _, ev := range buildEvents() {
			Expect(con.Add(ev)).To(Succeed())
		}
		t := con.Finish()

		root := t.Root()
		Expect(attr(t, root, AttrSucceeded)).To(Equal("true"))
		Expect(attr(t, root, AttrStartTime)).To(Equal("2024-05-01T12:00:00.0000000Z"))
		Expect(attr(t, root, AttrWarnings)).To(Equal("1"))
		Expect(attr(t, root, AttrErrors)).To(Equal("0"))

		env := t.Find(KindFolder, FolderEnvironment)
		Expect(t.Parent(env)).To(Equal(root))
		Expect(attr(t, t.Children(env)[0], AttrValue)).To(Equal("/usr/bin"))

		project := t.Find(KindProject, "/src/app.proj")
		Expect(t.Parent(project)).To(Equal(root))
		Expect(attr(t, project, AttrSucceeded)).To(Equal("true"))
		Expect(t.Parent(t.Find(KindFolder, FolderGlobalProperties))).To(Equal(project))

		target := t.Find(KindTarget, "Compile")
		Expect(t.Parent(target)).To(Equal(project))

		task := t.Find(KindTask, "Exec")
		Expect(t.Parent(task)).To(Equal(target))
		Expect(attr(t, task, AttrSucceeded)).To(Equal("true"))

		msg := t.Find(KindMessage, "compiling main.c")
		Expect(t.Parent(msg)).To(Equal(task))
		Expect(attr(t, msg, AttrImportance)).To(Equal("Low"))

		warn := t.Find(KindWarning, "unused variable")
		Expect(t.Parent(warn)).To(Equal(task))
		Expect(attr(t, warn, AttrCode)).To(Equal("W100"))
		Expect(attr(t, warn, AttrLine)).To(Equal("12"))
	})

	It("attaches events with unknown contexts to the build node", func() {
		con := NewConstructor()
		Expect(con.Add(&binlog.Error{
			Fields: binlog.Fields{Message: "orphan", Context: ctxFor(99, 1, 1)},
		})).To(Succeed())
		t := con.Finish()

		Expect(t.Parent(t.Find(KindError, "orphan"))).To(Equal(t.Root()))
		Expect(attr(t, t.Root(), AttrErrors)).To(Equal("1"))
	})

	It("lists embedded archive files", func() {
		b := archive.NewBuilder()
		Expect(b.Add("C:\\src\\app.proj", []byte("<Project/>"))).To(Succeed())
		data, err := b.Bytes()
		Expect(err).ToNot(HaveOccurred())

		con := NewConstructor()
		Expect(con.Add(&binlog.EmbeddedArchive{Data: data})).To(Succeed())
		t := con.Finish()

		files := t.Find(KindFolder, FolderFiles)
		Expect(files).ToNot(Equal(NoNode))
		children := t.Children(files)
		Expect(children).To(HaveLen(1))
		Expect(t.Name(children[0])).To(Equal("C/src/app.proj"))
		Expect(t.Payload(children[0])).To(Equal([]byte("<Project/>")))
	})

	It("refuses events once finished", func() {
		con := NewConstructor()
		con.Finish()
		Expect(con.Add(&binlog.BuildStarted{})).ToNot(Succeed())
	})
})

var _ = Describe("ConstructFile", func() {
	var (
		tdir string
		full []byte
	)

	BeforeEach(func() {
		var err error
		tdir, err = ioutil.TempDir("", "tree_test")
		Expect(err).ToNot(HaveOccurred())

		path := filepath.Join(tdir, "full.binlog")
		w, err := (&binlog.WriterOptions{}).Create(path)
		Expect(err).ToNot(HaveOccurred())
		for _, ev := range buildEvents() {
			Expect(w.Write(ev)).To(Succeed())
		}
		Expect(w.Close()).To(Succeed())

		full, err = ioutil.ReadFile(path)
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tdir)).To(Succeed())
	})

	It("builds a tree from a complete log", func() {
		t, err := ConstructFile(context.Background(), filepath.Join(tdir, "full.binlog"), nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(t.Find(KindTask, "Exec")).ToNot(Equal(NoNode))
		Expect(t.Find(KindError, IncompleteMessage)).To(Equal(NoNode))
	})

	Context("with a truncated log", func() {
		var path string

		BeforeEach(func() {
			path = filepath.Join(tdir, "truncated.binlog")
			Expect(ioutil.WriteFile(path, full[:len(full)*2/3], 0644)).To(Succeed())
		})

		It("fails by default", func() {
			_, err := ConstructFile(context.Background(), path, nil)
			Expect(formaterr.Is(formaterr.TruncatedData, err)).To(BeTrue())
		})

		It("returns a partial tree when tolerating partial logs", func() {
			t, err := ConstructFile(context.Background(), path, &ConstructOptions{ToleratePartial: true})
			Expect(err).ToNot(HaveOccurred())

			incomplete := t.Find(KindError, IncompleteMessage)
			Expect(incomplete).ToNot(Equal(NoNode))
			Expect(t.Parent(incomplete)).To(Equal(t.Root()))
			Expect(t.Find(KindProject, "/src/app.proj")).ToNot(Equal(NoNode))
		})
	})
})

func TestTree(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Testing tree")
}
