// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package snapshot

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/danjacques/gobinlog/stringtable"
	"github.com/danjacques/gobinlog/support/formaterr"
	"github.com/danjacques/gobinlog/tree"
	"github.com/danjacques/gobinlog/wire"

	"github.com/klauspost/compress/gzip"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// stringCount decodes the string table at the head of an encoded snapshot.
func stringCount(data []byte) int {
	gr, err := gzip.NewReader(bytes.NewReader(data[headerSize:]))
	Expect(err).ToNot(HaveOccurred())

	table, err := stringtable.Decode(wire.NewDecoder(gr))
	Expect(err).ToNot(HaveOccurred())
	return table.Len()
}

func encode(t *tree.Tree) []byte {
	var buf bytes.Buffer
	Expect(Encode(&buf, t)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Snapshot", func() {
	var sample *tree.Tree

	BeforeEach(func() {
		root := tree.NewNode(tree.KindBuild, "Root")
		root.SetAttr("Succeeded", "true")

		child1 := root.AddChild(tree.KindProject, "Child1")
		child1.Payload = []byte{0x01, 0x02}
		child1.AddChild(tree.KindMessage, "")

		child2 := root.AddChild(tree.KindProject, "Child2")
		child2.SetAttr("File", "")

		sample = tree.Seal(root)
	})

	It("writes the snapshot header", func() {
		Expect(encode(sample)[:headerSize]).To(Equal([]byte{1, 2, 48}))
	})

	It("round-trips a tree", func() {
		t, err := Decode(bytes.NewReader(encode(sample)))
		Expect(err).ToNot(HaveOccurred())

		Expect(t.Len()).To(Equal(sample.Len()))
		root := t.Root()
		Expect(t.Name(root)).To(Equal("Root"))
		v, ok := t.Attr(root, "Succeeded")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("true"))

		children := t.Children(root)
		Expect(children).To(HaveLen(2))
		Expect(t.Name(children[0])).To(Equal("Child1"))
		Expect(t.Kind(children[0])).To(Equal(tree.KindProject))
		Expect(t.Payload(children[0])).To(Equal([]byte{0x01, 0x02}))
		Expect(t.Children(children[0])).To(HaveLen(1))
		Expect(t.Name(children[1])).To(Equal("Child2"))

		v, ok = t.Attr(children[1], "File")
		Expect(ok).To(BeTrue())
		Expect(v).To(BeEmpty())
	})

	It("interns nothing for a lone unnamed node", func() {
		t := tree.Seal(tree.NewNode(tree.KindFolder, ""))
		Expect(stringCount(encode(t))).To(Equal(0))
	})

	It("interns exactly one string for a lone named node", func() {
		t := tree.Seal(tree.NewNode(tree.KindFolder, "Files"))
		Expect(stringCount(encode(t))).To(Equal(1))
	})

	It("deduplicates repeated names and attributes", func() {
		root := tree.NewNode(tree.KindFolder, "same")
		root.AddChild(tree.KindFolder, "same").SetAttr("same", "same")
		Expect(stringCount(encode(tree.Seal(root)))).To(Equal(1))
	})

	It("refuses attributes with empty keys", func() {
		root := tree.NewNode(tree.KindFolder, "x")
		root.Attrs = append(root.Attrs, tree.Attr{Key: "", Value: "v"})
		Expect(Encode(ioutil.Discard, tree.Seal(root))).ToNot(Succeed())
	})

	It("rejects a bad header", func() {
		data := encode(sample)
		data[2] = 47

		_, err := Decode(bytes.NewReader(data))
		Expect(formaterr.Is(formaterr.InvalidFormat, err)).To(BeTrue())
	})

	It("rejects a short file", func() {
		_, err := Decode(bytes.NewReader([]byte{1}))
		Expect(formaterr.Is(formaterr.InvalidFormat, err)).To(BeTrue())
	})

	It("rejects a newer major version", func() {
		data := encode(sample)
		data[0] = MajorVersion + 1

		_, err := Decode(bytes.NewReader(data))
		Expect(formaterr.Is(formaterr.UnsupportedVersion, err)).To(BeTrue())
	})

	It("rejects data after the root node", func() {
		var region bytes.Buffer
		gw := gzip.NewWriter(&region)
		enc := wire.NewEncoder(gw)
		Expect(enc.WriteVarInt(0)).To(Succeed())                      // No strings.
		Expect(enc.WriteVarInt(int32(tree.KindFolder))).To(Succeed()) // Kind.
		Expect(enc.WriteVarInt(0)).To(Succeed())                      // Unnamed.
		Expect(enc.WriteVarInt(0)).To(Succeed())                      // No attributes.
		Expect(enc.WriteVarInt(0)).To(Succeed())                      // No children.
		Expect(enc.WriteBytes(nil)).To(Succeed())                     // No payload.
		Expect(enc.WriteVarInt(7)).To(Succeed())                      // Trailing.
		Expect(gw.Close()).To(Succeed())

		data := append([]byte{1, 2, 48}, region.Bytes()...)
		_, err := Decode(bytes.NewReader(data))
		Expect(formaterr.Is(formaterr.InvalidFormat, err)).To(BeTrue())
	})

	It("rejects undefined string handles", func() {
		var region bytes.Buffer
		gw := gzip.NewWriter(&region)
		enc := wire.NewEncoder(gw)
		Expect(enc.WriteVarInt(0)).To(Succeed())
		Expect(enc.WriteVarInt(int32(tree.KindFolder))).To(Succeed())
		Expect(enc.WriteVarInt(3)).To(Succeed())
		Expect(gw.Close()).To(Succeed())

		data := append([]byte{1, 2, 48}, region.Bytes()...)
		_, err := Decode(bytes.NewReader(data))
		Expect(formaterr.Is(formaterr.InvalidFormat, err)).To(BeTrue())
	})

	It("reports truncated node streams", func() {
		data := encode(sample)

		gr, err := gzip.NewReader(bytes.NewReader(data[headerSize:]))
		Expect(err).ToNot(HaveOccurred())
		region, err := ioutil.ReadAll(gr)
		Expect(err).ToNot(HaveOccurred())

		var cut bytes.Buffer
		gw := gzip.NewWriter(&cut)
		_, err = gw.Write(region[:len(region)-2])
		Expect(err).ToNot(HaveOccurred())
		Expect(gw.Close()).To(Succeed())

		_, err = Decode(bytes.NewReader(append([]byte{1, 2, 48}, cut.Bytes()...)))
		Expect(formaterr.Is(formaterr.TruncatedData, err)).To(BeTrue())
	})

	Context("with files", func() {
		var tdir string

		BeforeEach(func() {
			var err error
			tdir, err = ioutil.TempDir("", "snapshot_test")
			Expect(err).ToNot(HaveOccurred())
		})

		AfterEach(func() {
			Expect(os.RemoveAll(tdir)).To(Succeed())
		})

		It("writes and reads a snapshot file without leaving staging files", func() {
			path := filepath.Join(tdir, "build.snapshot")
			Expect(Write(path, sample)).To(Succeed())

			entries, err := ioutil.ReadDir(tdir)
			Expect(err).ToNot(HaveOccurred())
			Expect(entries).To(HaveLen(1))

			t, err := Read(path)
			Expect(err).ToNot(HaveOccurred())
			Expect(t.Find(tree.KindProject, "Child2")).ToNot(Equal(tree.NoNode))
		})
	})
})

func TestSnapshot(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Testing snapshot")
}
