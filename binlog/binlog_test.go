// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package binlog

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danjacques/gobinlog/binlog/archive"
	"github.com/danjacques/gobinlog/support/formaterr"
	"github.com/danjacques/gobinlog/support/logging"
	"github.com/danjacques/gobinlog/wire"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

// sampleEvents returns one event of every kind, with most fields populated.
func sampleEvents() []Event {
	ctx := &BuildEventContext{
		NodeID:            1,
		ProjectContextID:  2,
		TargetID:          3,
		TaskID:            4,
		SubmissionID:      5,
		ProjectInstanceID: InvalidID,
	}
	ts := time.Date(2024, time.January, 2, 3, 4, 5, 600, time.UTC)

	return []Event{
		&BuildStarted{
			Fields:      Fields{Message: "Build started.", Timestamp: ts, TimestampKind: wire.TimestampUTC},
			Environment: []Property{{"PATH", "/usr/bin"}, {"HOME", "/home/user"}},
		},
		&ProjectStarted{
			Fields:           Fields{Message: "Project started.", Context: ctx, ThreadID: 7},
			ProjectID:        42,
			ProjectFile:      "/src/app.proj",
			TargetNames:      "Build",
			ToolsVersion:     "Current",
			ParentContext:    &BuildEventContext{NodeID: 1, ProjectContextID: InvalidID},
			GlobalProperties: []Property{{"Configuration", "Release"}},
		},
		&TargetStarted{
			Fields:       Fields{Context: ctx, SenderName: "MSBuild"},
			TargetName:   "Build",
			ProjectFile:  "/src/app.proj",
			TargetFile:   "/src/common.targets",
			ParentTarget: "Rebuild",
			BuildReason:  2,
		},
		&TaskStarted{
			Fields:      Fields{Context: ctx},
			TaskName:    "Exec",
			ProjectFile: "/src/app.proj",
			TaskFile:    "/src/common.targets",
		},
		&TaskCommandLine{
			Fields:      Fields{Message: "cc -o app main.c", Context: ctx},
			Importance:  ImportanceNormal,
			CommandLine: "cc -o app main.c",
			TaskName:    "Exec",
		},
		&Message{
			Fields:     Fields{Message: "compiling", HelpKeyword: "MSB1234"},
			Importance: ImportanceLow,
			Diagnostic: Diagnostic{File: "main.c", LineNumber: 10},
		},
		&Warning{
			Fields: Fields{Message: "unused variable"},
			Diagnostic: Diagnostic{
				Subcategory:     "cc",
				Code:            "W100",
				File:            "main.c",
				ProjectFile:     "/src/app.proj",
				LineNumber:      12,
				ColumnNumber:    4,
				EndLineNumber:   12,
				EndColumnNumber: 9,
			},
		},
		&Error{
			Fields:     Fields{Message: "undefined reference"},
			Diagnostic: Diagnostic{Code: "E1", File: "main.c", LineNumber: -1},
		},
		&CriticalBuildMessage{
			Fields:     Fields{Message: "critical"},
			Diagnostic: Diagnostic{Code: "C1"},
		},
		&CustomEvent{
			Fields:   Fields{Message: "custom"},
			TypeName: "Example.CustomEvent",
			Data:     []byte{0x01, 0x02, 0x03},
		},
		&TaskFinished{
			Fields:      Fields{Context: ctx},
			TaskName:    "Exec",
			ProjectFile: "/src/app.proj",
			TaskFile:    "/src/common.targets",
			Succeeded:   true,
		},
		&TargetFinished{
			Fields:      Fields{Context: ctx},
			TargetName:  "Build",
			ProjectFile: "/src/app.proj",
			TargetFile:  "/src/common.targets",
			Succeeded:   false,
		},
		&ProjectFinished{
			Fields:      Fields{Context: ctx},
			ProjectFile: "/src/app.proj",
			Succeeded:   true,
		},
		&BuildFinished{
			Fields:    Fields{Message: "Build succeeded.", Timestamp: ts, TimestampKind: wire.TimestampUTC},
			Succeeded: true,
		},
	}
}

// withoutPresence clears the decoded field flags, so decoded events can be
// compared against written ones.
func withoutPresence(events []Event) []Event {
	for _, ev := range events {
		ev.Common().Present = 0
	}
	return events
}

func encodeLog(opts WriterOptions, events ...Event) []byte {
	var buf bytes.Buffer
	w, err := opts.NewWriter(&buf)
	Expect(err).ToNot(HaveOccurred())
	for _, ev := range events {
		Expect(w.Write(ev)).To(Succeed())
	}
	Expect(w.Close()).To(Succeed())
	return buf.Bytes()
}

func readAll(data []byte, opts ReaderOptions) ([]Event, error) {
	r, err := opts.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var events []Event
	for {
		ev, err := r.Next()
		switch err {
		case nil:
			events = append(events, ev)
		case io.EOF:
			return events, nil
		default:
			return events, err
		}
	}
}

// rawLog assembles a log by hand from an uncompressed header and records.
func rawLog(hdr Header, records ...[]byte) []byte {
	var buf bytes.Buffer
	Expect(hdr.write(&buf)).To(Succeed())
	for _, rec := range records {
		buf.Write(rec)
	}
	return buf.Bytes()
}

func rawRecord(kind RecordKind, payload ...byte) []byte {
	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf)
	Expect(enc.WriteVarInt(int32(kind))).To(Succeed())
	Expect(enc.WriteVarInt(int32(len(payload)))).To(Succeed())
	buf.Write(payload)
	return buf.Bytes()
}

func plainHeader(formatVersion, minReaderVersion uint16) Header {
	return Header{
		Signature:        Signature,
		FormatVersion:    formatVersion,
		MinReaderVersion: minReaderVersion,
		Compression:      CompressionNone,
	}
}

// Package-level fixtures below call Expect, so Gomega needs a fail handler
// before TestBinlog registers one.
var _ = func() bool { RegisterFailHandler(Fail); return true }()

var endOfFile = rawRecord(KindEndOfFile)

var _ = Describe("Writer and Reader", func() {
	DescribeTable("round-trip every event kind",
		func(comp Compression, interned bool) {
			opts := WriterOptions{
				Compression:      comp,
				CompressionLevel: -1,
				DisableInterning: !interned,
			}
			data := encodeLog(opts, sampleEvents()...)

			events, err := readAll(data, ReaderOptions{})
			Expect(err).ToNot(HaveOccurred())
			Expect(withoutPresence(events)).To(Equal(sampleEvents()))
		},
		Entry("uncompressed, interned", CompressionNone, true),
		Entry("uncompressed, inline strings", CompressionNone, false),
		Entry("gzip", CompressionGzip, true),
		Entry("snappy", CompressionSnappy, true),
		Entry("zstd", CompressionZstd, true),
		Entry("lz4", CompressionLZ4, true),
	)

	DescribeTable("buffers decompressed bodies",
		func(comp Compression) {
			data := encodeLog(WriterOptions{Compression: comp, CompressionLevel: -1}, sampleEvents()...)

			r, err := (&ReaderOptions{}).NewReader(bytes.NewReader(data))
			Expect(err).ToNot(HaveOccurred())
			defer r.Close()

			Expect(r.raw.Reader).To(BeIdenticalTo(r.raw.body))
			_, err = r.Next()
			Expect(err).ToNot(HaveOccurred())
		},
		Entry("gzip", CompressionGzip),
		Entry("snappy", CompressionSnappy),
		Entry("zstd", CompressionZstd),
		Entry("lz4", CompressionLZ4),
	)

	It("writes a header describing the file", func() {
		data := encodeLog(DefaultWriterOptions())

		r, err := (&ReaderOptions{}).NewReader(bytes.NewReader(data))
		Expect(err).ToNot(HaveOccurred())
		defer r.Close()

		hdr := r.Header()
		Expect(hdr.Signature).To(Equal(Signature))
		Expect(hdr.FormatVersion).To(Equal(FormatVersion))
		Expect(hdr.Compression).To(Equal(CompressionGzip))
		Expect(hdr.Interned()).To(BeTrue())

		_, err = r.Next()
		Expect(err).To(Equal(io.EOF))
		_, err = r.Next()
		Expect(err).To(Equal(io.EOF))
	})

	It("defines each interned string once, before its first use", func() {
		data := encodeLog(WriterOptions{Compression: CompressionNone},
			&Message{Fields: Fields{Message: "line one\r\nline two"}},
			&Message{Fields: Fields{Message: "line one\nline two"}},
			&Warning{Fields: Fields{Message: "line one\rline two"}},
		)

		r, err := (&ReaderOptions{}).NewReader(bytes.NewReader(data))
		Expect(err).ToNot(HaveOccurred())
		defer r.Close()

		for i := 0; i < 3; i++ {
			ev, err := r.Next()
			Expect(err).ToNot(HaveOccurred())
			Expect(ev.Common().Message).To(Equal("line one\nline two"))
		}
		Expect(r.Strings().Len()).To(Equal(1))
		Expect(r.NumRecords()).To(Equal(int64(4)))
	})

	It("preserves decoded field presence on rewrite", func() {
		data := encodeLog(WriterOptions{},
			&Message{Fields: Fields{Message: "hello", SenderName: "sender"}})

		events, err := readAll(data, ReaderOptions{})
		Expect(err).ToNot(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Common().Present).To(Equal(FlagMessage | FlagSenderName))

		events[0].Common().SenderName = ""
		rewritten, err := readAll(encodeLog(WriterOptions{}, events...), ReaderOptions{})
		Expect(err).ToNot(HaveOccurred())
		Expect(rewritten[0].Common().Present).To(Equal(FlagMessage | FlagSenderName))
		Expect(rewritten[0].Common().SenderName).To(BeEmpty())
	})

	It("returns or skips embedded archives", func() {
		b := archive.NewBuilder()
		Expect(b.Add("/src/app.proj", []byte("<Project/>"))).To(Succeed())
		zipData, err := b.Bytes()
		Expect(err).ToNot(HaveOccurred())

		var buf bytes.Buffer
		w, err := (&WriterOptions{Compression: CompressionGzip, CompressionLevel: -1}).NewWriter(&buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(w.Write(&BuildStarted{})).To(Succeed())
		Expect(w.WriteEmbeddedArchive(zipData)).To(Succeed())
		Expect(w.Write(&BuildFinished{Succeeded: true})).To(Succeed())
		Expect(w.Close()).To(Succeed())

		events, err := readAll(buf.Bytes(), ReaderOptions{})
		Expect(err).ToNot(HaveOccurred())
		Expect(events).To(HaveLen(3))
		Expect(events[1]).To(BeAssignableToTypeOf(&EmbeddedArchive{}))

		a := events[1].(*EmbeddedArchive).Archive(logging.Nop)
		content, err := a.Lookup(`C:\src\app.proj`)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(content)).To(Equal("<Project/>"))

		events, err = readAll(buf.Bytes(), ReaderOptions{SkipEmbeddedArchives: true})
		Expect(err).ToNot(HaveOccurred())
		Expect(events).To(HaveLen(2))
		Expect(events[1]).To(BeAssignableToTypeOf(&BuildFinished{}))
	})

	It("refuses writes after Close", func() {
		w, err := (&WriterOptions{}).NewWriter(ioutil.Discard)
		Expect(err).ToNot(HaveOccurred())
		Expect(w.Close()).To(Succeed())
		Expect(w.Write(&BuildStarted{})).ToNot(Succeed())
		Expect(w.Close()).To(Succeed())
	})
})

var _ = Describe("Reader format handling", func() {
	buildFinished := rawRecord(KindBuildFinished, 0x00, 0x01)

	It("reads a hand-assembled log", func() {
		events, err := readAll(rawLog(plainHeader(3, 3), buildFinished, endOfFile), ReaderOptions{})
		Expect(err).ToNot(HaveOccurred())
		Expect(withoutPresence(events)).To(Equal([]Event{&BuildFinished{Succeeded: true}}))
	})

	It("rejects a bad signature", func() {
		hdr := plainHeader(3, 3)
		hdr.Signature = [4]byte{'N', 'O', 'P', 'E'}

		_, err := readAll(rawLog(hdr, endOfFile), ReaderOptions{})
		Expect(formaterr.Is(formaterr.InvalidFormat, err)).To(BeTrue())
	})

	It("rejects a file too short to hold a header", func() {
		_, err := readAll([]byte("BLO"), ReaderOptions{})
		Expect(formaterr.Is(formaterr.InvalidFormat, err)).To(BeTrue())
	})

	It("rejects files requiring a newer reader", func() {
		data := rawLog(plainHeader(5, 4), buildFinished, endOfFile)

		_, err := readAll(data, ReaderOptions{})
		Expect(formaterr.Is(formaterr.UnsupportedVersion, err)).To(BeTrue())

		By("reading them in forward-compatibility mode")
		events, err := readAll(data, ReaderOptions{AllowForwardCompatibility: true})
		Expect(err).ToNot(HaveOccurred())
		Expect(events).To(HaveLen(1))
	})

	It("rejects unknown record kinds in files it fully supports", func() {
		data := rawLog(plainHeader(3, 3), rawRecord(RecordKind(99), 0xAA, 0xBB), buildFinished, endOfFile)

		_, err := readAll(data, ReaderOptions{})
		Expect(formaterr.Is(formaterr.InvalidFormat, err)).To(BeTrue())
	})

	It("skips unknown record kinds in newer files", func() {
		data := rawLog(plainHeader(4, 3), rawRecord(RecordKind(99), 0xAA, 0xBB), buildFinished, endOfFile)

		var skipped []*RecoverableReadError
		events, err := readAll(data, ReaderOptions{
			OnRecoverableError: func(rre *RecoverableReadError) { skipped = append(skipped, rre) },
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(withoutPresence(events)).To(Equal([]Event{&BuildFinished{Succeeded: true}}))
		Expect(skipped).To(HaveLen(1))
		Expect(skipped[0].Kind).To(Equal(RecordKind(99)))
		Expect(skipped[0].Skipped).To(Equal(int64(2)))
	})

	It("skips unknown trailing fields only when tolerant", func() {
		padded := rawRecord(KindBuildFinished, 0x00, 0x01, 0xCC, 0xDD)

		_, err := readAll(rawLog(plainHeader(3, 3), padded, endOfFile), ReaderOptions{})
		Expect(formaterr.Is(formaterr.InvalidFormat, err)).To(BeTrue())

		var skipped int
		events, err := readAll(rawLog(plainHeader(3, 3), padded, endOfFile), ReaderOptions{
			AllowForwardCompatibility: true,
			OnRecoverableError:        func(*RecoverableReadError) { skipped++ },
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(skipped).To(Equal(1))
	})

	It("rejects kinds newer than the file's format version", func() {
		critical := rawRecord(KindCriticalBuildMessage, 0x00)

		_, err := readAll(rawLog(plainHeader(1, 1), critical, endOfFile), ReaderOptions{})
		Expect(formaterr.Is(formaterr.InvalidFormat, err)).To(BeTrue())

		events, err := readAll(rawLog(plainHeader(2, 1), critical, endOfFile), ReaderOptions{})
		Expect(err).ToNot(HaveOccurred())
		Expect(events).To(HaveLen(1))
	})

	It("fails with OverRead when a record is shorter than its fields", func() {
		// A Message whose payload declares a 5-byte message but ends after 2.
		short := rawRecord(KindMessage, 0x01, 0x05, 'h', 'i')

		_, err := readAll(rawLog(plainHeader(3, 3), short, endOfFile), ReaderOptions{})
		Expect(formaterr.Is(formaterr.OverRead, err)).To(BeTrue())

		var fe *formaterr.Error
		Expect(errors.As(err, &fe)).To(BeTrue())
		Expect(fe.Record).To(Equal("Message"))
		Expect(fe.Offset).To(BeNumerically(">", 0))
	})

	It("rejects undefined string handles", func() {
		hdr := plainHeader(3, 3)
		hdr.Flags = HeaderInternedStrings

		_, err := readAll(rawLog(hdr, rawRecord(KindMessage, 0x01, 0x07), endOfFile), ReaderOptions{})
		Expect(formaterr.Is(formaterr.InvalidFormat, err)).To(BeTrue())
	})

	It("fails with TruncatedData when the log ends before EndOfFile", func() {
		data := encodeLog(WriterOptions{}, sampleEvents()...)
		data = data[:len(data)-(len(endOfFile)+3)]

		events, err := readAll(data, ReaderOptions{})
		Expect(formaterr.Is(formaterr.TruncatedData, err)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("file is incomplete"))

		By("returning only complete events")
		Expect(len(events)).To(BeNumerically("<", len(sampleEvents())))
		Expect(withoutPresence(events)).To(Equal(sampleEvents()[:len(events)]))
	})

	It("fails with TruncatedData when a compressed log is cut short", func() {
		data := encodeLog(DefaultWriterOptions(), sampleEvents()...)

		_, err := readAll(data[:len(data)/2], ReaderOptions{})
		Expect(formaterr.Is(formaterr.TruncatedData, err)).To(BeTrue())
	})
})

var _ = Describe("Files", func() {
	var tdir string

	BeforeEach(func() {
		var err error
		tdir, err = ioutil.TempDir("", "binlog_test")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tdir)).To(Succeed())
	})

	It("creates, opens and sniffs a binary log", func() {
		path := filepath.Join(tdir, "build.binlog")

		w, err := Create(path)
		Expect(err).ToNot(HaveOccurred())
		for _, ev := range sampleEvents() {
			Expect(w.Write(ev)).To(Succeed())
		}
		Expect(w.NumRecords()).To(BeNumerically(">", len(sampleEvents())))
		Expect(w.Close()).To(Succeed())

		Expect(Sniff(path)).To(Equal(FormatEventRecords))

		r, err := Open(path)
		Expect(err).ToNot(HaveOccurred())
		defer r.Close()

		size, err := r.Size()
		Expect(err).ToNot(HaveOccurred())
		st, err := os.Stat(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(size).To(Equal(st.Size()))

		count := 0
		for {
			_, err := r.Next()
			if err == io.EOF {
				break
			}
			Expect(err).ToNot(HaveOccurred())
			count++
		}
		Expect(count).To(Equal(len(sampleEvents())))
		Expect(r.Position()).To(Equal(size))
	})

	It("sniffs snapshots and unknown files", func() {
		snap := filepath.Join(tdir, "build.snapshot")
		Expect(ioutil.WriteFile(snap, []byte{1, 2, 48, 0x1F, 0x8B}, 0644)).To(Succeed())
		Expect(Sniff(snap)).To(Equal(FormatTreeSnapshot))

		other := filepath.Join(tdir, "other")
		Expect(ioutil.WriteFile(other, []byte("hi"), 0644)).To(Succeed())
		Expect(Sniff(other)).To(Equal(FormatUnknown))
	})

	It("hands back the complete stream after detecting its format", func() {
		data := encodeLog(WriterOptions{}, &BuildFinished{Succeeded: true})

		format, r, err := Detect(bytes.NewReader(data))
		Expect(err).ToNot(HaveOccurred())
		Expect(format).To(Equal(FormatEventRecords))

		all, err := ioutil.ReadAll(r)
		Expect(err).ToNot(HaveOccurred())
		Expect(all).To(Equal(data))
	})
})

var _ = Describe("VisitStrings", func() {
	It("visits every string field", func() {
		for _, ev := range sampleEvents() {
			VisitStrings(ev, func(s *string) { *s = "x" })

			var seen []string
			VisitStrings(ev, func(s *string) { seen = append(seen, *s) })
			for _, s := range seen {
				Expect(s).To(Equal("x"))
			}
		}

		ps := &ProjectStarted{GlobalProperties: []Property{{"a", "b"}}}
		VisitStrings(ps, func(s *string) { *s = "!" + *s })
		Expect(ps.GlobalProperties).To(Equal([]Property{{"!a", "!b"}}))
		Expect(ps.ProjectFile).To(Equal("!"))
	})
})

var _ = Describe("CompressionFlag", func() {
	It("parses compression names", func() {
		var cf CompressionFlag
		Expect(cf.Set("zstd")).To(Succeed())
		Expect(cf.Value()).To(Equal(CompressionZstd))
		Expect(cf.String()).To(Equal("zstd"))
		Expect(cf.Set("bogus")).ToNot(Succeed())
		Expect(CompressionFlagValues()).To(Equal("none, gzip, snappy, zstd, lz4"))
	})
})

func TestBinlog(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Testing binlog")
}
