// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package binlogtool

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/danjacques/gobinlog/binlog"
	"github.com/danjacques/gobinlog/support/logging"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("binlogtool", func() {
	var (
		tdir   string
		path   string
		stdout bytes.Buffer
		a      *app
	)

	BeforeEach(func() {
		var err error
		tdir, err = ioutil.TempDir("", "binlogtool_test")
		Expect(err).ToNot(HaveOccurred())

		path = filepath.Join(tdir, "build.binlog")
		w, err := binlog.Create(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(w.Write(&binlog.BuildStarted{Fields: binlog.Fields{Message: "Build started."}})).To(Succeed())
		Expect(w.Write(&binlog.Message{Fields: binlog.Fields{Message: "password is hunter2"}})).To(Succeed())
		Expect(w.Write(&binlog.BuildFinished{Succeeded: true})).To(Succeed())
		Expect(w.Close()).To(Succeed())

		stdout.Reset()
		a = &app{
			stdout: &stdout,
			stderr: ioutil.Discard,
			logger: logging.Nop,
		}
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tdir)).To(Succeed())
	})

	It("requires a known subcommand", func() {
		Expect(a.run(context.Background(), nil)).ToNot(Succeed())
		Expect(a.run(context.Background(), []string{"frobnicate"})).ToNot(Succeed())
	})

	It("dumps events", func() {
		Expect(a.run(context.Background(), []string{"dump", path})).To(Succeed())
		Expect(stdout.String()).To(Equal(
			"BuildStarted: Build started.\n" +
				"Message: password is hunter2\n" +
				"BuildFinished\n"))
	})

	It("dumps the constructed tree", func() {
		Expect(a.run(context.Background(), []string{"dump", "--tree", path})).To(Succeed())
		Expect(stdout.String()).To(HavePrefix(`Build "Build" Succeeded="true"`))
		Expect(stdout.String()).To(ContainSubstring(`  Message "password is hunter2"`))
	})

	It("redacts tokens into a new file", func() {
		out := filepath.Join(tdir, "redacted.binlog")
		Expect(a.run(context.Background(), []string{"redact", "-t", "hunter2", "-o", out, path})).To(Succeed())

		stdout.Reset()
		Expect(a.run(context.Background(), []string{"dump", out})).To(Succeed())
		Expect(stdout.String()).To(ContainSubstring("Message: password is REDACTED\n"))
	})

	It("requires a token to redact", func() {
		Expect(a.run(context.Background(), []string{"redact", path})).ToNot(Succeed())
	})

	It("writes snapshots that can be dumped", func() {
		Expect(a.run(context.Background(), []string{"snapshot", path})).To(Succeed())

		snap := filepath.Join(tdir, "build.snapshot")
		format, err := binlog.Sniff(snap)
		Expect(err).ToNot(HaveOccurred())
		Expect(format).To(Equal(binlog.FormatTreeSnapshot))

		stdout.Reset()
		Expect(a.run(context.Background(), []string{"dump", snap})).To(Succeed())
		Expect(stdout.String()).To(ContainSubstring(`Message "password is hunter2"`))
	})

	It("writes metrics when asked", func() {
		metrics := filepath.Join(tdir, "metrics.prom")
		Expect(a.run(context.Background(), []string{"dump", "--metrics_out", metrics, path})).To(Succeed())

		data, err := ioutil.ReadFile(metrics)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("gobinlog_records_read"))
	})
})

func TestBinlogtool(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Testing binlogtool")
}
