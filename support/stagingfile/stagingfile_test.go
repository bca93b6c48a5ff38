// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package stagingfile

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("F", func() {
	var tdir, dest string

	BeforeEach(func() {
		var err error
		tdir, err = ioutil.TempDir("", "stagingfile_test")
		Expect(err).ToNot(HaveOccurred())

		dest = filepath.Join(tdir, "out.bin")
		Expect(ioutil.WriteFile(dest, []byte("original"), 0644)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tdir)).To(Succeed())
	})

	listDir := func() []string {
		infos, err := ioutil.ReadDir(tdir)
		Expect(err).ToNot(HaveOccurred())
		names := make([]string, len(infos))
		for i, fi := range infos {
			names[i] = fi.Name()
		}
		return names
	}

	It("replaces the destination on Commit", func() {
		sf, err := New(dest)
		Expect(err).ToNot(HaveOccurred())

		_, err = sf.WriteString("replacement")
		Expect(err).ToNot(HaveOccurred())
		Expect(sf.Commit()).To(Succeed())
		Expect(sf.Destroy()).To(Succeed())

		data, err := ioutil.ReadFile(dest)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(Equal("replacement"))
		Expect(listDir()).To(ConsistOf("out.bin"))
	})

	It("leaves the destination untouched on Destroy", func() {
		sf, err := New(dest)
		Expect(err).ToNot(HaveOccurred())

		_, err = sf.WriteString("partial")
		Expect(err).ToNot(HaveOccurred())
		Expect(sf.Destroy()).To(Succeed())

		data, err := ioutil.ReadFile(dest)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(Equal("original"))
		Expect(listDir()).To(ConsistOf("out.bin"))
	})
})

func TestStagingFile(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Testing stagingfile")
}
