// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package binlogtool

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/danjacques/gobinlog/binlog"
	"github.com/danjacques/gobinlog/replay"
	"github.com/danjacques/gobinlog/support/fmtutil"
	"github.com/danjacques/gobinlog/tree"
	"github.com/danjacques/gobinlog/tree/snapshot"

	"github.com/pkg/errors"
)

func runDump(c context.Context, a *app, args []string) error {
	fs := a.flagSet("dump", "PATH")
	showTree := fs.Bool("tree", false, "Print the constructed tree instead of the raw events.")
	payloads := fs.Int("payloads", 0, "Hex dump up to this many bytes of each custom event and node payload.")
	tolerant := fs.Bool("tolerant", false,
		"Skip records that cannot be understood, and print partial trees of incomplete logs.")

	path, err := a.parse(fs, args)
	if err != nil {
		return err
	}

	format, err := binlog.Sniff(path)
	if err != nil {
		return a.finish(err)
	}

	ropts := binlog.ReaderOptions{
		AllowForwardCompatibility: *tolerant,
		Logger:                    a.logger,
	}

	switch {
	case format == binlog.FormatTreeSnapshot:
		t, err := snapshot.Read(path)
		if err != nil {
			return a.finish(err)
		}
		return a.finish(printTree(a.stdout, t, *payloads))

	case format != binlog.FormatEventRecords:
		return a.finish(errors.Errorf("%q is not a binary log or snapshot", path))

	case *showTree:
		t, err := tree.ConstructFile(c, path, &tree.ConstructOptions{
			ReaderOptions:   ropts,
			ToleratePartial: *tolerant,
			Logger:          a.logger,
		})
		if err != nil {
			return a.finish(err)
		}
		return a.finish(printTree(a.stdout, t, *payloads))

	default:
		p := replay.Player{
			Handler: func(ev binlog.Event) error { return printEvent(a.stdout, ev, *payloads) },
			Logger:  a.logger,
		}
		return a.finish(p.PlayFile(c, path, &ropts))
	}
}

func printEvent(w io.Writer, ev binlog.Event, payloads int) error {
	f := ev.Common()

	var b strings.Builder
	b.WriteString(ev.Kind().String())
	if !f.Timestamp.IsZero() {
		fmt.Fprintf(&b, " @%s", f.Timestamp.Format("15:04:05.000"))
	}
	if f.Context != nil {
		fmt.Fprintf(&b, " [%d/%d/%d]", f.Context.ProjectContextID, f.Context.TargetID, f.Context.TaskID)
	}
	if f.Message != "" {
		fmt.Fprintf(&b, ": %s", f.Message)
	}
	b.WriteByte('\n')
	if ce, ok := ev.(*binlog.CustomEvent); ok && payloads > 0 && len(ce.Data) > 0 {
		b.WriteString(fmtutil.Dump(ce.Data, "    ", payloads))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func printTree(w io.Writer, t *tree.Tree, payloads int) (err error) {
	t.Walk(func(id tree.NodeID, depth int) bool {
		if err != nil {
			return false
		}

		var b strings.Builder
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(t.Kind(id).String())
		if name := t.Name(id); name != "" {
			fmt.Fprintf(&b, " %q", name)
		}
		for _, attr := range t.Attrs(id) {
			fmt.Fprintf(&b, " %s=%q", attr.Key, attr.Value)
		}
		payload := t.Payload(id)
		if payload != nil {
			fmt.Fprintf(&b, " (%d byte(s))", len(payload))
		}
		b.WriteByte('\n')
		if payloads > 0 && len(payload) > 0 {
			b.WriteString(fmtutil.Dump(payload, strings.Repeat("  ", depth+2), payloads))
		}

		_, err = io.WriteString(w, b.String())
		return err == nil
	})
	return
}
