// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package binlogtool

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danjacques/gobinlog/binlog"
	"github.com/danjacques/gobinlog/tree"
	"github.com/danjacques/gobinlog/tree/snapshot"
)

const snapshotExt = ".snapshot"

func runSnapshot(c context.Context, a *app, args []string) error {
	fs := a.flagSet("snapshot", "PATH")
	out := fs.StringP("output", "o", "", "Snapshot path. If empty, PATH with a \""+snapshotExt+"\" extension.")
	tolerant := fs.Bool("tolerant", false, "Snapshot the partial tree of an incomplete log.")

	path, err := a.parse(fs, args)
	if err != nil {
		return err
	}
	if *out == "" {
		*out = strings.TrimSuffix(path, filepath.Ext(path)) + snapshotExt
	}

	t, err := tree.ConstructFile(c, path, &tree.ConstructOptions{
		ReaderOptions: binlog.ReaderOptions{
			AllowForwardCompatibility: *tolerant,
			Logger:                    a.logger,
		},
		ToleratePartial: *tolerant,
		Logger:          a.logger,
	})
	if err != nil {
		return a.finish(err)
	}

	if err := snapshot.Write(*out, t); err != nil {
		return a.finish(err)
	}
	fmt.Fprintf(a.stdout, "Wrote %d node(s) to %s.\n", t.Len(), *out)
	return a.finish(nil)
}
