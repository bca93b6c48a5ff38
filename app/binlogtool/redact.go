// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package binlogtool

import (
	"context"
	"fmt"

	"github.com/danjacques/gobinlog/binlog"
	"github.com/danjacques/gobinlog/redact"

	"github.com/pkg/errors"
)

func runRedact(c context.Context, a *app, args []string) error {
	fs := a.flagSet("redact", "PATH")
	tokens := fs.StringArrayP("token", "t", nil, "A secret to redact. May be repeated.")
	out := fs.StringP("output", "o", "", "Write the redacted log here. If empty, PATH is redacted in place.")
	archives := fs.Bool("archives", false, "Also redact the paths and contents of embedded files.")
	level := fs.Int("compression_level", -1, "Compression level, if --compression is set. Negative for default.")

	var compression binlog.CompressionFlag
	fs.Var(&compression, "compression",
		fmt.Sprintf("Recompress the output with this compression (%s). If unset, the input's is kept.",
			binlog.CompressionFlagValues()))

	path, err := a.parse(fs, args)
	if err != nil {
		return err
	}
	if len(*tokens) == 0 {
		return errors.New("at least one --token is required")
	}

	opts := redact.Options{
		IncludeArchives: *archives,
		Logger:          a.logger,
	}
	if fs.Changed("compression") {
		opts.WriterOptions = &binlog.WriterOptions{
			Compression:      compression.Value(),
			CompressionLevel: *level,
			Logger:           a.logger,
		}
	}

	st, err := redact.File(c, path, *out, redact.Secrets(*tokens...), &opts)
	if err != nil {
		return a.finish(err)
	}

	fmt.Fprintf(a.stdout, "Redacted %d of %d string(s) across %d event(s) and %d embedded file(s).\n",
		st.Changed, st.Strings, st.Events, st.ArchiveEntries)
	return a.finish(nil)
}
