// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package binlog

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	recordsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gobinlog_records_written",
		Help: "Count of records written, by record kind.",
	}, []string{"kind"})

	bytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gobinlog_record_bytes_written",
		Help: "Count of uncompressed record bytes written.",
	})

	recordsRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gobinlog_records_read",
		Help: "Count of records read, by record kind.",
	}, []string{"kind"})

	recordsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gobinlog_records_skipped",
		Help: "Count of records skipped by readers, by reason.",
	}, []string{"reason"})

	readErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gobinlog_read_errors",
		Help: "Count of fatal read errors, by error kind.",
	}, []string{"kind"})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		// Writer
		recordsWritten,
		bytesWritten,

		// Reader
		recordsRead,
		recordsSkipped,
		readErrors,
	)
}
