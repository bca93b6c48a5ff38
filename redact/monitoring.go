// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package redact

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	redactedStrings = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gobinlog_redact_strings_changed",
		Help: "Count of strings changed by redaction.",
	})

	redactFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gobinlog_redact_failures",
		Help: "Count of redactions that failed and were discarded.",
	})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		redactedStrings,
		redactFailures,
	)
}
