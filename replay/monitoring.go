// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	recorderRecordingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gobinlog_recorder_recording",
		Help: "Count of active recorders recording.",
	})

	recorderErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gobinlog_recorder_errors",
		Help: "Count of general recorder errors encountered.",
	}, []string{"type"})

	recorderEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gobinlog_recorder_events",
		Help: "Count of recorded events.",
	})

	recorderArchivedFiles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gobinlog_recorder_archived_files",
		Help: "Count of project files embedded into recordings.",
	})

	playerPlayingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gobinlog_player_playing",
		Help: "Count of active players replaying events.",
	})

	playerPausedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gobinlog_player_paused",
		Help: "Incremented when a player is paused, decremented on resume.",
	})

	playerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gobinlog_player_errors",
		Help: "Count of player errors encountered during playback.",
	}, []string{"type"})

	playerEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gobinlog_player_events",
		Help: "Count of events delivered by players.",
	})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		// Recorder
		recorderRecordingGauge,
		recorderErrors,
		recorderEvents,
		recorderArchivedFiles,

		// Player
		playerPlayingGauge,
		playerPausedGauge,
		playerErrors,
		playerEvents,
	)
}
