// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"sync"
	"time"

	"github.com/danjacques/gobinlog/binlog"
	"github.com/danjacques/gobinlog/binlog/archive"
	"github.com/danjacques/gobinlog/support/logging"

	"github.com/pkg/errors"
)

// RecorderStatus is a snapshot of the current recorder status.
type RecorderStatus struct {
	Name     string
	Error    error
	Events   int64
	Records  int64
	Bytes    int64
	Duration time.Duration
}

// A Recorder is a live event sink that records events into a binary log.
//
// Record may be called concurrently, from any number of goroutines; events
// are written in the order their Record calls acquire the Recorder.
type Recorder struct {
	// ArchiveProjectFiles, if true, embeds the project files named by
	// ProjectStarted events into the log when recording stops.
	ArchiveProjectFiles bool

	// Logger is the logger instance to use. If nil, no logging will be
	// performed.
	Logger logging.L

	// NowFunc, if not nil, is the function to use to get the current time. If
	// nil, time.Now will be used.
	NowFunc func() time.Time

	mu sync.Mutex
	// w is the currently-active writer.
	w    *binlog.Writer
	name string
	// events is the number of events recorded.
	events int64
	// started is the time that recording started.
	started time.Time
	// projectFiles are the project files to archive, in first-seen order.
	projectFiles []string
	seenFiles    map[string]struct{}
	// recvErr is an error that occurred while writing an event.
	recvErr error
}

func (r *Recorder) now() time.Time {
	if r.NowFunc != nil {
		return r.NowFunc()
	}
	return time.Now()
}

// Start starts recording to w.
//
// The recording will continue until the Stop method is called. Start takes
// ownership of w and closes it on Stop. name identifies the recording in
// status reports.
func (r *Recorder) Start(w *binlog.Writer, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.w != nil {
		panic("already started")
	}

	r.w, r.name = w, name
	r.events = 0
	r.started = r.now()
	r.projectFiles, r.seenFiles = nil, make(map[string]struct{})
	recorderRecordingGauge.Inc()
}

// Stop stops the Recorder, finalizing its output log and releasing its
// resources.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.w == nil {
		return nil
	}

	var err error
	if r.ArchiveProjectFiles && r.recvErr == nil && len(r.projectFiles) > 0 {
		err = r.writeArchiveLocked()
	}

	// Finalize our recorded file, even if archiving failed.
	if closeErr := r.w.Close(); err == nil {
		err = closeErr
	}
	r.w = nil

	// Propagate our receive error, if nothing else failed.
	if err == nil {
		err = r.recvErr
	}
	r.recvErr = nil

	recorderRecordingGauge.Dec()
	return err
}

func (r *Recorder) writeArchiveLocked() error {
	logger := logging.Must(r.Logger)

	b := archive.NewBuilder()
	for _, path := range r.projectFiles {
		if err := b.AddFile(path); err != nil {
			logger.Debugf("Not archiving project file %q: %s", path, err)
			continue
		}
		recorderArchivedFiles.Inc()
	}
	if b.Len() == 0 {
		return nil
	}

	data, err := b.Bytes()
	if err != nil {
		return err
	}
	if err := r.w.WriteEmbeddedArchive(data); err != nil {
		recorderErrors.WithLabelValues("archive").Inc()
		return errors.Wrap(err, "writing project archive")
	}
	logger.Infof("Embedded %d project file(s) into %q.", b.Len(), r.name)
	return nil
}

// Status returns a snapshot of the current Recorder status.
//
// If the Recorder is not currently recording, Status will return nil.
func (r *Recorder) Status() *RecorderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.w == nil {
		return nil
	}

	return &RecorderStatus{
		Name:     r.name,
		Error:    r.recvErr,
		Events:   r.events,
		Records:  r.w.NumRecords(),
		Bytes:    r.w.NumBytes(),
		Duration: r.now().Sub(r.started),
	}
}

// Record adds ev to the recording.
//
// After a write fails, the Recorder stops recording; the failure is returned
// by every later Record call and by Stop.
func (r *Recorder) Record(ev binlog.Event) error {
	recorderEvents.Inc()

	r.mu.Lock()
	defer r.mu.Unlock()

	// If we've been stopped, do nothing.
	if r.w == nil {
		return nil
	}

	// We're already in an error state.
	if r.recvErr != nil {
		return r.recvErr
	}

	if err := r.w.Write(ev); err != nil {
		// Record the error. We're done; let's not waste time on more events.
		recorderErrors.WithLabelValues("write").Inc()
		r.recvErr = err
		return err
	}
	r.events++

	if ps, ok := ev.(*binlog.ProjectStarted); ok && r.ArchiveProjectFiles && ps.ProjectFile != "" {
		if _, seen := r.seenFiles[ps.ProjectFile]; !seen {
			r.seenFiles[ps.ProjectFile] = struct{}{}
			r.projectFiles = append(r.projectFiles, ps.ProjectFile)
		}
	}
	return nil
}
