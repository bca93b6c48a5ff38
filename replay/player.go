// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package replay replays binary logs to event handlers and records live
// event streams into binary logs.
package replay

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/danjacques/gobinlog/binlog"
	"github.com/danjacques/gobinlog/support/logging"

	"github.com/pkg/errors"
)

// DefaultProgressInterval is the progress reporting interval used when
// Player.ProgressInterval is zero.
const DefaultProgressInterval = 100 * time.Millisecond

// ErrAlreadyPlaying is returned by Play if the Player is already playing.
var ErrAlreadyPlaying = errors.New("player is already playing")

// Player replays a binary log to a handler.
//
// Play blocks, delivering every event to Handler on the calling goroutine.
// The remaining methods may be called from other goroutines while Play runs.
//
// Player's exported fields must not be changed while it is playing.
type Player struct {
	// Handler receives every replayed event. It must not be nil.
	//
	// If Handler returns an error, playback stops and Play returns it.
	Handler func(binlog.Event) error

	// Progress, if not nil, is called periodically with the fraction [0, 1] of
	// the file consumed so far. It is called from a separate goroutine, and is
	// not called if the file's size cannot be determined. Play does not wait
	// for an in-flight call, so one may still be running after Play returns.
	Progress func(float64)
	// ProgressInterval is the interval between Progress calls. If zero,
	// DefaultProgressInterval is used.
	ProgressInterval time.Duration

	// Speed, if positive, paces playback by event timestamps, delivering each
	// event once its recorded offset from the first event, divided by Speed,
	// has elapsed. A Speed of 1 replays in real time. If zero, events are
	// delivered as quickly as Handler accepts them.
	Speed float64

	// Logger is the logger instance to use. If nil, no logging will be
	// performed.
	Logger logging.L

	// NowFunc, if not nil, is the function to use to get the current time. If
	// nil, time.Now will be used.
	NowFunc func() time.Time

	mu       sync.Mutex
	playback *playerPlayback
}

// PlayerStatus describes the player's current status.
type PlayerStatus struct {
	Events   int64
	Position int64
	Size     int64
	Elapsed  time.Duration
	Paused   bool
}

// Progress returns the fraction of the file consumed, or -1 if the file's
// size is not known.
func (ps *PlayerStatus) Progress() float64 { return progressOf(ps.Position, ps.Size) }

func progressOf(pos, size int64) float64 {
	switch {
	case size < 0:
		return -1
	case size == 0 || pos >= size:
		return 1
	default:
		return float64(pos) / float64(size)
	}
}

// PlayFile opens the binary log at path and plays it.
func (p *Player) PlayFile(c context.Context, path string, opts *binlog.ReaderOptions) error {
	if opts == nil {
		opts = &binlog.ReaderOptions{}
	}

	r, err := opts.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			logging.Must(p.Logger).Warnf("Failed to close binary log %q: %s", path, err)
		}
	}()

	return p.Play(c, r)
}

// Play plays every remaining event in r, returning when r is exhausted, the
// Handler fails, or c is cancelled.
//
// Play does not close r.
func (p *Player) Play(c context.Context, r *binlog.Reader) error {
	pp := &playerPlayback{
		player:     p,
		r:          r,
		logger:     logging.Must(p.Logger),
		commandC:   make(chan *playerCommand),
		immediateC: make(chan time.Time),
		finishedC:  make(chan struct{}),
	}
	close(pp.immediateC) // Always closed.

	p.mu.Lock()
	if p.playback != nil {
		p.mu.Unlock()
		return ErrAlreadyPlaying
	}
	p.playback = pp
	p.mu.Unlock()

	defer func() {
		close(pp.finishedC)

		p.mu.Lock()
		p.playback = nil
		p.mu.Unlock()
	}()

	return pp.play(c)
}

// Status returns the current player status.
//
// If the player is not playing, Status will return nil.
func (p *Player) Status() *PlayerStatus {
	statusC := make(chan *PlayerStatus, 1)
	if !p.currentPlayback().sendCommand(&playerCommand{status: statusC}) {
		return nil
	}
	return <-statusC
}

// Pause pauses playback before the next event. If nothing is playing, or if
// the playback is already paused, Pause will do nothing.
func (p *Player) Pause() {
	p.currentPlayback().sendCommand(&playerCommand{pause: true})
}

// Resume resumes paused playback. If nothing is playing, or if playback is
// not paused, Resume will do nothing.
func (p *Player) Resume() {
	p.currentPlayback().sendCommand(&playerCommand{resume: true})
}

func (p *Player) currentPlayback() *playerPlayback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playback
}

func (p *Player) now() time.Time {
	if p.NowFunc != nil {
		return p.NowFunc()
	}
	return time.Now()
}

// playerCommand is a command sent to the playing goroutine.
type playerCommand struct {
	pause  bool
	resume bool

	status chan<- *PlayerStatus
}

type playerPlayback struct {
	player *Player

	r      *binlog.Reader
	logger logging.L

	commandC   chan *playerCommand
	immediateC chan time.Time // Looks like a timer channel.
	finishedC  chan struct{}

	events int64

	// startTime is the time when the Player began playing.
	startTime time.Time
	// firstEventTime is the timestamp of the first timestamped event.
	firstEventTime time.Time
	// pausedOffset is the amount of time that we spent paused. This allows us
	// to offset event times even if we pause.
	pausedOffset time.Duration
	// pausedStart is the time that the current pause began. If zero, we are
	// not paused.
	pausedStart time.Time
	// timer is the Timer used to sleep in between events.
	timer *time.Timer
}

// sendCommand issues a command to the playerPlayback.
//
// For convenience, if pp is nil, the command will be dropped. This helps avoid
// the need to check for nil for every command issuance point. sendCommand
// returns false if the command was dropped.
func (pp *playerPlayback) sendCommand(cmd *playerCommand) bool {
	if pp == nil {
		return false
	}

	select {
	case pp.commandC <- cmd:
		return true
	case <-pp.finishedC:
		return false
	}
}

func (pp *playerPlayback) play(c context.Context) error {
	c, cancelFunc := context.WithCancel(c)

	playerPlayingGauge.Inc()
	defer func() {
		playerPlayingGauge.Dec()
		if !pp.pausedStart.IsZero() {
			playerPausedGauge.Dec()
		}
		if pp.timer != nil {
			pp.timer.Stop()
		}
	}()

	// Report progress from a separate goroutine until playback finishes. Play
	// does not wait for it, so a slow callback cannot hold up the end of replay.
	defer cancelFunc()
	if pp.player.Progress != nil {
		go pp.reportProgress(c)
	}

	pp.startTime = pp.player.now()
	for {
		// An immediate event would otherwise race cancellation in the select.
		if err := c.Err(); err != nil {
			return err
		}

		ev, err := pp.r.Next()
		if err != nil {
			if err == io.EOF {
				pp.logger.Debugf("Replayed %d event(s).", pp.events)
				return nil
			}

			playerErrors.WithLabelValues("read").Inc()
			return errors.Wrap(err, "reading next event")
		}

		if err := pp.waitForNextCommandOrEvent(c, ev); err != nil {
			return err
		}

		if err := pp.player.Handler(ev); err != nil {
			playerErrors.WithLabelValues("handler").Inc()
			return errors.Wrapf(err, "handling %s event", ev.Kind())
		}
		pp.events++
		playerEvents.Inc()
	}
}

// reportProgress calls the Progress callback at each interval until c is
// cancelled.
func (pp *playerPlayback) reportProgress(c context.Context) {
	size, err := pp.r.Size()
	if err != nil {
		pp.logger.Debugf("Not reporting progress: %s", err)
		return
	}

	interval := pp.player.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Done():
			return
		case <-ticker.C:
			pp.player.Progress(progressOf(pp.r.Position(), size))
		}
	}
}

// scheduledTime returns the time at which ev should be delivered, or the zero
// time if it should be delivered immediately.
func (pp *playerPlayback) scheduledTime(ev binlog.Event) time.Time {
	ts := ev.Common().Timestamp
	if pp.player.Speed <= 0 || ts.IsZero() {
		return time.Time{}
	}
	if pp.firstEventTime.IsZero() {
		pp.firstEventTime = ts
	}

	offset := time.Duration(float64(ts.Sub(pp.firstEventTime)) / pp.player.Speed)
	return pp.startTime.Add(offset + pp.pausedOffset)
}

// waitForNextCommandOrEvent blocks until ev is due, processing commands in
// the meantime.
//
// Pause is implemented by removing the schedule timer from the list of
// unblockers, causing the loop to block pending a new command (potentially
// resume) or cancellation.
func (pp *playerPlayback) waitForNextCommandOrEvent(c context.Context, ev binlog.Event) error {
	// Stupid timer stuff that we have to do in order to reuse a timer.
	timerRunning := false
	resetTimer := func() {
		// If the timer was running, and it has now stopped, consume the signal
		// on its channel.
		if timerRunning && !pp.timer.Stop() {
			<-pp.timer.C
		}
		timerRunning = false
	}

	for {
		var timerC <-chan time.Time
		switch next := pp.scheduledTime(ev); {
		case !pp.pausedStart.IsZero():
			// If we're paused, then we will never trigger on a timer.

		case next.IsZero() || !next.After(pp.player.now()):
			// The event is due now or in the past, so we can immediately trigger.
			timerC = pp.immediateC

		default:
			sleepDelta := next.Sub(pp.player.now())
			if pp.timer == nil {
				pp.timer = time.NewTimer(sleepDelta)
			} else {
				pp.timer.Reset(sleepDelta)
			}
			timerC = pp.timer.C
			timerRunning = true
		}

		select {
		case cmd := <-pp.commandC:
			resetTimer()
			pp.processCommand(cmd)

		case <-c.Done():
			resetTimer()
			return c.Err()

		case _, ok := <-timerC:
			// Note that if !ok, this is our immediateC optimization/hack happening,
			// not the actual timer expiring.
			if ok {
				timerRunning = false
			}
			resetTimer()
			return nil
		}
	}
}

func (pp *playerPlayback) processCommand(cmd *playerCommand) {
	switch {
	case cmd.pause:
		if pp.pausedStart.IsZero() {
			pp.logger.Info("Player is paused.")
			pp.pausedStart = pp.player.now()
			playerPausedGauge.Inc()
		}

	case cmd.resume:
		if !pp.pausedStart.IsZero() {
			pp.logger.Info("Player is resuming.")
			pp.pausedOffset += pp.player.now().Sub(pp.pausedStart)
			pp.pausedStart = time.Time{}
			playerPausedGauge.Dec()
		}

	case cmd.status != nil:
		status := PlayerStatus{
			Events:   pp.events,
			Position: pp.r.Position(),
			Size:     -1,
			Paused:   !pp.pausedStart.IsZero(),
		}
		if size, err := pp.r.Size(); err == nil {
			status.Size = size
		}

		// Don't count time spent paused.
		now := pp.player.now()
		status.Elapsed = now.Sub(pp.startTime) - pp.pausedOffset
		if status.Paused {
			status.Elapsed -= now.Sub(pp.pausedStart)
		}

		cmd.status <- &status
	}
}
