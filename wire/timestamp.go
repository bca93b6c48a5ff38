// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package wire

import (
	"time"
)

// TimestampKind records how a timestamp was expressed by its producer.
type TimestampKind int32

// Timestamp kinds.
const (
	TimestampUnspecified TimestampKind = 0
	TimestampUTC         TimestampKind = 1
	TimestampLocal       TimestampKind = 2
)

func (k TimestampKind) valid() bool { return k >= TimestampUnspecified && k <= TimestampLocal }

const (
	// ticksPerSecond is the number of 100ns ticks in a second.
	ticksPerSecond = int64(time.Second / 100)
	// epochOffsetSeconds is the number of seconds between 0001-01-01 UTC (tick
	// zero) and the Unix epoch.
	epochOffsetSeconds = 62135596800
)

// TimeToTicks converts t to a count of 100ns ticks since 0001-01-01 UTC.
//
// Times before tick zero are clamped to zero.
func TimeToTicks(t time.Time) int64 {
	secs := t.Unix() + epochOffsetSeconds
	if secs < 0 {
		return 0
	}
	return secs*ticksPerSecond + int64(t.Nanosecond())/100
}

// TicksToTime converts a tick count back into a time.Time. Local timestamps
// are returned in the local time zone, others in UTC.
func TicksToTime(ticks int64, kind TimestampKind) time.Time {
	secs := ticks/ticksPerSecond - epochOffsetSeconds
	nsecs := (ticks % ticksPerSecond) * 100

	t := time.Unix(secs, nsecs)
	if kind == TimestampLocal {
		return t.Local()
	}
	return t.UTC()
}
