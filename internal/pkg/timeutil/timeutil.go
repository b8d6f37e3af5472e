package timeutil

import "time"

// NowUnix returns the current time in unix seconds, the unit every ctime/mtime column uses.
func NowUnix() int64 {
	return time.Now().Unix()
}
