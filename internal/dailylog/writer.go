// Package dailylog provides a daily-rotating io.Writer for the decoder's
// own operational log (distinct from the station data it decodes).
//
// It's adapted from the teacher's rtcmlogger/log.Writer, which rolled RTCM
// frame logs over at midnight UTC.  This version keeps the day-rollover
// and append-on-restart behaviour but drops the RTCM-specific "data.ready"
// staging directory move, since there is no downstream RINEX conversion
// step in this domain - the rotated files are simply left in place for
// whatever log shipper the operator points at the directory.
package dailylog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rds-radio/decoder/internal/clock"
)

// Writer satisfies io.Writer and writes to a file that's rotated once per
// day, named "<prefix>.<yyyymmdd>.<suffix>" in Directory.
type Writer struct {
	mutex     sync.Mutex
	clock     clock.Clock
	Directory string
	Prefix    string
	Suffix    string

	currentDay string
	file       *os.File
}

var _ io.Writer = (*Writer)(nil)
var _ io.Closer = (*Writer)(nil)

// New creates a Writer rooted at directory, using the system clock.
func New(directory, prefix, suffix string) *Writer {
	return &Writer{
		clock:     clock.NewSystemClock(),
		Directory: directory,
		Prefix:    prefix,
		Suffix:    suffix,
	}
}

// NewWithClock creates a Writer using the given clock, for testing.
func NewWithClock(c clock.Clock, directory, prefix, suffix string) *Writer {
	return &Writer{clock: c, Directory: directory, Prefix: prefix, Suffix: suffix}
}

// Write appends buffer to today's log file, creating it (or a new file for
// a new day) as needed.
func (w *Writer) Write(buffer []byte) (int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	today := w.today()
	if w.file == nil || today != w.currentDay {
		if w.file != nil {
			w.file.Close()
		}
		if err := os.MkdirAll(w.Directory, 0755); err != nil {
			return 0, fmt.Errorf("dailylog: creating directory: %w", err)
		}
		file, err := os.OpenFile(w.filename(today), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return 0, fmt.Errorf("dailylog: opening log file: %w", err)
		}
		w.file = file
		w.currentDay = today
	}

	return w.file.Write(buffer)
}

// Close closes the current log file, if any.
func (w *Writer) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *Writer) today() string {
	now := w.clock.Now().UTC()
	return fmt.Sprintf("%04d%02d%02d", now.Year(), now.Month(), now.Day())
}

func (w *Writer) filename(day string) string {
	return filepath.Join(w.Directory, fmt.Sprintf("%s.%s.%s", w.Prefix, day, w.Suffix))
}

// NewDailyLogger creates a *log.Logger writing to a daily-rotating file in
// directory, mirroring the teacher's utils.GetDailyLogger.
func NewDailyLogger(directory string) *LoggerWriter {
	return &LoggerWriter{Writer: New(directory, "rds", "log")}
}

// LoggerWriter is a thin wrapper so callers can pass this as an io.Writer
// to log.New without exposing the rotation internals.
type LoggerWriter struct {
	*Writer
}

// Now is a convenience so callers can stamp entries with the same clock
// the writer is using.
func (w *LoggerWriter) Now() time.Time {
	return w.clock.Now()
}
