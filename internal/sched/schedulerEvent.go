// internal/sched/schedulerEvent.go

package sched

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/term"
)

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusSubmit StatusKind = iota
	StatusDispatch
	StatusSyscall
	StatusFinish
	StatusCancel
	StatusError
	StatusTimer
	StatusPoll
	StatusIdle
)

// StatusEvent is emitted on key loop actions.
type StatusEvent struct {
	Time   time.Time  `msgpack:"time"`
	Step   int64      `msgpack:"step"` // loop iteration that produced the event
	Kind   StatusKind `msgpack:"kind"`
	TaskID TaskID     `msgpack:"task_id"`
	Detail string     `msgpack:"detail,omitempty"`
	Err    error      `msgpack:"-"`
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusSubmit:
		return "Submit"
	case StatusDispatch:
		return "Dispatch"
	case StatusSyscall:
		return "Syscall"
	case StatusFinish:
		return "Finish"
	case StatusCancel:
		return "Cancel"
	case StatusError:
		return "Error"
	case StatusTimer:
		return "Timer"
	case StatusPoll:
		return "Poll"
	case StatusIdle:
		return "Idle"
	default:
		return "Unknown"
	}
}

// EventSink receives scheduler events synchronously, on the loop goroutine.
type EventSink interface {
	Handle(ev StatusEvent)
}

// EventFunc adapts a function to EventSink.
type EventFunc func(ev StatusEvent)

func (f EventFunc) Handle(ev StatusEvent) { f(ev) }

// ConsoleSink prints one line per event.
type ConsoleSink struct {
	w      io.Writer
	colors map[StatusKind]*color.Color
}

// NewConsoleSink writes to w. mode is auto|on|off; auto colors only terminals.
func NewConsoleSink(w io.Writer, mode string) *ConsoleSink {
	enable := false
	switch strings.ToLower(mode) {
	case "on", "always":
		enable = true
	case "off", "never":
		enable = false
	default:
		if f, ok := w.(*os.File); ok {
			if fd, err := FD(f); err == nil {
				enable = term.IsTerminal(fd)
			}
		}
	}

	colors := map[StatusKind]*color.Color{
		StatusFinish: color.New(color.FgGreen),
		StatusCancel: color.New(color.FgYellow),
		StatusError:  color.New(color.FgRed, color.Bold),
		StatusTimer:  color.New(color.FgCyan),
		StatusIdle:   color.New(color.FgMagenta),
	}
	for _, c := range colors {
		if enable {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return &ConsoleSink{w: w, colors: colors}
}

func (s *ConsoleSink) Handle(ev StatusEvent) {
	// an auxiliary function to center the event kind in the output
	center := func(str string, width int) string {
		spaces := int(float64(width-len(str)) / 2)
		return strings.Repeat(" ", spaces) + str + strings.Repeat(" ", width-(spaces+len(str)))
	}

	kind := center(ev.Kind.String(), 10)
	if c, ok := s.colors[ev.Kind]; ok {
		kind = c.Sprint(kind)
	}
	msg := fmt.Sprintf("%s = Step: %07d [%s] => Task: %04d",
		ev.Time.Format("Jan 02 15:04:05.000"),
		ev.Step,
		kind,
		ev.TaskID,
	)
	if ev.Detail != "" {
		msg += ", " + ev.Detail
	}
	fmt.Fprintln(s.w, msg)
}

// CSVSink mirrors events into a CSV file.
type CSVSink struct {
	f *os.File
	w *csv.Writer
}

// NewCSVSink creates path and writes the header row.
func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)

	// write header
	if err := w.Write([]string{"timestamp", "step", "event", "task_id", "detail"}); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	return &CSVSink{f: f, w: w}, nil
}

func (s *CSVSink) Handle(ev StatusEvent) {
	rec := []string{
		ev.Time.Format(time.RFC3339Nano),
		strconv.FormatInt(ev.Step, 10),
		ev.Kind.String(),
		strconv.FormatUint(uint64(ev.TaskID), 10),
		ev.Detail,
	}
	s.w.Write(rec)
	s.w.Flush()
}

func (s *CSVSink) Close() error {
	s.w.Flush()
	return errors.Join(s.w.Error(), s.f.Close())
}

// MsgpackSink appends events to a binary trace file.
type MsgpackSink struct {
	f   *os.File
	enc *msgpack.Encoder
	err error
}

// NewMsgpackSink creates the trace file at path.
func NewMsgpackSink(path string) (*MsgpackSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace output: %w", err)
	}
	return &MsgpackSink{f: f, enc: msgpack.NewEncoder(f)}, nil
}

func (s *MsgpackSink) Handle(ev StatusEvent) {
	if s.err != nil {
		return
	}
	s.err = s.enc.Encode(&ev)
}

func (s *MsgpackSink) Close() error {
	return errors.Join(s.err, s.f.Close())
}

// ReadTrace decodes every event of a msgpack trace.
func ReadTrace(r io.Reader) ([]StatusEvent, error) {
	dec := msgpack.NewDecoder(r)
	var events []StatusEvent
	for {
		var ev StatusEvent
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, err
		}
		events = append(events, ev)
	}
}
