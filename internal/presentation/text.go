package presentation

import (
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/blebeacon/internal/observation"
	"github.com/srg/blebeacon/internal/outcome"
)

// TextSink writes one line per entry, optionally colored: green for started
// roles, red for failures, yellow for batch headers.
type TextSink struct {
	mu     sync.Mutex
	w      io.Writer
	logger *logrus.Logger

	ok   *color.Color
	fail *color.Color
	note *color.Color
	none *color.Color
}

// NewTextSink creates a TextSink writing to w. Colors are emitted only when
// colored is true, regardless of terminal detection.
func NewTextSink(w io.Writer, colored bool, logger *logrus.Logger) *TextSink {
	if logger == nil {
		logger = logrus.New()
	}

	s := &TextSink{
		w:      w,
		logger: logger,
		ok:     color.New(color.FgGreen),
		fail:   color.New(color.FgRed, color.Bold),
		note:   color.New(color.FgYellow),
		none:   color.New(color.Reset),
	}
	for _, c := range []*color.Color{s.ok, s.fail, s.note, s.none} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

func (s *TextSink) Outcome(o outcome.Outcome) {
	c := s.ok
	if o.Failed() {
		c = s.fail
	}
	s.writeLine(c, o.Line())
}

func (s *TextSink) Batch(n int) {
	s.writeLine(s.note, observation.BatchHeader(n))
}

func (s *TextSink) Observation(obs observation.PeerObservation) {
	s.writeLine(s.none, obs.Line())
}

func (s *TextSink) writeLine(c *color.Color, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := c.Fprintln(s.w, line); err != nil {
		s.logger.WithError(err).Warn("Failed to write output line")
	}
}
