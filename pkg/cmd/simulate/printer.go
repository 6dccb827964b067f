package simulate

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mpapenbr/racenav/log"
	"github.com/mpapenbr/racenav/pkg/events"
	"github.com/mpapenbr/racenav/pkg/race"
)

// printer renders the race for the terminal. In json mode every message is
// written as one line, in text mode only the notable ones.
type printer struct {
	out   io.Writer
	json  *events.Writer
	names map[int]string
}

func newPrinter(out io.Writer, format string, s *race.Session) *printer {
	p := &printer{out: out, names: map[int]string{}}
	if format == "json" {
		p.json = events.NewWriter(out)
	}
	for i, part := range s.Participants() {
		p.names[i] = part.Name
	}
	return p
}

func (p *printer) message(m *events.Message) {
	if p.json != nil {
		if err := p.json.Publish(context.Background(), m); err != nil {
			log.Error("could not write message", log.ErrorField(err))
		}
		return
	}
	name := p.names[m.Vehicle]
	switch m.Kind {
	case events.SessionStarted:
		fmt.Fprintf(p.out, "race %s started\n", m.Session)
	case events.LapCompleted:
		fmt.Fprintf(p.out, "%8.2f  %-12s lap %d  %s\n",
			m.Clock, name, m.Lap, race.FormatLapTime(m.LapTime))
	case events.Eliminated:
		fmt.Fprintf(p.out, "%8.2f  %-12s eliminated\n", m.Clock, name)
	case events.Completed:
		fmt.Fprintf(p.out, "%8.2f  %-12s %s, position %d\n",
			m.Clock, name, m.Status, m.Position+1)
	case events.SessionFinished:
		fmt.Fprintf(p.out, "%8.2f  race finished\n", m.Clock)
	default:
	}
}

// final prints the standings table in text mode.
func (p *printer) final(s *race.Session) {
	if p.json != nil {
		return
	}
	s.Standings().Record(s)
	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POS\tNAME\tLAP\tGAP (m)\tLAST\tBEST\tSTATUS")
	for _, st := range s.Standings().Current() {
		fmt.Fprintf(w, "%d\t%s\t%d\t%.1f\t%s\t%s\t%s\n",
			st.Position+1, st.Name, st.Lap, st.Gap/100, st.LastLap, st.BestLap, st.Status)
	}
	if err := w.Flush(); err != nil {
		log.Error("could not write standings", log.ErrorField(err))
	}
}
