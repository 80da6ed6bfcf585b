package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cafescout/cafescout/engine/events"
)

// printer writes events for a human or as JSON lines.
type printer struct {
	w        io.Writer
	json     bool
	verbose  bool
	progress bool
}

func (p *printer) print(ev events.Event) error {
	if p.json {
		return json.NewEncoder(p.w).Encode(ev)
	}
	var err error
	switch ev.Kind {
	case events.KindLog:
		if ev.Log.Severity == events.SeverityDebug && !p.verbose {
			return nil
		}
		_, err = fmt.Fprintf(p.w, "[%s] %s\n", ev.Log.Severity, ev.Log.Message)
	case events.KindPost:
		_, err = fmt.Fprintf(p.w, "#%d %s\n    %s (%s)\n", ev.Post.No, ev.Post.Title, ev.Post.URL, ev.Post.SourceID)
	case events.KindProgress:
		if !p.progress {
			return nil
		}
		_, err = fmt.Fprintf(p.w, "... %s %d/%d (%d%%)\n", ev.Progress.Phase, ev.Progress.Current, ev.Progress.Total, ev.Progress.Percent)
	case events.KindCompleted:
		c := ev.Completed
		if c.Reason != "" {
			_, err = fmt.Fprintf(p.w, "run %s: %s, %d posts (%s)\n", ev.RunID, c.Outcome, c.Emitted, c.Reason)
		} else {
			_, err = fmt.Fprintf(p.w, "run %s: %s, %d posts\n", ev.RunID, c.Outcome, c.Emitted)
		}
	}
	return err
}
