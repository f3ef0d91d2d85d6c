package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkgsmith/pkgsmith/pkg/engine"
	"github.com/pkgsmith/pkgsmith/pkg/exec"
)

// timeRounding keeps durations readable in console output.
const timeRounding = time.Millisecond

// teeEvents forwards events while appending each to out. The returned
// channel closes after in closes, so a reader draining it observes every
// captured event.
func teeEvents(in <-chan engine.Event, out *[]engine.Event) <-chan engine.Event {
	ch := make(chan engine.Event)
	go func() {
		defer close(ch)
		for ev := range in {
			*out = append(*out, ev)
			ch <- ev
		}
	}()
	return ch
}

// renderEvents consumes one operation's event stream and writes it to w,
// either as human-readable progress lines or as one JSON object per event.
// It returns when the channel is closed.
func renderEvents(w io.Writer, events <-chan engine.Event, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(w)
		for ev := range events {
			_ = enc.Encode(ev)
		}
		return
	}

	for ev := range events {
		renderConsoleEvent(w, ev)
	}
}

func renderConsoleEvent(w io.Writer, ev engine.Event) {
	switch ev.Kind {
	case engine.EventResolving:
		fmt.Fprintf(w, "Resolving dependencies for %s...\n", ev.Package)
	case engine.EventResolved:
		fmt.Fprintf(w, "Install order: %s\n", strings.Join(ev.Order, " -> "))
	case engine.EventPolicyWarning:
		fmt.Fprintf(w, "  policy warning: %s\n", ev.Text)
	case engine.EventCheckStarted:
		fmt.Fprintf(w, "  checking %s\n", ev.Package)
	case engine.EventAlreadyInstalled:
		fmt.Fprintf(w, "  %s already installed, skipping\n", ev.Package)
	case engine.EventInstallStarted:
		fmt.Fprintf(w, "  installing %s\n", ev.Package)
	case engine.EventInstallCompleted:
		fmt.Fprintf(w, "  %s installed\n", ev.Package)
	case engine.EventOutputChunk:
		prefix := "    "
		if ev.Stream == exec.StreamStderr {
			prefix = "    ! "
		}
		fmt.Fprintf(w, "%s%s\n", prefix, ev.Text)
	case engine.EventOperationCompleted:
		if ev.Summary != nil {
			fmt.Fprintf(w, "Done: %d installed, %d already present (%s)\n",
				ev.Summary.Installed, ev.Summary.AlreadyInstalled,
				ev.Summary.Duration.Round(timeRounding))
		}
	case engine.EventOperationCanceled:
		fmt.Fprintln(w, "Operation canceled")
	case engine.EventOperationFailed:
		if ev.Err != nil {
			fmt.Fprintf(w, "Failed: %s\n", ev.Err.Error())
		} else {
			fmt.Fprintln(w, "Operation failed")
		}
		if ev.Summary != nil && ev.Summary.Installed > 0 {
			fmt.Fprintf(w, "Packages installed before the failure stay installed (%d)\n",
				ev.Summary.Installed)
		}
	}
}
