package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dacapo/internal/app"
	"dacapo/internal/config"
	"dacapo/internal/player"
	"dacapo/internal/timefmt"
	"dacapo/pkg/models"
)

// repl is the interactive command loop driving the playback controller.
type repl struct {
	session *app.App
	config  *config.Config
	in      io.Reader
	out     io.Writer
}

func newREPL(session *app.App, cfg *config.Config, in io.Reader, out io.Writer) *repl {
	return &repl{session: session, config: cfg, in: in, out: out}
}

// Run reads commands line by line until "quit" or EOF.
func (r *repl) Run() {
	fmt.Fprintln(r.out, "dacapo ready. Type 'help' for commands.")
	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return
		}
		r.dispatch(fields[0], fields[1:])
	}
}

func (r *repl) dispatch(cmd string, args []string) {
	switch cmd {
	case "help":
		r.printHelp()
	case "list":
		r.printList()
	case "status":
		r.printStatus()
	case "import":
		if len(args) == 0 {
			fmt.Fprintln(r.out, "usage: import <path>")
			return
		}
		path := strings.Join(args, " ")
		if err := r.session.Import(path); err != nil {
			fmt.Fprintf(r.out, "import failed: %v\n", err)
		} else {
			fmt.Fprintln(r.out, "imported")
		}
	case "select":
		r.withIndex(args, func(i int) {
			items := r.session.Library().Snapshot().Items
			r.session.Library().SelectItem(items[i].ID)
		})
	case "next":
		r.session.Library().SelectNext()
	case "prev":
		r.session.Library().SelectPrevious()
	case "delete":
		cur := r.session.Library().Current()
		if cur == nil {
			fmt.Fprintln(r.out, "nothing selected")
			return
		}
		if err := <-r.session.Library().DeleteItem(cur.ID); err != nil {
			fmt.Fprintf(r.out, "delete failed: %v\n", err)
		}
	case "play":
		r.withController(func(c *player.Controller) { c.TogglePlay() })
	case "loop":
		r.withController(func(c *player.Controller) { c.ToggleLoop() })
	case "a":
		r.withController(func(c *player.Controller) { c.MarkA() })
	case "b":
		r.withController(func(c *player.Controller) { c.MarkB() })
	case "seek":
		if len(args) != 1 {
			fmt.Fprintln(r.out, "usage: seek <seconds>")
			return
		}
		seconds, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			fmt.Fprintf(r.out, "bad position: %v\n", err)
			return
		}
		r.withController(func(c *player.Controller) { c.SeekTo(seconds) })
	case "rate":
		r.handleRate(args)
	case "mute":
		r.withController(func(c *player.Controller) { c.SetMuted(!c.Status().IsMuted) })
	case "commit":
		r.withController(func(c *player.Controller) { c.AddLoopMarker() })
	case "markers":
		r.printMarkers()
	case "recall":
		r.withMarker(args, func(c *player.Controller, m models.LoopMarker) {
			c.SetLoop(m.A, m.B)
		})
	case "delmark":
		r.withMarker(args, func(c *player.Controller, m models.LoopMarker) {
			if err := <-r.session.Library().DeleteMarker(m.ID); err != nil {
				fmt.Fprintf(r.out, "delete failed: %v\n", err)
			}
		})
	default:
		fmt.Fprintf(r.out, "unknown command %q, try 'help'\n", cmd)
	}
}

func (r *repl) handleRate(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "usage: rate <value> | rate + | rate -")
		return
	}
	step := r.config.Playback.RateStep
	switch args[0] {
	case "+":
		r.withController(func(c *player.Controller) { c.AddPlaybackRate(step) })
	case "-":
		r.withController(func(c *player.Controller) { c.AddPlaybackRate(-step) })
	default:
		rate, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			fmt.Fprintf(r.out, "bad rate: %v\n", err)
			return
		}
		r.withController(func(c *player.Controller) { c.SetPlaybackRate(rate) })
	}
}

// withController runs fn against the bound controller, or reports that
// nothing is selected.
func (r *repl) withController(fn func(*player.Controller)) {
	c := r.session.Controller()
	if c == nil {
		fmt.Fprintln(r.out, "nothing selected")
		return
	}
	fn(c)
}

// withIndex parses a one-based list index and checks it against the library.
func (r *repl) withIndex(args []string, fn func(int)) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "usage: select <number>")
		return
	}
	n, err := strconv.Atoi(args[0])
	items := r.session.Library().Snapshot().Items
	if err != nil || n < 1 || n > len(items) {
		fmt.Fprintf(r.out, "expected a number between 1 and %d\n", len(items))
		return
	}
	fn(n - 1)
}

// withMarker parses a one-based marker index on the current recording.
// Markers are read from the library mirror rather than the controller's
// source snapshot so freshly committed ones are visible immediately.
func (r *repl) withMarker(args []string, fn func(*player.Controller, models.LoopMarker)) {
	r.withController(func(c *player.Controller) {
		cur := r.session.Library().Current()
		if cur == nil {
			fmt.Fprintln(r.out, "nothing selected")
			return
		}
		if len(args) != 1 {
			fmt.Fprintln(r.out, "usage: recall|delmark <number>")
			return
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > len(cur.Markers) {
			fmt.Fprintf(r.out, "expected a number between 1 and %d\n", len(cur.Markers))
			return
		}
		fn(c, cur.Markers[n-1])
	})
}

func (r *repl) printHelp() {
	fmt.Fprint(r.out, `Commands:
  list                 show the library
  select <n>           select a recording by number
  next / prev          step the selection
  import <path>        add an audio file to the library
  delete               remove the current recording
  play                 toggle play / pause
  seek <seconds>       jump to a position
  loop                 toggle loop mode
  a / b                set the loop points at the current position
  commit               save the loop points as a marker
  markers              list markers on the current recording
  recall <n>           load a saved marker as the active loop
  delmark <n>          delete a marker
  rate <v> | + | -     set or nudge the playback rate
  mute                 toggle mute
  status               show playback state
  quit                 exit
`)
}

func (r *repl) printList() {
	snap := r.session.Library().Snapshot()
	if len(snap.Items) == 0 {
		fmt.Fprintln(r.out, "library is empty")
		return
	}
	for i, rec := range snap.Items {
		mark := " "
		if snap.Current != nil && snap.Current.ID == rec.ID {
			mark = "*"
		}
		fmt.Fprintf(r.out, "%s %2d  %s  (%s, %d markers)\n",
			mark, i+1, rec.Name, timefmt.Clock(rec.Duration), len(rec.Markers))
	}
}

func (r *repl) printMarkers() {
	cur := r.session.Library().Current()
	if cur == nil {
		fmt.Fprintln(r.out, "nothing selected")
		return
	}
	if len(cur.Markers) == 0 {
		fmt.Fprintln(r.out, "no markers")
		return
	}
	for i, m := range cur.Markers {
		fmt.Fprintf(r.out, "%2d  %s\n", i+1, m.Title)
	}
}

func (r *repl) printStatus() {
	r.withController(func(c *player.Controller) {
		st := c.Status()
		state := "paused"
		if st.IsPlaying {
			state = "playing"
		}
		fmt.Fprintf(r.out, "%s  %s / %s  rate %.2fx", state, st.Elapsed, timefmt.Clock(st.Duration), st.PlaybackRate)
		if st.IsLoop {
			fmt.Fprint(r.out, "  loop on")
		}
		if st.ALoop != nil {
			fmt.Fprintf(r.out, "  A=%s", timefmt.Clock(*st.ALoop))
		}
		if st.BLoop != nil {
			fmt.Fprintf(r.out, "  B=%s", timefmt.Clock(*st.BLoop))
		}
		if st.IsMuted {
			fmt.Fprint(r.out, "  muted")
		}
		fmt.Fprintln(r.out)
	})
}
