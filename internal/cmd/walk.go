package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/Alia5/vxhci/eventring"
	"github.com/Alia5/vxhci/guestmem"
	"github.com/Alia5/vxhci/internal/controller"
	"github.com/Alia5/vxhci/internal/log"
	"github.com/Alia5/vxhci/internal/scenario"
	"github.com/rcrowley/go-metrics"
	"golang.org/x/term"
)

// Walk replays a scenario against a fresh controller.
type Walk struct {
	Scenario  string `arg:"" help:"Scenario file (json, yaml or toml)" type:"existingfile"`
	Image     string `help:"Map this raw guest memory image instead of allocating RAM" type:"existingfile" env:"VXHCI_IMAGE"`
	ImageBase uint64 `help:"Guest physical address of the first image byte" default:"0" env:"VXHCI_IMAGE_BASE"`
	InPlace   bool   `help:"Write the layout and the walk into the image file instead of a private copy"`
	MaxSlots  int    `help:"Device slots the controller reports" default:"8" env:"VXHCI_MAX_SLOTS"`
	MaxPorts  int    `help:"Root hub ports" default:"4" env:"VXHCI_MAX_PORTS"`
	Metrics   bool   `help:"Print ring counters after the walk"`
}

// Run is called by Kong when the walk command is executed.
func (w *Walk) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	return w.Execute(os.Stdout, logger, rawLogger)
}

// Execute runs the walk and writes the event ring dump to out. A step the
// controller rejects is returned after the dump.
func (w *Walk) Execute(out io.Writer, logger *slog.Logger, rawLogger log.RawLogger) error {
	doc, err := scenario.Load(w.Scenario)
	if err != nil {
		return err
	}

	var mem guestmem.Memory
	if w.Image != "" {
		open := guestmem.MapFilePrivate
		if w.InPlace {
			open = guestmem.MapFile
		}
		m, err := open(w.Image, w.ImageBase)
		if err != nil {
			return err
		}
		defer m.Close()
		mem = m
	} else {
		mem = doc.NewRAM()
	}
	if err := doc.Layout(mem); err != nil {
		return fmt.Errorf("laying out %s: %w", doc.Name, err)
	}

	traced := guestmem.NewTraced(mem, rawLogger)
	reg := metrics.NewRegistry()
	c := controller.New(traced,
		controller.WithLogger(logger),
		controller.WithRegistry(reg),
		controller.WithMaxSlots(w.MaxSlots),
		controller.WithMaxPorts(w.MaxPorts),
	)

	logger.Info("Walking scenario", "name", doc.Name, "steps", len(doc.Steps), "devices", len(doc.Devices))
	_, runErr := doc.Run(traced, c)
	if runErr != nil {
		logger.Error("Scenario stopped", "error", runErr)
	}

	if er := c.EventRing(); er != nil {
		evs, err := scenario.Events(mem, er)
		if err != nil {
			return fmt.Errorf("reading event ring: %w", err)
		}
		if err := printEvents(out, er, evs); err != nil {
			return err
		}
	}
	if w.Metrics {
		metrics.WriteOnce(reg, out)
	}
	return runErr
}

// printEvents writes one line per event. Columns are aligned only when out
// is a terminal so the plain output stays tab separated for scripts.
func printEvents(out io.Writer, er *eventring.EventRing, evs []scenario.Event) error {
	w := out
	var tw *tabwriter.Writer
	if isTerminal(out) {
		tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		w = tw
	}

	fmt.Fprintln(w, "ADDR\tTYPE\tC\tCODE\tSLOT\tEP\tLEN\tPOINTER")
	for _, e := range evs {
		ev := e.Event
		cycle := 0
		if ev.Raw().Cycle() {
			cycle = 1
		}
		fmt.Fprintf(w, "%#x\t%s\t%d\t%s\t%d\t%d\t%d\t%#x\n",
			e.Addr, ev.Type(), cycle, ev.CompletionCode(), ev.SlotID(), ev.EndpointID(), ev.Length(), ev.Pointer())
	}
	if tw != nil {
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	deq, known := er.DequeuePointer()
	dequeue := "unknown"
	if known {
		dequeue = fmt.Sprintf("%#x", deq)
	}
	_, err := fmt.Fprintf(out, "enqueue %#x dequeue %s cycle %t events %d\n",
		er.EnqueuePointer(), dequeue, er.CycleState(), len(evs))
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
