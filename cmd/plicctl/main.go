package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/tinyrange/irqc/internal/chipset"
	"github.com/tinyrange/irqc/internal/fdt"
	"github.com/tinyrange/irqc/internal/hv"
	"github.com/tinyrange/irqc/internal/irqc/plic"
	"github.com/tinyrange/irqc/internal/platform"
	"golang.org/x/term"
)

// parseSources parses a comma separated list of source ids.
func parseSources(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	var out []uint32
	for _, field := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(field), 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid source %q: %w", field, err)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}

// dispatcher services raised sources on the simulated board. Sources in
// delegate are handed off and left for their owner to complete.
type dispatcher struct {
	lines    map[uint32]chipset.LineInterrupt
	delegate map[uint32]bool
	log      []Service
	hart     int
}

func (d *dispatcher) HandleSource(source uint32) plic.Disposition {
	disp := plic.HandledLocally
	if d.delegate[source] {
		disp = plic.Delegated
	} else if line, ok := d.lines[source]; ok {
		line.SetLevel(false)
	}
	d.log = append(d.log, Service{Hart: d.hart, Source: source, Disposition: disp.String()})
	return disp
}

func run() error {
	configPath := flag.String("config", "", "platform description (default: qemu virt)")
	harts := flag.Int("harts", 1, "hart count when no platform file is given")
	devmem := flag.String("devmem", "", "drive real hardware through this physical memory device")
	sources := flag.Int("sources", 95, "sources implemented by the simulated controller")
	raise := flag.String("raise", "", "comma separated sources to assert and service")
	delegate := flag.String("delegate", "", "comma separated sources to delegate instead of completing")
	rounds := flag.Int("rounds", 1, "assert and service the raised sources this many times")
	dtbPath := flag.String("dtb", "", "write the controller device-tree node to this file")
	format := flag.String("format", "", "report format: text or yaml (default: text on a terminal)")
	verbose := flag.Bool("v", false, "enable debug logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `plicctl - bring up the PLIC driver and service interrupts

USAGE:
  plicctl [flags]

EXAMPLES:
  plicctl -harts 2 -raise 1,10               Simulated board, service two sources
  plicctl -raise 3,4 -delegate 4             Delegate source 4, complete it afterwards
  plicctl -harts 4 -raise 1,2,3,4 -rounds 10000
  plicctl -config board.yaml -dtb plic.dtb   Write the controller node
  plicctl -config board.yaml -devmem /dev/mem
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	p := platform.QemuVirt(*harts)
	if *configPath != "" {
		var err error
		p, err = platform.Load(*configPath)
		if err != nil {
			return err
		}
	} else if err := p.Validate(); err != nil {
		return err
	}

	raised, err := parseSources(*raise)
	if err != nil {
		return err
	}
	delegated, err := parseSources(*delegate)
	if err != nil {
		return err
	}

	d := &dispatcher{
		lines:    make(map[uint32]chipset.LineInterrupt),
		delegate: make(map[uint32]bool),
	}
	for _, src := range delegated {
		d.delegate[src] = true
	}

	var (
		space *hv.AddressSpace
		sim   *platform.Simulated
		mode  = "simulated"
	)
	if *devmem != "" {
		if len(raised) > 0 {
			return fmt.Errorf("-raise needs the simulated controller")
		}
		hw, err := platform.OpenHardware(p, *devmem)
		if err != nil {
			return err
		}
		space = hw.Space
		mode = "hardware"
	} else {
		sim, err = platform.NewSimulated(p, *sources)
		if err != nil {
			return err
		}
		space = sim.Space
	}
	defer space.Close()

	c, err := plic.New(p.DriverConfig(d))
	if err != nil {
		return err
	}
	// A hypervisor cannot run without its interrupt controller.
	if err := c.Init(space); err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	var hs []*plic.Hart
	for _, cpu := range p.CPUs() {
		h, err := c.CPUInit(cpu)
		if err != nil {
			return fmt.Errorf("boot: %w", err)
		}
		hs = append(hs, h)
	}

	var elapsed time.Duration
	if sim != nil && len(raised) > 0 && *rounds > 0 {
		var pb *progressbar.ProgressBar
		if *rounds > 1 && term.IsTerminal(int(os.Stderr.Fd())) {
			pb = progressbar.Default(int64(*rounds), "servicing")
			defer pb.Close()
		}
		elapsed = serviceRounds(c, sim, hs, d, raised, *rounds, func() {
			if pb != nil {
				pb.Add(1)
			}
		})
	}

	if *dtbPath != "" {
		if err := writeDeviceTree(*dtbPath, c, p.Harts); err != nil {
			return err
		}
	}

	rep := newReport(p, mode, c, hs, d.log, sim)
	if *rounds > 1 && len(raised) > 0 {
		rep.Rounds = *rounds
		rep.MeanRound = (elapsed / time.Duration(*rounds)).String()
	}
	return rep.write(os.Stdout, *format)
}

// serviceRounds runs serviceRaised rounds times and returns the time spent
// servicing. With more than one round the service and event logs are emptied
// before each round, so they only hold the last one.
func serviceRounds(c *plic.Controller, sim *platform.Simulated, hs []*plic.Hart, d *dispatcher, raised []uint32, rounds int, done func()) time.Duration {
	var elapsed time.Duration
	for r := 0; r < rounds; r++ {
		if rounds > 1 {
			d.log = d.log[:0]
			sim.PLIC.ResetEvents()
		}
		start := time.Now()
		serviceRaised(c, sim, hs, d, raised)
		elapsed += time.Since(start)
		done()
	}
	return elapsed
}

// serviceRaised spreads raised sources over the harts round robin, asserts
// them and lets each hart handle its external interrupt until none remain.
// Delegated sources are completed afterwards on behalf of their owner.
func serviceRaised(c *plic.Controller, sim *platform.Simulated, hs []*plic.Hart, d *dispatcher, raised []uint32) {
	owner := make(map[uint32]*plic.Hart)
	for i, src := range raised {
		h := hs[i%len(hs)]
		owner[src] = h
		c.SetPriority(src, 1)
		c.SetEnabled(h.Context(), src, true)
	}
	for _, src := range raised {
		line := sim.Line(src)
		d.lines[src] = line
		line.SetLevel(true)
	}

	for _, h := range hs {
		d.hart = h.ID()
		for sim.ExternalPending(h.Context()) {
			if h.Handle() == 0 {
				break
			}
		}
	}

	for _, src := range raised {
		if !d.delegate[src] {
			continue
		}
		h := owner[src]
		d.lines[src].SetLevel(false)
		c.Complete(h.Context(), src)
	}
}

func writeDeviceTree(path string, c *plic.Controller, harts int) error {
	// Hart interrupt controllers take phandles 1..harts, the PLIC follows them.
	intc := func(hart int) uint32 { return uint32(hart) + 1 }
	phandle := uint32(harts) + 1

	root := fdt.Node{
		Properties: map[string]fdt.Property{
			"#address-cells": {U32: []uint32{2}},
			"#size-cells":    {U32: []uint32{2}},
		},
		Children: []fdt.Node{{
			Name: "soc",
			Properties: map[string]fdt.Property{
				"#address-cells": {U32: []uint32{2}},
				"#size-cells":    {U32: []uint32{2}},
				"compatible":     {Strings: []string{"simple-bus"}},
				"ranges":         {Flag: true},
			},
			Children: []fdt.Node{c.DeviceTree(phandle, intc)},
		}},
	}
	blob, err := fdt.Build(root)
	if err != nil {
		return fmt.Errorf("build device tree: %w", err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return fmt.Errorf("write device tree: %w", err)
	}
	slog.Info("plicctl: wrote device tree", "path", path, "size", len(blob))
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "plicctl: %v\n", err)
		os.Exit(1)
	}
}
