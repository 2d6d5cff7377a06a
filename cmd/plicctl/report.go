package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/tinyrange/irqc/internal/irqc/plic"
	"github.com/tinyrange/irqc/internal/platform"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

type Report struct {
	Platform       string       `yaml:"platform"`
	Mode           string       `yaml:"mode"`
	Base           uint64       `yaml:"base"`
	ImplementedMax uint32       `yaml:"implementedMax"`
	Contexts       int          `yaml:"contexts"`
	Harts          []HartReport `yaml:"harts"`
	Serviced       []Service    `yaml:"serviced,omitempty"`
	Events         []string     `yaml:"events,omitempty"`
	Rounds         int          `yaml:"rounds,omitempty"`
	MeanRound      string       `yaml:"meanRound,omitempty"`
}

type HartReport struct {
	ID        int    `yaml:"id"`
	Context   int    `yaml:"context"`
	Threshold uint32 `yaml:"threshold"`
}

type Service struct {
	Hart        int    `yaml:"hart"`
	Source      uint32 `yaml:"source"`
	Disposition string `yaml:"disposition"`
}

func newReport(p platform.Platform, mode string, c *plic.Controller, hs []*plic.Hart, log []Service, sim *platform.Simulated) Report {
	r := Report{
		Platform:       p.Name,
		Mode:           mode,
		Base:           p.PLIC.Base,
		ImplementedMax: c.ImplementedMax(),
		Contexts:       c.Contexts(),
		Serviced:       log,
	}
	for _, h := range hs {
		r.Harts = append(r.Harts, HartReport{
			ID:        h.ID(),
			Context:   h.Context(),
			Threshold: c.Threshold(h.Context()),
		})
	}
	if sim != nil {
		for _, ev := range sim.PLIC.Events() {
			r.Events = append(r.Events, fmt.Sprintf("%s context=%d source=%d", ev.Kind, ev.Context, ev.Source))
		}
	}
	return r
}

func (r Report) write(w io.Writer, format string) error {
	if format == "" {
		format = "yaml"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "text"
		}
	}

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return enc.Close()
	case "text":
		return r.writeText(w)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func (r Report) writeText(w io.Writer) error {
	fmt.Fprintf(w, "platform %s (%s)\n", r.Platform, r.Mode)
	fmt.Fprintf(w, "plic at 0x%x: %d sources, %d contexts\n\n", r.Base, r.ImplementedMax, r.Contexts)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HART\tCONTEXT\tTHRESHOLD")
	for _, h := range r.Harts {
		fmt.Fprintf(tw, "%d\t%d\t%d\n", h.ID, h.Context, h.Threshold)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Serviced) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "HART\tSOURCE\tDISPOSITION")
		for _, s := range r.Serviced {
			fmt.Fprintf(tw, "%d\t%d\t%s\n", s.Hart, s.Source, s.Disposition)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(r.Events) > 0 {
		fmt.Fprintln(w)
		for _, ev := range r.Events {
			fmt.Fprintln(w, ev)
		}
	}
	if r.Rounds > 0 {
		fmt.Fprintf(w, "\n%d rounds, %s per round\n", r.Rounds, r.MeanRound)
	}
	return nil
}
