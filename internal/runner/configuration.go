package runner

import (
	"strconv"
	"strings"

	"github.com/signalnine/motifsweep/internal/result"
)

// Configuration is one point of the sweep.
type Configuration struct {
	Model      string
	Activation string
	Scale      float64
	HasScale   bool
	Trial      int
}

// BaseName identifies the configuration across its trials, e.g.
// cnn-deep_relu or cnn-deep_0.5.
func (c Configuration) BaseName() string {
	parts := []string{c.Model}
	if c.Activation != "" {
		parts = append(parts, c.Activation)
	}
	if c.HasScale {
		parts = append(parts, result.FormatScale(c.Scale))
	}
	return strings.Join(parts, "_")
}

func (c Configuration) Name() string {
	return c.BaseName() + "_" + strconv.Itoa(c.Trial)
}

func (c Configuration) ScalePtr() *float64 {
	if !c.HasScale {
		return nil
	}
	s := c.Scale
	return &s
}

// Enumerate expands the sweep dimensions in nested order: model slowest,
// then activation, then scale, then trial. An empty activation or scale
// list contributes a single absent value.
func Enumerate(models, activations []string, scales []float64, trials int) []Configuration {
	acts := activations
	if len(acts) == 0 {
		acts = []string{""}
	}
	type scale struct {
		v   float64
		set bool
	}
	var scs []scale
	for _, s := range scales {
		scs = append(scs, scale{s, true})
	}
	if len(scs) == 0 {
		scs = []scale{{}}
	}

	var out []Configuration
	for _, m := range models {
		for _, a := range acts {
			for _, s := range scs {
				for t := 0; t < trials; t++ {
					out = append(out, Configuration{Model: m, Activation: a, Scale: s.v, HasScale: s.set, Trial: t})
				}
			}
		}
	}
	return out
}

// Filter keeps configurations matching model and activation; empty
// arguments match everything.
func Filter(configs []Configuration, model, activation string) []Configuration {
	var out []Configuration
	for _, c := range configs {
		if model != "" && c.Model != model {
			continue
		}
		if activation != "" && c.Activation != activation {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Bases returns the distinct base names of configs in first-seen order
// along with each one's trial count.
func Bases(configs []Configuration) ([]string, map[string]int) {
	var order []string
	counts := make(map[string]int)
	for _, c := range configs {
		b := c.BaseName()
		if counts[b] == 0 {
			order = append(order, b)
		}
		counts[b]++
	}
	return order, counts
}
