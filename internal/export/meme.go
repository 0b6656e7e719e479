// Package export turns learned first-layer filters into motif files and a
// filter grid rendering.
package export

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Filter is a position probability matrix: one A, C, G, T row per position.
type Filter [][4]float64

// Background is the uniform nucleotide background written to every motif file.
var Background = [4]float64{0.25, 0.25, 0.25, 0.25}

// InformationContent returns the per-position information content in bits,
// log2(4) + sum(p*log2(p+1e-7)).
func InformationContent(f Filter) []float64 {
	ic := make([]float64, len(f))
	for i, row := range f {
		v := 2.0
		for _, p := range row {
			v += p * math.Log2(p+1e-7)
		}
		ic[i] = v
	}
	return ic
}

// Clip trims every filter to the span of positions whose information content
// exceeds threshold, widened by pad positions on each side and clamped to the
// filter. Filters with no informative position are returned whole.
func Clip(filters []Filter, threshold float64, pad int) []Filter {
	clipped := make([]Filter, len(filters))
	for i, f := range filters {
		first, last := -1, -1
		for pos, ic := range InformationContent(f) {
			if ic > threshold {
				if first < 0 {
					first = pos
				}
				last = pos
			}
		}
		if first < 0 {
			clipped[i] = f
			continue
		}
		start := max(first-pad, 0)
		end := min(last+pad+1, len(f))
		clipped[i] = f[start:end]
	}
	return clipped
}

// EncodeMEME writes filters in MEME version 4 text format, one motif per
// filter named filter<index>.
func EncodeMEME(w io.Writer, filters []Filter) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "MEME version 4")
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "ALPHABET= ACGT")
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "strands: + -")
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Background letter frequencies:")
	fmt.Fprintf(bw, "A %.4f C %.4f G %.4f T %.4f \n", Background[0], Background[1], Background[2], Background[3])
	fmt.Fprintln(bw)
	for j, f := range filters {
		fmt.Fprintf(bw, "MOTIF filter%d \n", j)
		fmt.Fprintf(bw, "letter-probability matrix: alength= 4 w= %d nsites= %d \n", len(f), len(f))
		for _, row := range f {
			fmt.Fprintf(bw, "%.4f %.4f %.4f %.4f \n", row[0], row[1], row[2], row[3])
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// WriteMEME writes filters to path, creating parent directories.
func WriteMEME(path string, filters []Filter) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating motif dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating motif file: %w", err)
	}
	if err := EncodeMEME(f, filters); err != nil {
		f.Close()
		return fmt.Errorf("writing motif file %s: %w", path, err)
	}
	return f.Close()
}
