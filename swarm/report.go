package swarm

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSVHeader is the header row written by WriteCSV.
var CSVHeader = []string{"x", "cost", "infeasibility", "pBest", "pBest_cost", "pBest_infeasibility"}

// Info writes a human readable dump of p's full state to w.
func (p *Particle) Info(w io.Writer) error {
	_, err := fmt.Fprintf(w, "particle %v:\n"+
		"\tcost = %v\n"+
		"\tinfeasibility = %v\n"+
		"\tx = (%v)\n"+
		"\tv = (%v)\n"+
		"\tpBest:\n"+
		"\t\tcost = %v\n"+
		"\t\tinfeasibility = %v\n"+
		"\t\tx = (%v)\n",
		p.Id, p.Cost, p.Infeas, joinvec(p.Pos(), ", "), joinvec(p.Vel, ", "),
		p.Best.Cost, p.Best.Infeas, joinvec(p.Best.Pos(), ", "))
	return err
}

func (p *Particle) csvRecord() []string {
	return []string{
		joinvec(p.Pos(), ","),
		ftoa(p.Cost),
		ftoa(p.Infeas),
		joinvec(p.Best.Pos(), ","),
		ftoa(p.Best.Cost),
		ftoa(p.Best.Infeas),
	}
}

// WriteCSV writes one row per particle, preceded by CSVHeader.  Vector
// columns hold comma separated values and are quoted.
func WriteCSV(w io.Writer, particles ...*Particle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, p := range particles {
		if err := cw.Write(p.csvRecord()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func joinvec(v []float64, sep string) string {
	s := make([]string, len(v))
	for i, x := range v {
		s[i] = ftoa(x)
	}
	return strings.Join(s, sep)
}
