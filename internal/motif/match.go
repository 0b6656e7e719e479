package motif

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CommentRows is the number of trailing '#' lines Tomtom appends to its
// table. They are read as rows, so they are subtracted from the count of
// unique query identifiers.
const CommentRows = 3

// Hit is one row of a Tomtom table.
type Hit struct {
	QueryID  string
	TargetID string
	QValue   float64
}

// Table is a parsed tomtom.tsv.
type Table struct {
	Hits     []Hit
	Comments []string
}

// UniqueQueries counts distinct Query_ID column values, comment rows included.
func (t *Table) UniqueQueries() int {
	seen := make(map[string]bool)
	for _, h := range t.Hits {
		seen[h.QueryID] = true
	}
	for _, c := range t.Comments {
		seen[c] = true
	}
	return len(seen)
}

// ParseTomtom reads a Tomtom tab-separated result table.
func ParseTomtom(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return nil, fmt.Errorf("%s: empty table", path)
	}
	header := strings.Split(strings.TrimRight(sc.Text(), "\r"), "\t")
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	qi, ok1 := col["Query_ID"]
	ti, ok2 := col["Target_ID"]
	vi, ok3 := col["q-value"]
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("%s: header missing Query_ID, Target_ID or q-value", path)
	}
	need := max(qi, ti, vi)

	t := &Table{}
	line := 1
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if strings.HasPrefix(text, "#") {
			t.Comments = append(t.Comments, text)
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) <= need {
			return nil, fmt.Errorf("%s:%d: expected at least %d columns, got %d", path, line, need+1, len(fields))
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(fields[vi]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: q-value: %w", path, line, err)
		}
		t.Hits = append(t.Hits, Hit{QueryID: fields[qi], TargetID: fields[ti], QValue: q})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return t, nil
}

// Status tells a scored table apart from missing match data.
type Status int

const (
	Unavailable Status = iota
	Matched
)

func (s Status) String() string {
	if s == Matched {
		return "matched"
	}
	return "unavailable"
}

func (s Status) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// Result holds the match statistics of one exported filter bank.
type Result struct {
	Status Status `json:"status"`
	Err    error  `json:"-"`

	// MatchAny is the fraction of filters with any database hit.
	MatchAny float64 `json:"match_any"`
	// MatchFraction is the fraction of filters whose best hit is a reference group.
	MatchFraction float64 `json:"match_fraction"`
	// Coverage is the fraction of reference groups hit by at least one filter.
	Coverage float64 `json:"coverage"`
	// BestQ is the minimum q-value per reference group, 1 when unmatched.
	BestQ []float64 `json:"best_q"`
	// FilterQ and FilterGroup are each filter's best q-value and group index (-1 when none).
	FilterQ     []float64 `json:"filter_q,omitempty"`
	FilterGroup []int     `json:"filter_group,omitempty"`
}

// ErrFilterIndex reports a Query_ID that does not name a filter of the bank.
var ErrFilterIndex = errors.New("query id is not a filter of the bank")

func filterIndex(queryID string, size int) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(queryID, "filter"))
	if err != nil || !strings.HasPrefix(queryID, "filter") || n < 0 || n >= size {
		return 0, fmt.Errorf("%q: %w", queryID, ErrFilterIndex)
	}
	return n, nil
}

func unavailable(groups []Group, err error) Result {
	return Result{Status: Unavailable, Err: err, BestQ: make([]float64, len(groups))}
}

// Match scores the Tomtom table at path against groups for a bank of size
// filters. A missing or malformed table yields an Unavailable result with
// every statistic zero.
func Match(path string, groups []Group, size int) Result {
	if size <= 0 {
		return unavailable(groups, fmt.Errorf("filter bank size must be positive, got %d", size))
	}
	t, err := ParseTomtom(path)
	if err != nil {
		return unavailable(groups, err)
	}
	return Score(t, groups, size)
}

// Score computes the match statistics of a parsed table.
func Score(t *Table, groups []Group, size int) Result {
	byID := index(groups)
	filterQ := make([]float64, size)
	filterGroup := make([]int, size)
	for i := range filterQ {
		filterQ[i] = 1
		filterGroup[i] = -1
	}
	for _, h := range t.Hits {
		fi, err := filterIndex(h.QueryID, size)
		if err != nil {
			return unavailable(groups, err)
		}
		g, ok := byID[h.TargetID]
		if !ok {
			continue
		}
		if h.QValue < filterQ[fi] {
			filterQ[fi] = h.QValue
			filterGroup[fi] = g
		}
	}

	r := Result{
		Status:      Matched,
		BestQ:       make([]float64, len(groups)),
		FilterQ:     filterQ,
		FilterGroup: filterGroup,
	}
	for i := range r.BestQ {
		r.BestQ[i] = 1
	}
	var matched int
	for fi, g := range filterGroup {
		if g < 0 {
			continue
		}
		matched++
		r.BestQ[g] = min(r.BestQ[g], filterQ[fi])
	}
	r.MatchFraction = float64(matched) / float64(size)

	var covered int
	for _, q := range r.BestQ {
		if q < 1 {
			covered++
		}
	}
	if len(groups) > 0 {
		r.Coverage = float64(covered) / float64(len(groups))
	}
	r.MatchAny = max(float64(t.UniqueQueries()-CommentRows), 0) / float64(size)
	return r
}
