package ephemeris

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

// Report column layout: four date tokens, then the numeric columns.
const (
	primaryMinTokens   = 11 // date(4) elapsed alt lat lon vx vy vz
	dependentMinTokens = 7  // date(4) elapsed alt fuel [mass]
	colElapsed         = 4
	colAltitude        = 5
	colLatitude        = 6
	colLongitude       = 7
)

// ParseStats counts the rows a parse accepted and skipped. Duplicates are
// rows dropped after sorting because an earlier row had the same time.
type ParseStats struct {
	Accepted   int
	Skipped    int
	Duplicates int
}

// ParsePrimary parses a position report: the header line is discarded and
// every other non-blank row needs at least 11 tokens with a finite elapsed
// time, altitude in km, latitude and longitude. Bad rows are skipped and
// counted. The result is sorted by elapsed time; on duplicate times the
// row that came first wins. Altitudes are returned in metres.
func ParsePrimary(data []byte) ([]model.EphemerisRow, ParseStats, error) {
	var rows []model.EphemerisRow
	stats, err := scanRows(data, primaryMinTokens, func(fields []string) bool {
		v, ok := numbers(fields, colElapsed, colAltitude, colLatitude, colLongitude)
		if !ok {
			return false
		}
		rows = append(rows, model.EphemerisRow{Elapsed: v[0], Alt: v[1] * 1000, Lat: v[2], Lon: v[3]})
		return true
	})
	if err != nil {
		return nil, stats, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Elapsed < rows[j].Elapsed })
	out := rows[:0]
	for _, r := range rows {
		if n := len(out); n > 0 && out[n-1].Elapsed == r.Elapsed {
			stats.Duplicates++
			continue
		}
		out = append(out, r)
	}
	return out, stats, nil
}

// ParseDependent parses an altitude report: rows need at least 7 tokens
// with a finite elapsed time and altitude in km. Sorting, de-duplication
// and units follow ParsePrimary.
func ParseDependent(data []byte) ([]model.AltitudeRow, ParseStats, error) {
	var rows []model.AltitudeRow
	stats, err := scanRows(data, dependentMinTokens, func(fields []string) bool {
		v, ok := numbers(fields, colElapsed, colAltitude)
		if !ok {
			return false
		}
		rows = append(rows, model.AltitudeRow{Elapsed: v[0], Alt: v[1] * 1000})
		return true
	})
	if err != nil {
		return nil, stats, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Elapsed < rows[j].Elapsed })
	out := rows[:0]
	for _, r := range rows {
		if n := len(out); n > 0 && out[n-1].Elapsed == r.Elapsed {
			stats.Duplicates++
			continue
		}
		out = append(out, r)
	}
	return out, stats, nil
}

// maxLineLen bounds a report row. Longer lines are skipped.
const maxLineLen = 1 << 20

func scanRows(data []byte, minTokens int, accept func([]string) bool) (ParseStats, error) {
	var stats ParseStats
	r := bufio.NewReaderSize(bytes.NewReader(data), 64*1024)
	header := true
	for {
		raw, tooLong, err := readLine(r)
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return stats, fmt.Errorf("reading report: %w", err)
		}
		if eof && len(raw) == 0 && !tooLong {
			return stats, nil
		}
		switch {
		case header:
			header = false
		case tooLong:
			stats.Skipped++
		default:
			line := strings.TrimSpace(string(raw))
			if line == "" {
				break
			}
			fields := strings.Fields(line)
			if len(fields) < minTokens || !accept(fields) {
				stats.Skipped++
				break
			}
			stats.Accepted++
		}
		if eof {
			return stats, nil
		}
	}
}

// readLine returns the next line, terminator included. A line longer than
// maxLineLen is consumed whole and returned empty with tooLong set.
func readLine(r *bufio.Reader) ([]byte, bool, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong && len(line)+len(chunk) > maxLineLen {
			tooLong, line = true, nil
		}
		if !tooLong {
			line = append(line, chunk...)
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return line, tooLong, err
		}
	}
}

func numbers(fields []string, cols ...int) ([]float64, bool) {
	out := make([]float64, len(cols))
	for i, c := range cols {
		v, err := strconv.ParseFloat(fields[c], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
