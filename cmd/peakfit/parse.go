package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// profileData holds the columns of one data file.
type profileData struct {
	X, Y, W []float64
}

func parseFile(path string) (profileData, error) {
	f, err := os.Open(path)
	if err != nil {
		return profileData{}, err
	}
	defer f.Close()

	d, err := parseProfile(f)
	if err != nil {
		return profileData{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// parseProfile reads whitespace separated "x y [w]" lines. Blank lines and
// lines starting with # are skipped. Points without a weight get weight 1.
func parseProfile(r io.Reader) (profileData, error) {
	var d profileData
	weighted := false

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields) > 3 {
			return profileData{}, fmt.Errorf("line %d: want 2 or 3 columns, got %d", lineNo, len(fields))
		}
		var vals [3]float64
		vals[2] = 1
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return profileData{}, fmt.Errorf("line %d: %w", lineNo, err)
			}
			vals[i] = v
		}
		weighted = weighted || len(fields) == 3

		d.X = append(d.X, vals[0])
		d.Y = append(d.Y, vals[1])
		d.W = append(d.W, vals[2])
	}
	if err := scanner.Err(); err != nil {
		return profileData{}, err
	}
	if !weighted {
		d.W = nil
	}
	return d, nil
}

// cut drops low points from the start and high points from the end.
func (d profileData) cut(low, high uint) (profileData, error) {
	n := uint(len(d.X))
	if low+high >= n {
		return profileData{}, fmt.Errorf("cutting %d+%d points leaves nothing of %d", low, high, n)
	}
	out := profileData{X: d.X[low : n-high], Y: d.Y[low : n-high]}
	if d.W != nil {
		out.W = d.W[low : n-high]
	}
	return out, nil
}
