// FILE: loader_csv.go
// Package historystore – CSV-backed Loader.
//
// Generalises a single-asset CSV candle loader into a multi-asset archive
// shape: one CSV per (ohlcv_field, granularity) with columns timestamp,
// asset_1, asset_2, .... Useful for local fixtures and tests that don't
// need a database.
package historystore

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// CSVLoader reads one file per (field, granularity) pair.
type CSVLoader struct {
	// Files maps (granularity, field) -> path.
	Files map[Granularity]map[OHLCVField]string
}

// Load implements Loader.
func (l *CSVLoader) Load(referenceCoin string, granularities []Granularity) (*Cube, error) {
	frames := make(map[Granularity]*Frame, len(granularities))
	for _, g := range granularities {
		byField, ok := l.Files[g]
		if !ok {
			return nil, fmt.Errorf("historystore: csv loader has no files for granularity %s", g)
		}
		assets, rows, err := readAndMergeCSVFields(byField)
		if err != nil {
			return nil, fmt.Errorf("historystore: csv load %s: %w", g, err)
		}
		frame, err := NewFrame(g, referenceCoin, assets, rows)
		if err != nil {
			return nil, err
		}
		frames[g] = frame
	}
	return NewCube(frames), nil
}

func readAndMergeCSVFields(byField map[OHLCVField]string) ([]string, []Row, error) {
	rowsByTs := map[int64]map[OHLCVField]map[string]float64{}
	assetSet := map[string]bool{}

	for field, path := range byField {
		assets, data, err := readCandleCSV(path)
		if err != nil {
			return nil, nil, err
		}
		for _, a := range assets {
			assetSet[a] = true
		}
		for ts, vals := range data {
			if rowsByTs[ts] == nil {
				rowsByTs[ts] = map[OHLCVField]map[string]float64{}
			}
			rowsByTs[ts][field] = vals
		}
	}

	assets := make([]string, 0, len(assetSet))
	for a := range assetSet {
		assets = append(assets, a)
	}

	rows := make([]Row, 0, len(rowsByTs))
	for ts, vals := range rowsByTs {
		rows = append(rows, Row{TimestampMs: ts, Values: vals})
	}
	return assets, rows, nil
}

// readCandleCSV reads headers: time|timestamp, <asset1>, <asset2>, ...
func readCandleCSV(path string) ([]string, map[int64]map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var headers []string
	var assetCols []string
	data := map[int64]map[string]float64{}

	rowIdx := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if rowIdx == 0 {
			headers = rec
			for _, h := range headers[1:] {
				assetCols = append(assetCols, strings.TrimSpace(h))
			}
			rowIdx++
			continue
		}
		if len(rec) == 0 {
			continue
		}
		ts, err := parseTimeFlexible(strings.TrimSpace(rec[0]))
		if err != nil {
			continue
		}
		vals := make(map[string]float64, len(assetCols))
		for i, asset := range assetCols {
			ci := i + 1
			if ci >= len(rec) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[ci]), 64)
			if err != nil {
				continue
			}
			vals[asset] = v
		}
		data[ts.UnixMilli()] = vals
		rowIdx++
	}
	return assetCols, data, nil
}

// parseTimeFlexible supports RFC3339 or UNIX seconds timestamp columns.
func parseTimeFlexible(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time: %s", s)
}
