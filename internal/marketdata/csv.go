package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"kalmanarb-go/internal/signal"
)

const (
	columnX    = "asset_x"
	columnY    = "asset_y"
	columnBeta = "beta_true"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// LoadCSV reads a price file whose first column is the bar timestamp and which carries
// asset_x and asset_y columns (beta_true optional). Rows are sorted ascending by time.
func LoadCSV(path string) (Series, error) {
	file, err := os.Open(path)
	if err != nil {
		return Series{}, fmt.Errorf("open prices: %w", err)
	}
	defer file.Close()

	series, err := ReadCSV(file)
	if err != nil {
		return Series{}, fmt.Errorf("%s: %w", path, err)
	}
	return series, nil
}

// ReadCSV parses the format accepted by LoadCSV.
func ReadCSV(r io.Reader) (Series, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Series{}, fmt.Errorf("%w: empty file", ErrInvalidData)
	}
	if err != nil {
		return Series{}, fmt.Errorf("read header: %w", err)
	}

	idxX, idxY, idxBeta := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case columnX:
			idxX = i
		case columnY:
			idxY = i
		case columnBeta:
			idxBeta = i
		}
	}
	if idxX <= 0 || idxY <= 0 {
		return Series{}, fmt.Errorf("%w: header %v needs a leading timestamp column plus %s and %s", ErrInvalidData, header, columnX, columnY)
	}

	type row struct {
		obs  signal.Observation
		beta float64
	}
	var rows []row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Series{}, fmt.Errorf("%w: line %d: %v", ErrInvalidData, line, err)
		}
		ts, err := parseTimestamp(record[0])
		if err != nil {
			return Series{}, fmt.Errorf("%w: line %d: %v", ErrInvalidData, line, err)
		}
		px, err := parsePrice(record[idxX])
		if err != nil {
			return Series{}, fmt.Errorf("%w: line %d %s: %v", ErrInvalidData, line, columnX, err)
		}
		py, err := parsePrice(record[idxY])
		if err != nil {
			return Series{}, fmt.Errorf("%w: line %d %s: %v", ErrInvalidData, line, columnY, err)
		}
		r := row{obs: signal.Observation{Ts: ts, PriceY: py, PriceX: px}}
		if idxBeta > 0 {
			r.beta, err = parsePrice(record[idxBeta])
			if err != nil {
				return Series{}, fmt.Errorf("%w: line %d %s: %v", ErrInvalidData, line, columnBeta, err)
			}
		}
		rows = append(rows, r)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].obs.Ts.Before(rows[j].obs.Ts) })

	series := Series{Observations: make([]signal.Observation, len(rows))}
	if idxBeta > 0 {
		series.BetaTrue = make([]float64, len(rows))
	}
	for i, r := range rows {
		series.Observations[i] = r.obs
		if series.BetaTrue != nil {
			series.BetaTrue[i] = r.beta
		}
	}
	if err := series.Validate(); err != nil {
		return Series{}, err
	}
	return series, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func parsePrice(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("missing value")
	}
	return strconv.ParseFloat(raw, 64)
}

// WriteCSV emits the series in the format read by ReadCSV.
func WriteCSV(w io.Writer, s Series) error {
	writer := csv.NewWriter(w)
	header := []string{"timestamp", columnX, columnY}
	withBeta := s.HasBetaTrue()
	if withBeta {
		header = append(header, columnBeta)
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for i, obs := range s.Observations {
		record := []string{
			obs.Ts.Format(time.RFC3339Nano),
			strconv.FormatFloat(obs.PriceX, 'g', -1, 64),
			strconv.FormatFloat(obs.PriceY, 'g', -1, 64),
		}
		if withBeta {
			record = append(record, strconv.FormatFloat(s.BetaTrue[i], 'g', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// SaveCSV writes the series to path, creating parent directories.
func SaveCSV(path string, s Series) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create prices: %w", err)
	}
	if err := WriteCSV(file, s); err != nil {
		file.Close()
		return fmt.Errorf("write prices: %w", err)
	}
	return file.Close()
}
