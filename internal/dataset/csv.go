package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

const (
	labelBuggy = "Yes"
	labelClean = "No"
)

// WriteCSV writes the header and rows to w.
func WriteCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(record(row)); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteFile writes rows to path, creating parent directories.
func WriteFile(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func record(row Row) []string {
	label := labelClean
	if row.Buggy {
		label = labelBuggy
	}
	return []string{
		strconv.Itoa(row.Version),
		row.File,
		strconv.FormatInt(row.LOC, 10),
		strconv.Itoa(row.LOCTouched),
		strconv.Itoa(row.NR),
		strconv.Itoa(row.NAuth),
		strconv.Itoa(row.LOCAdded),
		strconv.Itoa(row.MaxLOCAdded),
		formatFloat(row.AvgLOCAdded),
		strconv.Itoa(row.Churn),
		strconv.Itoa(row.MaxChurn),
		formatFloat(row.AvgChurn),
		strconv.Itoa(row.ChgSetSize),
		strconv.Itoa(row.MaxChgSet),
		formatFloat(row.AvgChgSet),
		strconv.FormatInt(row.Age, 10),
		strconv.FormatInt(row.WeightedAge, 10),
		strconv.Itoa(row.NFix),
		label,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReadCSV parses a dataset written by WriteCSV.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(Header)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("missing header")
	}
	for i, name := range Header {
		if records[0][i] != name {
			return nil, fmt.Errorf("unexpected column %d: %q, want %q", i+1, records[0][i], name)
		}
	}

	rows := make([]Row, 0, len(records)-1)
	for n, rec := range records[1:] {
		row, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadFile parses the dataset at path.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

type fieldParser struct {
	rec []string
	err error
}

func (p *fieldParser) int(i int) int {
	if p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(p.rec[i])
	if err != nil {
		p.err = fmt.Errorf("%s: %w", Header[i], err)
	}
	return v
}

func (p *fieldParser) int64(i int) int64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(p.rec[i], 10, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", Header[i], err)
	}
	return v
}

func (p *fieldParser) float(i int) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(p.rec[i], 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", Header[i], err)
	}
	return v
}

func parseRecord(rec []string) (Row, error) {
	p := &fieldParser{rec: rec}
	row := Row{
		Version:     p.int(0),
		File:        rec[1],
		LOC:         p.int64(2),
		LOCTouched:  p.int(3),
		NR:          p.int(4),
		NAuth:       p.int(5),
		LOCAdded:    p.int(6),
		MaxLOCAdded: p.int(7),
		AvgLOCAdded: p.float(8),
		Churn:       p.int(9),
		MaxChurn:    p.int(10),
		AvgChurn:    p.float(11),
		ChgSetSize:  p.int(12),
		MaxChgSet:   p.int(13),
		AvgChgSet:   p.float(14),
		Age:         p.int64(15),
		WeightedAge: p.int64(16),
		NFix:        p.int(17),
	}
	switch rec[18] {
	case labelBuggy:
		row.Buggy = true
	case labelClean:
	default:
		if p.err == nil {
			p.err = fmt.Errorf("Buggy: unknown label %q", rec[18])
		}
	}
	return row, p.err
}
