package qtc

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/qtcstream/qtcstream/creator/internal/observation"
)

var csvHeader = []string{"x1", "y1", "x2", "y2"}

// ReadCSV reads an offline history: a header row x1,y1,x2,y2 followed by one
// row per sample, observer in x1/y1 and entity in x2/y2.
func ReadCSV(r io.Reader) ([]observation.Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("qtc: read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("qtc: read csv: empty input")
	}

	for i, h := range records[0] {
		if strings.ToLower(strings.TrimSpace(h)) != csvHeader[i] {
			return nil, fmt.Errorf("qtc: read csv: invalid header, expected %s", strings.Join(csvHeader, ","))
		}
	}

	samples := make([]observation.Sample, 0, len(records)-1)
	for i, record := range records[1:] {
		var cols [4]float64
		for c, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("qtc: read csv: line %d %s: %w", i+2, csvHeader[c], err)
			}
			cols[c] = v
		}
		samples = append(samples, observation.SampleFromColumns(cols))
	}
	return samples, nil
}
