package waypoints

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrTooFewRows is returned when a file has fewer than two usable rows
var ErrTooFewRows = errors.New("csv needs at least an origin and a destination row")

// headerCells are the column titles that mark a first row as a header
var headerCells = map[string]bool{
	"nome":      true,
	"name":      true,
	"latitude":  true,
	"longitude": true,
}

// ParseCSV reads "name, latitude, longitude" rows into a Form. The first
// data row becomes the origin, the last the destination and the rows between
// become stops in file order. Rows with fewer than three cells are skipped.
// Coordinates are not validated here; Collect does that.
func ParseCSV(r io.Reader) (*Form, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	var rows [][]string
	for first := true; ; first = false {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if first && isHeader(record) {
			continue
		}
		if len(record) < 3 {
			continue
		}
		rows = append(rows, record)
	}

	if len(rows) < 2 {
		return nil, ErrTooFewRows
	}

	form := NewForm()
	form.Origin.Name, form.Origin.Coordinates = rowField(rows[0])
	for _, row := range rows[1 : len(rows)-1] {
		stop := form.AddStop()
		name, coordinates := rowField(row)
		form.Stops[len(form.Stops)-1] = Field{ID: stop.ID, Name: name, Coordinates: coordinates}
	}
	form.Destination.Name, form.Destination.Coordinates = rowField(rows[len(rows)-1])

	return form, nil
}

// isHeader reports whether any cell is a known column title
func isHeader(record []string) bool {
	for _, cell := range record {
		if headerCells[strings.ToLower(strings.TrimSpace(cell))] {
			return true
		}
	}
	return false
}

// rowField turns a CSV row into a display name and "lat, lng" text
func rowField(row []string) (name, coordinates string) {
	name = strings.TrimSpace(row[0])
	coordinates = strings.TrimSpace(row[1]) + ", " + strings.TrimSpace(row[2])
	return name, coordinates
}
