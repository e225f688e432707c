package directory

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"docentdispatch/internal/model"
)

// ParseCSV reads bulk-import rows from CSV with the header
// email,firstName,lastName,phone,role. Column order follows the header;
// phone is optional.
func ParseCSV(r io.Reader) ([]CreateInput, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{"email", "firstname", "lastname", "role"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("csv: missing %s column", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	rows := make([]CreateInput, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		row := CreateInput{
			Email:     strings.ToLower(field(record, "email")),
			FirstName: field(record, "firstname"),
			LastName:  field(record, "lastname"),
			Role:      model.Role(field(record, "role")),
		}
		if phone := field(record, "phone"); phone != "" {
			row.Phone = &phone
		}
		rows = append(rows, row)
	}
	return rows, nil
}
