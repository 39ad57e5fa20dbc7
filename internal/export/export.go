// Package export writes check results as JSON or CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/iDeFi-AI/api-v2/internal/check"
	"github.com/iDeFi-AI/api-v2/internal/risk"
)

var csvHeader = []string{"address", "status", "description", "grandparent", "parents"}

// Format selects the output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q (use json|csv)", s)
	}
}

// Write encodes rep in format f.
func Write(w io.Writer, f Format, rep *check.Report) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, rep.Records)
	case FormatJSON:
		return WriteJSON(w, rep)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

func WriteJSON(w io.Writer, rep *check.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// WriteCSV writes one row per record. Parents are joined with ';'.
func WriteCSV(w io.Writer, records []risk.AddressRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{r.Address, r.Status.String(), r.Description, r.Grandparent, strings.Join(r.Parents, ";")}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
