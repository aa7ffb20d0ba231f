// Package export renders unit positions for operators and spreadsheets.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/kilianp07/fleettrack/core/fleet"
)

// Formats accepted by Write.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

var csvHeader = []string{"unit_id", "name", "lat", "lon", "speed_kmh", "course", "altitude", "satellites", "time"}

// Write renders positions in format.
func Write(w io.Writer, format string, positions []fleet.Position) error {
	switch format {
	case FormatTable, "":
		return WriteTable(w, positions)
	case FormatCSV:
		return WriteCSV(w, positions)
	case FormatJSON:
		return WriteJSON(w, positions)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// WriteJSON writes positions as a JSON array; nil becomes [].
func WriteJSON(w io.Writer, positions []fleet.Position) error {
	if positions == nil {
		positions = []fleet.Position{}
	}
	return json.NewEncoder(w).Encode(positions)
}

// WriteCSV writes positions with a header row.
func WriteCSV(w io.Writer, positions []fleet.Position) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range positions {
		rec := []string{
			strconv.FormatInt(p.UnitID, 10),
			p.Name,
			formatFloat(p.Lat),
			formatFloat(p.Lon),
			formatFloat(p.SpeedKMH),
			formatFloat(p.Course),
			formatFloat(p.Altitude),
			strconv.Itoa(p.Satellites),
			p.Time.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable writes an aligned, human readable listing.
func WriteTable(w io.Writer, positions []fleet.Position) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLAT\tLON\tSPEED\tLAST FIX")
	for _, p := range positions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			p.UnitID, p.Name,
			strconv.FormatFloat(p.Lat, 'f', 5, 64),
			strconv.FormatFloat(p.Lon, 'f', 5, 64),
			strconv.FormatFloat(p.SpeedKMH, 'f', 0, 64),
			p.Time.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
