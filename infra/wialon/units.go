package wialon

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilianp07/fleettrack/core/fleet"
	"github.com/kilianp07/fleettrack/core/telemetry"
)

// SearchItemsService lists provider items matching a search spec.
const SearchItemsService = "core/search_items"

const (
	flagBase         = 0x1
	flagLastPosition = 0x400
)

type searchSpec struct {
	ItemsType     string `json:"itemsType"`
	PropName      string `json:"propName"`
	PropValueMask string `json:"propValueMask"`
	SortType      string `json:"sortType"`
}

type searchParams struct {
	Spec  searchSpec `json:"spec"`
	Force int        `json:"force"`
	Flags int        `json:"flags"`
	From  int        `json:"from"`
	To    int        `json:"to"`
}

// SearchUnitsParams builds core/search_items parameters listing every unit
// whose name matches mask ("*" for all) with its last known position.
func SearchUnitsParams(mask string) json.RawMessage {
	if mask == "" {
		mask = "*"
	}
	p := searchParams{
		Spec: searchSpec{
			ItemsType:     "avl_unit",
			PropName:      "sys_name",
			PropValueMask: mask,
			SortType:      "sys_name",
		},
		Force: 1,
		Flags: flagBase | flagLastPosition,
	}
	b, _ := json.Marshal(p)
	return b
}

type unitPos struct {
	Time     int64   `json:"t"`
	Lat      float64 `json:"y"`
	Lon      float64 `json:"x"`
	Course   float64 `json:"c"`
	Altitude float64 `json:"z"`
	Speed    float64 `json:"s"`
	Sats     int     `json:"sc"`
}

type unitItem struct {
	ID   int64    `json:"id"`
	Name string   `json:"nm"`
	Pos  *unitPos `json:"pos"`
}

type searchResult struct {
	Items []unitItem `json:"items"`
}

// DecodeUnits extracts unit positions from a core/search_items response.
// Units that never reported a position are skipped.
func DecodeUnits(resp telemetry.Response) ([]fleet.Position, error) {
	if code, ok := resp.ErrorCode(); ok && telemetry.Classify(code) != telemetry.ClassNone {
		return nil, fmt.Errorf("search units: provider error %d %s", code, resp.Reason())
	}
	var res searchResult
	if err := json.Unmarshal(resp, &res); err != nil {
		return nil, &telemetry.ProtocolError{Service: SearchItemsService, Msg: err.Error()}
	}
	out := make([]fleet.Position, 0, len(res.Items))
	for _, it := range res.Items {
		if it.Pos == nil {
			continue
		}
		out = append(out, fleet.Position{
			UnitID:     it.ID,
			Name:       it.Name,
			Lat:        it.Pos.Lat,
			Lon:        it.Pos.Lon,
			SpeedKMH:   it.Pos.Speed,
			Course:     it.Pos.Course,
			Altitude:   it.Pos.Altitude,
			Satellites: it.Pos.Sats,
			Time:       time.Unix(it.Pos.Time, 0).UTC(),
		})
	}
	return out, nil
}
