package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const agentStateSchemaURL = "agent-state.schema.json"

const agentStateSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "version": {"type": "integer"},
    "region": {"type": "string"},
    "regions": {"type": "object"},
    "remove_unlisted": {"type": "boolean"},
    "uav": {
      "type": "object",
      "properties": {
        "x": {"type": "number"},
        "y": {"type": "number"},
        "z": {"type": "number"}
      }
    },
    "geodetic": {"$ref": "#/definitions/geodetic"},
    "transmitter": {
      "type": "object",
      "properties": {
        "geodetic": {"$ref": "#/definitions/geodetic"}
      }
    },
    "origin": {"$ref": "#/definitions/geodetic"},
    "bbox": {
      "type": "object",
      "required": ["min_lat", "max_lat", "min_lon", "max_lon"],
      "properties": {
        "min_lat": {"type": "number"},
        "max_lat": {"type": "number"},
        "min_lon": {"type": "number"},
        "max_lon": {"type": "number"}
      }
    }
  },
  "definitions": {
    "geodetic": {
      "type": "object",
      "required": ["lat", "lon"],
      "properties": {
        "lat": {"type": "number", "minimum": -90, "maximum": 90},
        "lon": {"type": "number", "minimum": -180, "maximum": 180},
        "h": {"type": "number"}
      }
    }
  }
}`

// Decoder validates and decodes the watched agent state file.
type Decoder struct {
	schema *jsonschema.Schema
}

func NewDecoder() (*Decoder, error) {
	schema, err := jsonschema.CompileString(agentStateSchemaURL, agentStateSchema)
	if err != nil {
		return nil, fmt.Errorf("compile agent state schema: %w", err)
	}
	return &Decoder{schema: schema}, nil
}

type wireState struct {
	Version        int            `json:"version"`
	Region         *string        `json:"region"`
	Regions        orderedActions `json:"regions"`
	RemoveUnlisted bool           `json:"remove_unlisted"`
	UAV            *wireVec       `json:"uav"`
	Geodetic       *wireGeodetic  `json:"geodetic"`
	Transmitter    *struct {
		Geodetic *wireGeodetic `json:"geodetic"`
	} `json:"transmitter"`
	Origin *wireGeodetic `json:"origin"`
	BBox   *wireBBox     `json:"bbox"`
}

type wireGeodetic struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	H   float64 `json:"h"`
}

type wireBBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

type wireVec struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

type rawAction struct {
	Key   string
	Value string
}

// orderedActions keeps the document order of the "regions" object.
type orderedActions struct {
	present bool
	entries []rawAction
}

func (o *orderedActions) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("regions must be an object")
	}
	o.present = true
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var value any
		if err = dec.Decode(&value); err != nil {
			return err
		}
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprint(value)
		}
		o.entries = append(o.entries, rawAction{Key: key, Value: s})
	}
	_, err = dec.Token()
	return err
}

// Decode validates value (the generic decoding of raw) against the schema and
// decodes raw into an AgentState. value may be nil, in which case raw is parsed.
func (d *Decoder) Decode(raw []byte, value any) (AgentState, error) {
	if value == nil {
		if err := json.Unmarshal(raw, &value); err != nil {
			return AgentState{}, fmt.Errorf("%w: %v", ErrParse, err)
		}
	}
	if err := d.schema.Validate(value); err != nil {
		return AgentState{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var w wireState
	if err := json.Unmarshal(raw, &w); err != nil {
		return AgentState{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	state := AgentState{Version: w.Version}
	switch {
	case w.Regions.present:
		declared := &DeclaredState{RemoveUnlisted: w.RemoveUnlisted}
		for _, e := range w.Regions.entries {
			id := NormalizeID(e.Key)
			action, err := ParseAction(e.Value)
			if err != nil {
				declared.Rejected = append(declared.Rejected, Rejection{ID: id, Value: e.Value, Err: err})
				continue
			}
			declared.Targets = append(declared.Targets, Target{ID: id, Action: action})
		}
		state.Regions = declared
	case w.Region != nil:
		id := NormalizeID(*w.Region)
		if id == "" {
			return AgentState{}, fmt.Errorf("%w: empty region", ErrParse)
		}
		state.Regions = &DeclaredState{
			Targets: []Target{{ID: id, Action: ActionShow}},
			Legacy:  true,
		}
	}

	if w.UAV != nil {
		pos := &AgentPosition{}
		if w.UAV.X != nil {
			pos.X = *w.UAV.X
		}
		if w.UAV.Y != nil {
			pos.Y = *w.UAV.Y
		}
		if w.UAV.Z != nil {
			pos.Z, pos.HasZ = *w.UAV.Z, true
		}
		state.Agent = pos
	}

	fix, err := w.geodeticFix()
	if err != nil {
		return AgentState{}, err
	}
	state.Geodetic = fix
	return state, nil
}

// geodeticFix prefers transmitter.geodetic over geodetic, and an explicit
// origin over the bbox centre at height zero.
func (w wireState) geodeticFix() (*GeodeticFix, error) {
	g := w.Geodetic
	if w.Transmitter != nil && w.Transmitter.Geodetic != nil {
		g = w.Transmitter.Geodetic
	}
	if g == nil {
		return nil, nil
	}

	fix := &GeodeticFix{Position: Geodetic{Lat: g.Lat, Lon: g.Lon, H: g.H}}
	switch {
	case w.Origin != nil:
		fix.Origin = Geodetic{Lat: w.Origin.Lat, Lon: w.Origin.Lon, H: w.Origin.H}
	case w.BBox != nil:
		fix.Origin = Geodetic{
			Lat: (w.BBox.MinLat + w.BBox.MaxLat) / 2,
			Lon: (w.BBox.MinLon + w.BBox.MaxLon) / 2,
		}
	default:
		return nil, fmt.Errorf("%w: geodetic position needs an origin or a bbox", ErrParse)
	}
	return fix, nil
}
