package recorder

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

// Models lists every table the recorder migrates.
var Models = []interface{}{
	&Run{},
	&FrameRecord{},
	&GroundTrack{},
}

// Run is one playback session of the mission.
type Run struct {
	gorm.Model
	SessionID string         `json:"sessionId" gorm:"size:32;index"`
	Epoch     time.Time      `json:"epoch"`
	Bodies    datatypes.JSON `json:"bodies"` // []bodyInfo, grows as bodies are attached
}

// FrameRecord is one recorded frame. Body states are kept as a JSON array so
// the table shape does not depend on how many bodies are in the scene.
type FrameRecord struct {
	ID      uint           `json:"id" gorm:"primarykey"`
	RunID   uint           `json:"runId" gorm:"index:idx_run_elapsed"`
	Elapsed float64        `json:"elapsed" gorm:"index:idx_run_elapsed"`
	Instant time.Time      `json:"instant"`
	Phase   string         `json:"phase" gorm:"size:32"`
	Tracked string         `json:"tracked" gorm:"size:64"`
	Mode    string         `json:"mode" gorm:"size:8"`
	Bodies  datatypes.JSON `json:"bodies"`
}

// GroundTrack is a body's projected path stored as WKT.
type GroundTrack struct {
	ID     uint   `json:"id" gorm:"primarykey"`
	RunID  uint   `json:"runId" gorm:"index"`
	BodyID string `json:"bodyId" gorm:"size:64;index"`
	Points int    `json:"points"`
	WKT    string `json:"wkt" gorm:"type:text"`
}

type bodyInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Source string `json:"source"`
}

type bodyState struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Kind    string   `json:"kind"`
	Lon     float64  `json:"lon"`
	Lat     float64  `json:"lat"`
	Alt     float64  `json:"alt"`
	Heading *float64 `json:"heading,omitempty"`
	Pitch   *float64 `json:"pitch,omitempty"`
}

func bodiesToJSON(defs []model.BodyDefinition) (datatypes.JSON, error) {
	data, _, err := appendBodies(nil, defs)
	return data, err
}

// appendBodies adds the defs not yet listed in data and reports how many
// were new.
func appendBodies(data datatypes.JSON, defs []model.BodyDefinition) (datatypes.JSON, int, error) {
	infos, err := decodeBodies(data)
	if err != nil {
		return nil, 0, err
	}
	seen := make(map[string]bool, len(infos)+len(defs))
	for _, b := range infos {
		seen[b.ID] = true
	}
	added := 0
	for _, d := range defs {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		infos = append(infos, bodyInfo{ID: d.ID, Name: d.Name, Kind: d.Kind.String(), Source: d.Source.String()})
		added++
	}
	if data != nil && added == 0 {
		return data, 0, nil
	}
	out, err := json.Marshal(infos)
	if err != nil {
		return nil, 0, fmt.Errorf("encode bodies: %w", err)
	}
	return datatypes.JSON(out), added, nil
}

func decodeBodies(data datatypes.JSON) ([]bodyInfo, error) {
	infos := []bodyInfo{}
	if len(data) == 0 {
		return infos, nil
	}
	if err := json.Unmarshal(data, &infos); err != nil {
		return nil, fmt.Errorf("decode bodies: %w", err)
	}
	return infos, nil
}

// frameToRecord converts a frame into its row form.
func frameToRecord(runID uint, f model.Frame) (FrameRecord, error) {
	states := make([]bodyState, 0, len(f.Bodies))
	for _, b := range f.Bodies {
		s := bodyState{
			ID:   b.ID,
			Name: b.Name,
			Kind: b.Kind.String(),
			Lon:  b.Position.Lon,
			Lat:  b.Position.Lat,
			Alt:  b.Position.Alt,
		}
		if b.Orientation != nil {
			heading, pitch := b.Orientation.HeadingDeg, b.Orientation.PitchDeg
			s.Heading, s.Pitch = &heading, &pitch
		}
		states = append(states, s)
	}
	data, err := json.Marshal(states)
	if err != nil {
		return FrameRecord{}, fmt.Errorf("encode frame at %.3f: %w", f.Elapsed, err)
	}
	return FrameRecord{
		RunID:   runID,
		Elapsed: f.Elapsed,
		Instant: f.Instant().UTC(),
		Phase:   f.Phase,
		Tracked: f.Tracked,
		Mode:    f.Mode.String(),
		Bodies:  datatypes.JSON(data),
	}, nil
}

// recordToFrame is the inverse of frameToRecord.
func recordToFrame(epoch time.Time, rec FrameRecord) (model.Frame, error) {
	var states []bodyState
	if len(rec.Bodies) > 0 {
		if err := json.Unmarshal(rec.Bodies, &states); err != nil {
			return model.Frame{}, fmt.Errorf("decode frame %d: %w", rec.ID, err)
		}
	}
	f := model.Frame{
		Elapsed: rec.Elapsed,
		Epoch:   epoch,
		Phase:   rec.Phase,
		Tracked: rec.Tracked,
		Mode:    model.CameraAuto,
		Bodies:  make([]model.BodyState, 0, len(states)),
	}
	if rec.Mode == model.CameraManual.String() {
		f.Mode = model.CameraManual
	}
	for _, s := range states {
		b := model.BodyState{
			ID:       s.ID,
			Name:     s.Name,
			Kind:     model.ParseBodyKind(s.Kind),
			Position: model.Waypoint{Elapsed: rec.Elapsed, Lon: s.Lon, Lat: s.Lat, Alt: s.Alt},
		}
		if s.Heading != nil && s.Pitch != nil {
			b.Orientation = &model.Orientation{HeadingDeg: *s.Heading, PitchDeg: *s.Pitch}
		}
		f.Bodies = append(f.Bodies, b)
	}
	return f, nil
}
