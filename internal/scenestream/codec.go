package scenestream

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/mission-trajectory-sim/model"
)

// FrameToStruct encodes a frame for the wire. Longitudes are normalised to
// [-180, 180). When only is non-empty, bodies whose id is not in it are left
// out.
func FrameToStruct(f model.Frame, only map[string]bool) (*structpb.Struct, error) {
	bodies := make([]interface{}, 0, len(f.Bodies))
	for _, b := range f.Bodies {
		if len(only) > 0 && !only[b.ID] {
			continue
		}
		pos := b.Position.Normalized()
		body := map[string]interface{}{
			"id":   b.ID,
			"name": b.Name,
			"kind": b.Kind.String(),
			"lon":  pos.Lon,
			"lat":  pos.Lat,
			"alt":  pos.Alt,
		}
		if b.Orientation != nil {
			body["heading"] = b.Orientation.HeadingDeg
			body["pitch"] = b.Orientation.PitchDeg
		}
		bodies = append(bodies, body)
	}

	s, err := structpb.NewStruct(map[string]interface{}{
		"elapsed": f.Elapsed,
		"epoch":   f.Epoch.UTC().Format(time.RFC3339Nano),
		"phase":   f.Phase,
		"tracked": f.Tracked,
		"mode":    f.Mode.String(),
		"bodies":  bodies,
	})
	if err != nil {
		return nil, fmt.Errorf("encode frame at %.3f: %w", f.Elapsed, err)
	}
	return s, nil
}

// FrameFromStruct decodes a frame produced by FrameToStruct.
func FrameFromStruct(s *structpb.Struct) (model.Frame, error) {
	if s == nil {
		return model.Frame{}, fmt.Errorf("decode frame: nil message")
	}
	fields := s.GetFields()

	f := model.Frame{
		Elapsed: fields["elapsed"].GetNumberValue(),
		Phase:   fields["phase"].GetStringValue(),
		Tracked: fields["tracked"].GetStringValue(),
	}
	if fields["mode"].GetStringValue() == model.CameraManual.String() {
		f.Mode = model.CameraManual
	}
	if raw := fields["epoch"].GetStringValue(); raw != "" {
		epoch, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return model.Frame{}, fmt.Errorf("decode frame epoch %q: %w", raw, err)
		}
		f.Epoch = epoch
	}

	for i, v := range fields["bodies"].GetListValue().GetValues() {
		bf := v.GetStructValue().GetFields()
		if bf == nil {
			return model.Frame{}, fmt.Errorf("decode frame: body %d is not an object", i)
		}
		b := model.BodyState{
			ID:   bf["id"].GetStringValue(),
			Name: bf["name"].GetStringValue(),
			Kind: model.ParseBodyKind(bf["kind"].GetStringValue()),
			Position: model.Waypoint{
				Elapsed: f.Elapsed,
				Lon:     bf["lon"].GetNumberValue(),
				Lat:     bf["lat"].GetNumberValue(),
				Alt:     bf["alt"].GetNumberValue(),
			},
		}
		heading, hasHeading := bf["heading"]
		pitch, hasPitch := bf["pitch"]
		if hasHeading && hasPitch {
			b.Orientation = &model.Orientation{
				HeadingDeg: heading.GetNumberValue(),
				PitchDeg:   pitch.GetNumberValue(),
			}
		}
		f.Bodies = append(f.Bodies, b)
	}
	return f, nil
}

// bodyFilter reads the optional "bodies" id list of a watch request.
func bodyFilter(req *structpb.Struct) map[string]bool {
	values := req.GetFields()["bodies"].GetListValue().GetValues()
	if len(values) == 0 {
		return nil
	}
	only := make(map[string]bool, len(values))
	for _, v := range values {
		if id := v.GetStringValue(); id != "" {
			only[id] = true
		}
	}
	return only
}
