package codec

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sufyanAbbasi/efflux/internal/models"
)

// DecodeRenderable decodes a RenderableSocketData frame. A frame without an
// entity id carries nothing to track and is rejected.
func DecodeRenderable(b []byte) (*models.Renderable, error) {
	r := &models.Renderable{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case 1:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			r.ID = string(raw)
		case 2:
			if err := expect(num, typ, protowire.VarintType); err != nil {
				return err
			}
			r.Visible = protowire.DecodeBool(v)
		case 3:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			pos, err := decodePosition(raw)
			if err != nil {
				return err
			}
			r.Position = pos
		case 4:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			rt, err := decodeRenderType(raw)
			if err != nil {
				return err
			}
			r.Type = rt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, malformed("renderable without id")
	}
	return r, nil
}

func decodePosition(b []byte) (models.Position, error) {
	var p models.Position
	err := walk(b, func(num protowire.Number, typ protowire.Type, v uint64, _ []byte) error {
		var dst *int32
		switch num {
		case 1:
			dst = &p.X
		case 2:
			dst = &p.Y
		case 3:
			dst = &p.Z
		default:
			return nil
		}
		if err := expect(num, typ, protowire.VarintType); err != nil {
			return err
		}
		*dst = int32(v)
		return nil
	})
	return p, err
}

func decodeRenderType(b []byte) (models.RenderType, error) {
	var rt models.RenderType
	err := walk(b, func(num protowire.Number, typ protowire.Type, v uint64, _ []byte) error {
		switch num {
		case 1:
			if err := expect(num, typ, protowire.VarintType); err != nil {
				return err
			}
			rt = models.RenderType{CellType: models.CellType(v), Set: true}
		case 2:
			if err := expect(num, typ, protowire.VarintType); err != nil {
				return err
			}
			rt = models.RenderType{CytokineType: models.CytokineType(v), IsCytokine: true, Set: true}
		}
		return nil
	})
	return rt, err
}

func encodePosition(p models.Position) []byte {
	var b []byte
	b = appendInt(b, 1, int64(p.X))
	b = appendInt(b, 2, int64(p.Y))
	b = appendInt(b, 3, int64(p.Z))
	return b
}

// EncodeRenderable is the inverse of DecodeRenderable.
func EncodeRenderable(r *models.Renderable) []byte {
	var b []byte
	b = appendString(b, 1, r.ID)
	b = appendBool(b, 2, r.Visible)
	b = appendMessage(b, 3, encodePosition(r.Position))
	if r.Type.Set {
		var t []byte
		if r.Type.IsCytokine {
			t = protowire.AppendTag(t, 2, protowire.VarintType)
			t = protowire.AppendVarint(t, uint64(r.Type.CytokineType))
		} else {
			t = protowire.AppendTag(t, 1, protowire.VarintType)
			t = protowire.AppendVarint(t, uint64(r.Type.CellType))
		}
		b = appendMessage(b, 4, t)
	}
	return b
}
