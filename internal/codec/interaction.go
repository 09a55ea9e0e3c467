package codec

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sufyanAbbasi/efflux/internal/models"
)

// EncodeLoginRequest builds the InteractionLoginRequest body.
func EncodeLoginRequest(req models.LoginRequest) []byte {
	return appendString(nil, 1, req.SessionToken)
}

// DecodeLoginRequest is used by test servers standing in for a node.
func DecodeLoginRequest(b []byte) (models.LoginRequest, error) {
	var req models.LoginRequest
	err := walk(b, func(num protowire.Number, typ protowire.Type, _ uint64, raw []byte) error {
		if num != 1 {
			return nil
		}
		if err := expect(num, typ, protowire.BytesType); err != nil {
			return err
		}
		req.SessionToken = string(raw)
		return nil
	})
	return req, err
}

// DecodeLoginResponse decodes an InteractionLoginResponse body.
func DecodeLoginResponse(b []byte) (models.LoginResponse, error) {
	var resp models.LoginResponse
	err := walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case 1:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			resp.SessionToken = string(raw)
		case 2:
			if err := expect(num, typ, protowire.VarintType); err != nil {
				return err
			}
			resp.Expiry = int32(v)
		case 3:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			resp.RenderID = string(raw)
		}
		return nil
	})
	return resp, err
}

// EncodeLoginResponse is the inverse of DecodeLoginResponse.
func EncodeLoginResponse(resp models.LoginResponse) []byte {
	var b []byte
	b = appendString(b, 1, resp.SessionToken)
	b = appendInt(b, 2, int64(resp.Expiry))
	b = appendString(b, 3, resp.RenderID)
	return b
}

// EncodeInteractionRequest builds an outbound control message.
func EncodeInteractionRequest(req *models.InteractionRequest) []byte {
	var b []byte
	b = appendString(b, 1, req.SessionToken)
	b = appendInt(b, 2, int64(req.Type))
	if req.Position != nil {
		b = appendMessage(b, 3, encodePosition(*req.Position))
	}
	b = appendString(b, 4, req.TargetCell)
	b = appendInt(b, 5, int64(req.CytokineType))
	return b
}

// DecodeInteractionRequest is used by test servers standing in for a node.
func DecodeInteractionRequest(b []byte) (*models.InteractionRequest, error) {
	req := &models.InteractionRequest{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case 1:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			req.SessionToken = string(raw)
		case 2:
			if err := expect(num, typ, protowire.VarintType); err != nil {
				return err
			}
			req.Type = models.InteractionType(v)
		case 3:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			pos, err := decodePosition(raw)
			if err != nil {
				return err
			}
			req.Position = &pos
		case 4:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			req.TargetCell = string(raw)
		case 5:
			if err := expect(num, typ, protowire.VarintType); err != nil {
				return err
			}
			req.CytokineType = models.CytokineType(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// DecodeInteractionResponse decodes an inbound interaction result.
func DecodeInteractionResponse(b []byte) (*models.InteractionResponse, error) {
	resp := &models.InteractionResponse{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case 1:
			if err := expect(num, typ, protowire.VarintType); err != nil {
				return err
			}
			resp.Status = models.ResponseStatus(v)
		case 2:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			resp.ErrorMessage = string(raw)
		case 3:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			resp.AttachedTo = string(raw)
		case 4, 5:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			cs, err := decodeCellStatus(raw)
			if err != nil {
				return err
			}
			if num == 4 {
				resp.TargetCellStatus = cs
			} else {
				resp.AttachedCellStatus = cs
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// EncodeInteractionResponse is the inverse of DecodeInteractionResponse.
func EncodeInteractionResponse(resp *models.InteractionResponse) []byte {
	var b []byte
	b = appendInt(b, 1, int64(resp.Status))
	b = appendString(b, 2, resp.ErrorMessage)
	b = appendString(b, 3, resp.AttachedTo)
	if resp.TargetCellStatus != nil {
		b = appendMessage(b, 4, encodeCellStatus(resp.TargetCellStatus))
	}
	if resp.AttachedCellStatus != nil {
		b = appendMessage(b, 5, encodeCellStatus(resp.AttachedCellStatus))
	}
	return b
}

func decodeCellStatus(b []byte) (*models.CellStatus, error) {
	cs := &models.CellStatus{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case 1, 2, 5, 6, 7:
			if err := expect(num, typ, protowire.VarintType); err != nil {
				return err
			}
			switch num {
			case 1:
				cs.Timestamp = int64(v)
			case 2:
				cs.CellType = models.CellType(v)
			case 5:
				cs.Damage = int32(v)
			case 6:
				cs.SpawnTime = int64(v)
			case 7:
				cs.ViralLoad = int32(v)
			}
		case 3, 4, 8, 9:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			switch num {
			case 3:
				cs.Name = string(raw)
			case 4:
				cs.RenderID = string(raw)
			case 8:
				cs.TransportPath = append(cs.TransportPath, string(raw))
			case 9:
				cs.WantPath = append(cs.WantPath, string(raw))
			}
		case 10, 11, 12:
			vs, err := unpackVarints(typ, v, raw)
			if err != nil {
				return err
			}
			for _, x := range vs {
				switch num {
				case 10:
					cs.Proteins = append(cs.Proteins, uint32(x))
				case 11:
					cs.Presented = append(cs.Presented, uint32(x))
				case 12:
					cs.CellActions = append(cs.CellActions, models.CellActionStatus(x))
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cs, nil
}

func encodeCellStatus(cs *models.CellStatus) []byte {
	var b []byte
	b = appendInt(b, 1, cs.Timestamp)
	b = appendInt(b, 2, int64(cs.CellType))
	b = appendString(b, 3, cs.Name)
	b = appendString(b, 4, cs.RenderID)
	b = appendInt(b, 5, int64(cs.Damage))
	b = appendInt(b, 6, cs.SpawnTime)
	b = appendInt(b, 7, int64(cs.ViralLoad))
	for _, p := range cs.TransportPath {
		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendString(b, p)
	}
	for _, p := range cs.WantPath {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendString(b, p)
	}
	b = appendPacked(b, 10, cs.Proteins)
	b = appendPacked(b, 11, cs.Presented)
	b = appendPacked(b, 12, cs.CellActions)
	return b
}
