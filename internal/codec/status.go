package codec

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sufyanAbbasi/efflux/internal/models"
)

// DecodeStatus decodes a StatusSocketData frame.
func DecodeStatus(b []byte) (*models.Status, error) {
	st := &models.Status{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case 1:
			if err := expect(num, typ, protowire.VarintType); err != nil {
				return err
			}
			st.Code = int32(v)
		case 2:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			st.Name = string(raw)
		case 3:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			st.Connections = append(st.Connections, string(raw))
		case 4:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			ws, err := decodeWorkStatus(raw)
			if err != nil {
				return err
			}
			st.WorkStatus = append(st.WorkStatus, ws)
		case 5:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			ms, err := decodeMaterialStatus(raw)
			if err != nil {
				return err
			}
			st.MaterialStatus = ms
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func decodeWorkStatus(b []byte) (models.WorkStatus, error) {
	var ws models.WorkStatus
	err := walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		if num == 1 {
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return err
			}
			ws.WorkType = string(raw)
			return nil
		}
		var dst *int32
		switch num {
		case 2:
			dst = &ws.RequestCount
		case 3:
			dst = &ws.SuccessCount
		case 4:
			dst = &ws.FailureCount
		case 5:
			dst = &ws.CompletedCount
		case 6:
			dst = &ws.CompletedFailureCount
		default:
			return nil
		}
		if err := expect(num, typ, protowire.VarintType); err != nil {
			return err
		}
		*dst = int32(v)
		return nil
	})
	return ws, err
}

// materialFields lists MaterialStatus gauges in field-number order starting at 1.
func materialFields(ms *models.MaterialStatus) []*int32 {
	return []*int32{
		&ms.O2, &ms.CO2, &ms.Glucose, &ms.Vitamin, &ms.Creatinine,
		&ms.Growth, &ms.Hunger, &ms.Asphyxia, &ms.Inflammation,
		&ms.GCsf, &ms.MCsf, &ms.IL3, &ms.IL2, &ms.ViralLoad, &ms.AntibodyLoad,
	}
}

func decodeMaterialStatus(b []byte) (models.MaterialStatus, error) {
	var ms models.MaterialStatus
	fields := materialFields(&ms)
	err := walk(b, func(num protowire.Number, typ protowire.Type, v uint64, _ []byte) error {
		if num < 1 || int(num) > len(fields) {
			return nil
		}
		if err := expect(num, typ, protowire.VarintType); err != nil {
			return err
		}
		*fields[num-1] = int32(v)
		return nil
	})
	return ms, err
}

// EncodeStatus is the inverse of DecodeStatus.
func EncodeStatus(st *models.Status) []byte {
	var b []byte
	b = appendInt(b, 1, int64(st.Code))
	b = appendString(b, 2, st.Name)
	for _, c := range st.Connections {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, c)
	}
	for _, ws := range st.WorkStatus {
		var w []byte
		w = appendString(w, 1, ws.WorkType)
		w = appendInt(w, 2, int64(ws.RequestCount))
		w = appendInt(w, 3, int64(ws.SuccessCount))
		w = appendInt(w, 4, int64(ws.FailureCount))
		w = appendInt(w, 5, int64(ws.CompletedCount))
		w = appendInt(w, 6, int64(ws.CompletedFailureCount))
		b = appendMessage(b, 4, w)
	}
	ms := st.MaterialStatus
	var m []byte
	for i, f := range materialFields(&ms) {
		m = appendInt(m, protowire.Number(i+1), int64(*f))
	}
	if len(m) > 0 {
		b = appendMessage(b, 5, m)
	}
	return b
}
