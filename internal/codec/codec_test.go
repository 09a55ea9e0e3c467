package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sufyanAbbasi/efflux/internal/codec"
	"github.com/sufyanAbbasi/efflux/internal/models"
)

func TestStatusDecodesReportedFields(t *testing.T) {
	in := &models.Status{
		Code:        200,
		Name:        "Lung",
		Connections: []string{"127.0.0.1:8001", "127.0.0.1:8002"},
		WorkStatus: []models.WorkStatus{
			{WorkType: "EXCHANGE", RequestCount: 4, SuccessCount: 3, FailureCount: 1},
		},
		MaterialStatus: models.MaterialStatus{O2: 10000, CO2: 12, AntibodyLoad: -1},
	}

	out, err := codec.DecodeStatus(codec.EncodeStatus(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestStatusEmptyFrameIsZeroValue(t *testing.T) {
	st, err := codec.DecodeStatus(nil)
	require.NoError(t, err)
	assert.Empty(t, st.Name)
	assert.Empty(t, st.Connections)
	assert.Equal(t, models.MaterialStatus{}, st.MaterialStatus)
}

func TestStatusSkipsUnknownFields(t *testing.T) {
	b := codec.EncodeStatus(&models.Status{Name: "Brain"})
	b = protowire.AppendTag(b, 42, protowire.BytesType)
	b = protowire.AppendString(b, "future field")
	b = protowire.AppendTag(b, 43, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 7)

	st, err := codec.DecodeStatus(b)
	require.NoError(t, err)
	assert.Equal(t, "Brain", st.Name)
}

func TestCorruptFramesAreMalformed(t *testing.T) {
	valid := codec.EncodeStatus(&models.Status{Name: "Heart", Connections: []string{"a:1"}})

	cases := map[string][]byte{
		"truncated varint": {0x08, 0xff, 0xff},
		"truncated bytes":  valid[:len(valid)-2],
		"zero field":       {0x00, 0x01},
		"wrong wire type":  protowire.AppendVarint(protowire.AppendTag(nil, 2, protowire.VarintType), 1),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := codec.DecodeStatus(b)
			assert.ErrorIs(t, err, codec.ErrMalformed)
		})
	}
}

func TestRenderableRequiresID(t *testing.T) {
	_, err := codec.DecodeRenderable(codec.EncodeRenderable(&models.Renderable{Visible: true}))
	assert.ErrorIs(t, err, codec.ErrMalformed)

	r, err := codec.DecodeRenderable(codec.EncodeRenderable(&models.Renderable{
		ID:       "Cytokine2-10-4",
		Visible:  true,
		Position: models.Position{X: 10, Y: 4, Z: 1},
		Type:     models.RenderType{CytokineType: models.CytokineCellStressed, IsCytokine: true, Set: true},
	}))
	require.NoError(t, err)
	assert.Equal(t, int32(10), r.Position.X)
	assert.True(t, r.Type.IsCytokine)
	assert.Equal(t, models.CytokineCellStressed, r.Type.CytokineType)
}

func TestInteractionRequestCarriesToken(t *testing.T) {
	req := &models.InteractionRequest{
		SessionToken: "tok",
		Type:         models.InteractionMoveTo,
		Position:     &models.Position{X: 3, Y: 9},
	}
	got, err := codec.DecodeInteractionRequest(codec.EncodeInteractionRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req, got)

	// PING is the zero enum value and still round-trips.
	ping, err := codec.DecodeInteractionRequest(codec.EncodeInteractionRequest(&models.InteractionRequest{SessionToken: "tok"}))
	require.NoError(t, err)
	assert.Equal(t, models.InteractionPing, ping.Type)
}

func TestInteractionResponseCellStatus(t *testing.T) {
	resp := &models.InteractionResponse{
		Status:     models.ResponseSuccess,
		AttachedTo: "Neuron00000042",
		TargetCellStatus: &models.CellStatus{
			CellType:    models.CellNeuron,
			Name:        "n-42",
			RenderID:    "Neuron00000042",
			Damage:      12,
			Proteins:    []uint32{1, 2, 3},
			CellActions: []models.CellActionStatus{models.ActionRepair, models.ActionDoWork},
		},
	}
	got, err := codec.DecodeInteractionResponse(codec.EncodeInteractionResponse(resp))
	require.NoError(t, err)
	assert.Equal(t, resp, got)
}

func TestCellStatusAcceptsUnpackedRepeated(t *testing.T) {
	var cs []byte
	cs = protowire.AppendTag(cs, 10, protowire.VarintType)
	cs = protowire.AppendVarint(cs, 5)
	cs = protowire.AppendTag(cs, 10, protowire.VarintType)
	cs = protowire.AppendVarint(cs, 6)

	var b []byte
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, cs)

	got, err := codec.DecodeInteractionResponse(b)
	require.NoError(t, err)
	require.NotNil(t, got.TargetCellStatus)
	assert.Equal(t, []uint32{5, 6}, got.TargetCellStatus.Proteins)
}

func TestLoginResponse(t *testing.T) {
	in := models.LoginResponse{SessionToken: "0b7c", Expiry: 1700000000, RenderID: "Nanobot00001234"}
	out, err := codec.DecodeLoginResponse(codec.EncodeLoginResponse(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	req, err := codec.DecodeLoginRequest(codec.EncodeLoginRequest(models.LoginRequest{}))
	require.NoError(t, err)
	assert.Empty(t, req.SessionToken)
}
