package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawFrameTruckIDUnion(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    TruckID
		wantErr bool
	}{
		{"numeric id", `{"truck_id":1,"i_posicao_x":2.5}`, "1", false},
		{"string id", `{"truck_id":"7","i_posicao_x":2.5}`, "7", false},
		{"object id rejected", `{"truck_id":{},"i_posicao_x":2.5}`, "", true},
		{"array id rejected", `{"truck_id":[1]}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var frame RawFrame
			err := json.Unmarshal([]byte(tt.payload), &frame)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, frame.TruckID)
		})
	}
}

func TestRawFrameFieldMapping(t *testing.T) {
	payload := `{"truck_id":1,"i_posicao_x":1.5,"i_posicao_y":-2,"i_angulo_x":90,"i_temperatura":73}`
	var frame RawFrame
	require.NoError(t, json.Unmarshal([]byte(payload), &frame))

	assert.Equal(t, 1.5, frame.PosX)
	assert.Equal(t, -2.0, frame.PosY)
	assert.Equal(t, 90.0, frame.Heading)
	assert.Equal(t, 73.0, frame.Temperature)
}

func TestDefaults(t *testing.T) {
	op := DefaultOperatorCommands()
	assert.True(t, op.Manual)
	assert.False(t, op.Auto)
	assert.False(t, op.Rearm)
	assert.Zero(t, op.Accel)

	vs := DefaultVehicleState()
	assert.True(t, vs.Automatic)
	assert.False(t, vs.Fault)
}

func TestIsStopFault(t *testing.T) {
	for _, kind := range []FaultKind{ThermalFault, ElectricalFault, HydraulicFault, SensorTimeout} {
		assert.True(t, kind.IsStopFault(), string(kind))
	}
	for _, kind := range []FaultKind{FaultNone, ThermalWarning, Normalized} {
		assert.False(t, kind.IsStopFault(), string(kind))
	}
}
