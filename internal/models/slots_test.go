package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotsIsSet(t *testing.T) {
	s := Slots{
		"name":   "  ",
		"age":    float64(0),
		"gender": SkippedValue,
		"height": nil,
	}
	assert.False(t, s.IsSet(SlotName), "blank string is unset")
	assert.True(t, s.IsSet(SlotAge), "age placeholder 0 is set")
	assert.True(t, s.IsSet(SlotGender))
	assert.False(t, s.IsSet(SlotHeight))
	assert.False(t, s.IsSet(SlotDOB))
}

func TestSlotsStage(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  Stage
	}{
		{"float", float64(3), StageGender},
		{"int", 5, StageAgePreference},
		{"json number", json.Number("2"), StageAge},
		{"string", "6", StageHeight},
		{"garbage", "abc", StageNone},
		{"fraction", 2.5, StageNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Slots{SlotStage: tt.value}
			assert.Equal(t, tt.want, s.Stage())
		})
	}
	assert.Equal(t, StageNone, Slots{}.Stage())
}

func TestSlotsString(t *testing.T) {
	s := Slots{"age": float64(28), "h": "5'10\"", "b": true}
	assert.Equal(t, "28", s.String("age"))
	assert.Equal(t, "5'10\"", s.String("h"))
	assert.Equal(t, "true", s.String("b"))
	assert.Equal(t, "", s.String("missing"))
}

func TestSlotsBool(t *testing.T) {
	s := Slots{"a": true, "b": "True", "c": "no", "d": 1}
	assert.True(t, s.Bool("a"))
	assert.True(t, s.Bool("b"))
	assert.False(t, s.Bool("c"))
	assert.False(t, s.Bool("d"))
}

func TestTurnOutputUpdate(t *testing.T) {
	var out TurnOutput
	out.Set(SlotStage, 2)
	out.Set(SlotName, "Ana")
	out.Set(SlotStage, 3)

	v, ok := out.Update(SlotStage)
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	_, ok = out.Update(SlotAge)
	assert.False(t, ok)
}

func TestEventTime(t *testing.T) {
	e := Event{Timestamp: 1700000000.5}
	assert.Equal(t, int64(1700000000), e.Time().Unix())
	assert.True(t, Event{}.Time().IsZero())
}
