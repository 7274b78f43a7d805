package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Slot keys shared with the dialogue engine.
const (
	SlotName             = "name"
	SlotAge              = "age"
	SlotDOB              = "dob"
	SlotGender           = "gender"
	SlotGenderPreference = "gender_preference"
	SlotAgePreference    = "age_preference"
	SlotHeight           = "height"

	SlotStage             = "personal_data_stage"
	SlotCurrentSection    = "current_section"
	SlotUserInfoStart     = "userInfo_stage_start"
	SlotUserPrefStart     = "userPref_stage_start"
	SlotMatchReady        = "match_ready"
	SlotTopicTransition   = "topic_transition"
	SlotConversationEnded = "conversation_ended"
)

// SkippedValue marks a field the user declined to provide.
const SkippedValue = "skipped"

// ProfileSlots lists the profile fields in collection order, dob excluded.
var ProfileSlots = []string{SlotName, SlotAge, SlotGender, SlotGenderPreference, SlotAgePreference, SlotHeight}

// Values of the current_section slot.
const (
	TopicUserInfo = "userInfo"
	TopicUserPref = "userPref"
)

// Stage identifies which profile field is currently being solicited.
type Stage int

const (
	StageNone             Stage = 0
	StageName             Stage = 1
	StageAge              Stage = 2
	StageGender           Stage = 3
	StageGenderPreference Stage = 4
	StageAgePreference    Stage = 5
	StageHeight           Stage = 6
	StageFreeText         Stage = 7
)

// Next returns the stage that follows s.
func (s Stage) Next() Stage { return s + 1 }

// Collecting reports whether s points at one of the profile fields.
func (s Stage) Collecting() bool { return s >= StageName && s <= StageHeight }

// Section is the coarse phase label used to segment conversation logs.
type Section string

const (
	SectionGreeting        Section = "greeting"
	SectionPersonalData    Section = "personal_data_collection"
	SectionUserInfo        Section = "user_info_collection"
	SectionUserPreferences Section = "user_preferences_collection"
)

// Slots is the slot map handed over by the dialogue engine. Values arrive
// decoded from JSON, so numbers may be float64 or json.Number.
type Slots map[string]any

// IsSet reports whether key holds a value. Blank strings count as unset; the
// numeric age placeholder 0 counts as set.
func (s Slots) IsSet(key string) bool {
	v, ok := s[key]
	if !ok || v == nil {
		return false
	}
	if str, ok := v.(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return true
}

// String renders the slot value as text, or "" when unset.
func (s Slots) String(key string) string {
	if !s.IsSet(key) {
		return ""
	}
	switch v := s[key].(type) {
	case string:
		return v
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Int returns the slot as an integer when it holds a whole number.
func (s Slots) Int(key string) (int, bool) {
	if !s.IsSet(key) {
		return 0, false
	}
	switch v := s[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Bool returns the slot as a boolean; only true and "true" are truthy.
func (s Slots) Bool(key string) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	}
	return false
}

// Stage returns the personal_data_stage slot, or StageNone when absent.
func (s Slots) Stage() Stage {
	n, ok := s.Int(SlotStage)
	if !ok || n < 0 {
		return StageNone
	}
	return Stage(n)
}

// Clone returns a shallow copy of the slot map.
func (s Slots) Clone() Slots {
	out := make(Slots, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
