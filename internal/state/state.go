// Package state aggregates the latest known device state and notifies
// observers when it changes.
package state

import (
	"encoding/json"
	"maps"
)

// DeviceState is a consistent snapshot of the device. Catalog maps are never
// mutated after publication, so a snapshot may be shared freely.
type DeviceState struct {
	CurrentAppID string                     `json:"currentAppId"`
	Muted        bool                       `json:"muted"`
	Volume       int                        `json:"volume"`
	Channel      json.RawMessage            `json:"channel,omitempty"`
	Apps         map[string]json.RawMessage `json:"apps"`
	Inputs       map[string]json.RawMessage `json:"inputs"`
	SystemInfo   json.RawMessage            `json:"systemInfo,omitempty"`
	SoftwareInfo json.RawMessage            `json:"softwareInfo,omitempty"`
	Live         bool                       `json:"live"`
}

// emptyState returns the disconnected defaults. Maps are fresh per call.
func emptyState() DeviceState {
	return DeviceState{
		Apps:   map[string]json.RawMessage{},
		Inputs: map[string]json.RawMessage{},
	}
}

// ModelName returns the model name reported in the system info, if any.
func (s DeviceState) ModelName() string {
	if len(s.SystemInfo) == 0 {
		return ""
	}
	var info struct {
		ModelName string `json:"modelName"`
	}
	if err := json.Unmarshal(s.SystemInfo, &info); err != nil {
		return ""
	}
	return info.ModelName
}

// App returns the catalog entry for an app id.
func (s DeviceState) App(id string) (json.RawMessage, bool) {
	v, ok := s.Apps[id]
	return v, ok
}

// Input returns the catalog entry for an input id.
func (s DeviceState) Input(id string) (json.RawMessage, bool) {
	v, ok := s.Inputs[id]
	return v, ok
}

// Clone returns a deep-enough copy whose maps can be mutated by the caller.
func (s DeviceState) Clone() DeviceState {
	out := s
	out.Apps = maps.Clone(s.Apps)
	out.Inputs = maps.Clone(s.Inputs)
	if out.Apps == nil {
		out.Apps = map[string]json.RawMessage{}
	}
	if out.Inputs == nil {
		out.Inputs = map[string]json.RawMessage{}
	}
	return out
}

// keyCatalog indexes raw catalog entries by the string field named key.
// Entries without that field are skipped.
func keyCatalog(entries []json.RawMessage, key string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(entries))
	for _, entry := range entries {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil {
			continue
		}
		var id string
		if err := json.Unmarshal(fields[key], &id); err != nil || id == "" {
			continue
		}
		out[id] = entry
	}
	return out
}
