package remote

import (
	"encoding/json"

	"github.com/markus-barta/webos-remote/internal/state"
)

// field decodes one top-level field of a payload. It reports false when the
// payload or the field is absent or has a different type.
func field[T any](payload json.RawMessage, name string) (T, bool) {
	var zero T
	if len(payload) == 0 {
		return zero, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return zero, false
	}
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false
	}
	return v, true
}

// State reducers fed by the priming subscriptions. Each is bound to the
// writer of the session that subscribed. Pushes that do not carry the field
// leave the state untouched.

func onCurrentApp(w *state.Writer) func(json.RawMessage) {
	return func(payload json.RawMessage) {
		if appID, ok := field[string](payload, "appId"); ok {
			w.AppChanged(appID)
		}
	}
}

func onAudioStatus(w *state.Writer) func(json.RawMessage) {
	return func(payload json.RawMessage) {
		if muted, ok := field[bool](payload, "mute"); ok {
			w.MuteChanged(muted)
		}
	}
}

func onVolume(w *state.Writer) func(json.RawMessage) {
	return func(payload json.RawMessage) {
		if volume, ok := field[int](payload, "volume"); ok {
			w.VolumeChanged(volume)
		}
	}
}

func onApps(w *state.Writer) func(json.RawMessage) {
	return func(payload json.RawMessage) {
		if apps, ok := field[[]json.RawMessage](payload, "launchPoints"); ok {
			w.AppsReplaced(apps)
		}
	}
}

func onInputs(w *state.Writer) func(json.RawMessage) {
	return func(payload json.RawMessage) {
		if devices, ok := field[[]json.RawMessage](payload, "devices"); ok {
			w.InputsReplaced(devices)
		}
	}
}

func onChannel(w *state.Writer) func(json.RawMessage) {
	return func(payload json.RawMessage) {
		if len(payload) == 0 || string(payload) == "null" {
			return
		}
		w.ChannelChanged(payload)
	}
}
