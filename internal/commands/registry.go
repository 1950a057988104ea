// Package commands maps command names to client operations. The CLI and the
// bridge both dispatch through it.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/markus-barta/webos-remote/internal/remote"
	"github.com/markus-barta/webos-remote/internal/state"
)

var (
	// ErrUnknownCommand is returned for names not in the registry.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUsage is returned for wrong argument counts or unparsable arguments.
	ErrUsage = errors.New("usage")
)

// Remote is the subset of *remote.Client the registry drives.
type Remote interface {
	State() state.DeviceState
	CalibrationSupport() state.CalibrationInfo

	GetApps(ctx context.Context) ([]json.RawMessage, error)
	GetCurrentApp(ctx context.Context) (string, error)
	LaunchApp(ctx context.Context, appID string) (json.RawMessage, error)
	LaunchAppWithParams(ctx context.Context, appID string, params map[string]any) (json.RawMessage, error)
	LaunchAppWithContentID(ctx context.Context, appID, contentID string) (json.RawMessage, error)
	CloseApp(ctx context.Context, appID string) (json.RawMessage, error)

	GetServices(ctx context.Context) ([]json.RawMessage, error)
	GetSoftwareInfo(ctx context.Context) (json.RawMessage, error)
	GetSystemInfo(ctx context.Context) (json.RawMessage, error)
	PowerOff(ctx context.Context) (json.RawMessage, error)
	PowerOn(ctx context.Context) (json.RawMessage, error)
	Turn3DOn(ctx context.Context) (json.RawMessage, error)
	Turn3DOff(ctx context.Context) (json.RawMessage, error)
	ShowMessage(ctx context.Context, message, iconPath string) (json.RawMessage, error)
	GetPictureSettings(ctx context.Context, keys ...string) (json.RawMessage, error)

	GetInputs(ctx context.Context) ([]json.RawMessage, error)
	GetInput(ctx context.Context) (string, error)
	SetInput(ctx context.Context, inputID string) (json.RawMessage, error)

	GetAudioStatus(ctx context.Context) (json.RawMessage, error)
	GetMuted(ctx context.Context) (bool, error)
	SetMute(ctx context.Context, mute bool) (json.RawMessage, error)
	GetVolume(ctx context.Context) (int, error)
	SetVolume(ctx context.Context, volume int) (json.RawMessage, error)
	VolumeUp(ctx context.Context) (json.RawMessage, error)
	VolumeDown(ctx context.Context) (json.RawMessage, error)

	ChannelUp(ctx context.Context) (json.RawMessage, error)
	ChannelDown(ctx context.Context) (json.RawMessage, error)
	GetChannels(ctx context.Context) ([]json.RawMessage, error)
	GetCurrentChannel(ctx context.Context) (json.RawMessage, error)
	GetChannelInfo(ctx context.Context) (json.RawMessage, error)
	SetChannel(ctx context.Context, channelID string) (json.RawMessage, error)

	Play(ctx context.Context) (json.RawMessage, error)
	Pause(ctx context.Context) (json.RawMessage, error)
	Stop(ctx context.Context) (json.RawMessage, error)
	CloseMedia(ctx context.Context) (json.RawMessage, error)
	Rewind(ctx context.Context) (json.RawMessage, error)
	FastForward(ctx context.Context) (json.RawMessage, error)

	SendEnterKey(ctx context.Context) (json.RawMessage, error)
	SendDeleteKey(ctx context.Context) (json.RawMessage, error)
	OpenURL(ctx context.Context, url string) (json.RawMessage, error)
	CloseWeb(ctx context.Context) (json.RawMessage, error)

	Button(ctx context.Context, name string) error
	Move(ctx context.Context, dx, dy, down int) error
	Click(ctx context.Context) error
	Scroll(ctx context.Context, dx, dy int) error
	NumberButton(ctx context.Context, n int) error

	StartCalibration(ctx context.Context, picMode string, data []float32) (json.RawMessage, error)
	EndCalibration(ctx context.Context, picMode string, data []float32) (json.RawMessage, error)
	Upload1DLUT(ctx context.Context, picMode string, data []uint16) (json.RawMessage, error)
	Upload3DLUTBT709(ctx context.Context, picMode string, data []uint16) (json.RawMessage, error)
	Upload3DLUTBT2020(ctx context.Context, picMode string, data []uint16) (json.RawMessage, error)
	SetBrightness(ctx context.Context, picMode string, value int) (json.RawMessage, error)
	SetContrast(ctx context.Context, picMode string, value int) (json.RawMessage, error)
	SetOLEDLight(ctx context.Context, picMode string, value int) (json.RawMessage, error)
	SetColor(ctx context.Context, picMode string, value int) (json.RawMessage, error)
	Set1DGamma22(ctx context.Context, picMode string, value uint16) (json.RawMessage, error)
	Set1DGamma045(ctx context.Context, picMode string, value uint16) (json.RawMessage, error)
	SetGamutBT709(ctx context.Context, picMode string, matrix []float32) (json.RawMessage, error)
	SetGamutBT2020(ctx context.Context, picMode string, matrix []float32) (json.RawMessage, error)
	SetTonemapParams(ctx context.Context, picMode string, p remote.TonemapParams) (json.RawMessage, error)
	DDCReset(ctx context.Context, picMode string, reset1DLUT bool) error
}

var _ Remote = (*remote.Client)(nil)

// Command is one entry of the lookup table.
type Command struct {
	Name    string
	Usage   string // argument synopsis, e.g. "<app-id> [content-id]"
	Help    string
	MinArgs int
	MaxArgs int // -1 for unbounded
	Run     func(ctx context.Context, r Remote, args []string) (any, error)
}

// Check validates the argument count.
func (c Command) Check(args []string) error {
	if len(args) < c.MinArgs || (c.MaxArgs >= 0 && len(args) > c.MaxArgs) {
		return fmt.Errorf("%w: %s %s", ErrUsage, c.Name, c.Usage)
	}
	return nil
}

// Registry maps command names to commands.
type Registry map[string]Command

// Names returns the command names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named command and checks its arguments.
func (r Registry) Lookup(name string, args []string) (Command, error) {
	cmd, ok := r[name]
	if !ok {
		return Command{}, fmt.Errorf("%w %q (available: %s)", ErrUnknownCommand, name, strings.Join(r.Names(), ", "))
	}
	if err := cmd.Check(args); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

func (r Registry) add(cmd Command) {
	r[cmd.Name] = cmd
}

// noArgs adapts an operation without arguments.
func noArgs[T any](help string, fn func(Remote, context.Context) (T, error)) Command {
	return Command{
		Help: help,
		Run: func(ctx context.Context, r Remote, _ []string) (any, error) {
			return fn(r, ctx)
		},
	}
}

// oneString adapts an operation taking a single string.
func oneString[T any](usage, help string, fn func(Remote, context.Context, string) (T, error)) Command {
	return Command{
		Usage:   usage,
		Help:    help,
		MinArgs: 1,
		MaxArgs: 1,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			return fn(r, ctx, args[0])
		},
	}
}

// done is the result of input commands, which have no response.
type done struct {
	OK bool `json:"ok"`
}

func inputResult(err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return done{OK: true}, nil
}

func intArg(args []string, i int, name string) (int, error) {
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrUsage, name, args[i])
	}
	return n, nil
}

func boolArg(args []string, i int, name string) (bool, error) {
	b, err := strconv.ParseBool(args[i])
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false, got %q", ErrUsage, name, args[i])
	}
	return b, nil
}

// namedButtons are exposed as commands of their own.
var namedButtons = map[string]string{
	"left":                remote.ButtonLeft,
	"right":               remote.ButtonRight,
	"up":                  remote.ButtonUp,
	"down":                remote.ButtonDown,
	"home":                remote.ButtonHome,
	"back":                remote.ButtonBack,
	"ok":                  remote.ButtonOK,
	"dash":                remote.ButtonDash,
	"info":                remote.ButtonInfo,
	"asterisk":            remote.ButtonAsterisk,
	"cc":                  remote.ButtonCC,
	"exit":                remote.ButtonExit,
	"mute":                remote.ButtonMute,
	"red":                 remote.ButtonRed,
	"green":               remote.ButtonGreen,
	"blue":                remote.ButtonBlue,
	"volume_up_button":    remote.ButtonVolumeUp,
	"volume_down_button":  remote.ButtonVolumeDown,
	"channel_up_button":   remote.ButtonChannelUp,
	"channel_down_button": remote.ButtonChannelDown,
}

// Default returns the full command table.
func Default() Registry {
	r := make(Registry)
	named := func(name string, cmd Command) {
		cmd.Name = name
		r.add(cmd)
	}

	named("state", noArgs("cached device state", func(r Remote, _ context.Context) (state.DeviceState, error) {
		return r.State(), nil
	}))
	named("calibration_support", noArgs("calibration capabilities of the model", func(r Remote, _ context.Context) (state.CalibrationInfo, error) {
		return r.CalibrationSupport(), nil
	}))

	// Apps
	named("get_apps", noArgs("list installed apps", Remote.GetApps))
	named("get_current_app", noArgs("foreground app id", Remote.GetCurrentApp))
	named("launch_app", oneString("<app-id>", "launch an app", Remote.LaunchApp))
	named("launch_app_with_content_id", Command{
		Usage:   "<app-id> <content-id>",
		Help:    "launch an app on a content id",
		MinArgs: 2,
		MaxArgs: 2,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			return r.LaunchAppWithContentID(ctx, args[0], args[1])
		},
	})
	named("launch_app_with_params", Command{
		Usage:   "<app-id> <params-json>",
		Help:    "launch an app with parameters",
		MinArgs: 2,
		MaxArgs: 2,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			var params map[string]any
			if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
				return nil, fmt.Errorf("%w: params must be a JSON object: %v", ErrUsage, err)
			}
			return r.LaunchAppWithParams(ctx, args[0], params)
		},
	})
	named("close_app", oneString("<app-id>", "close an app", Remote.CloseApp))

	// System
	named("get_services", noArgs("list device services", Remote.GetServices))
	named("get_software_info", noArgs("software information", Remote.GetSoftwareInfo))
	named("get_system_info", noArgs("system information", Remote.GetSystemInfo))
	named("power_off", noArgs("turn the device off", Remote.PowerOff))
	named("power_on", noArgs("turn the screen back on", Remote.PowerOn))
	named("turn_3d_on", noArgs("enable 3D", Remote.Turn3DOn))
	named("turn_3d_off", noArgs("disable 3D", Remote.Turn3DOff))
	named("send_message", Command{
		Usage:   "<message> [icon-path]",
		Help:    "show a toast notification",
		MinArgs: 1,
		MaxArgs: 2,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			icon := ""
			if len(args) > 1 {
				icon = args[1]
			}
			return r.ShowMessage(ctx, args[0], icon)
		},
	})
	named("get_picture_settings", Command{
		Usage:   "[key...]",
		Help:    "query picture settings",
		MaxArgs: -1,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			return r.GetPictureSettings(ctx, args...)
		},
	})

	// Inputs
	named("get_inputs", noArgs("list external inputs", Remote.GetInputs))
	named("get_input", noArgs("current input app id", Remote.GetInput))
	named("set_input", oneString("<input-id>", "switch input", Remote.SetInput))

	// Audio
	named("get_audio_status", noArgs("audio status", Remote.GetAudioStatus))
	named("get_muted", noArgs("mute state", Remote.GetMuted))
	named("set_mute", Command{
		Usage:   "<true|false>",
		Help:    "mute or unmute",
		MinArgs: 1,
		MaxArgs: 1,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			mute, err := boolArg(args, 0, "mute")
			if err != nil {
				return nil, err
			}
			return r.SetMute(ctx, mute)
		},
	})
	named("get_volume", noArgs("volume level", Remote.GetVolume))
	named("set_volume", Command{
		Usage:   "<level>",
		Help:    "set the volume",
		MinArgs: 1,
		MaxArgs: 1,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			volume, err := intArg(args, 0, "level")
			if err != nil {
				return nil, err
			}
			return r.SetVolume(ctx, volume)
		},
	})
	named("volume_up", noArgs("raise the volume", Remote.VolumeUp))
	named("volume_down", noArgs("lower the volume", Remote.VolumeDown))

	// Channels
	named("channel_up", noArgs("next channel", Remote.ChannelUp))
	named("channel_down", noArgs("previous channel", Remote.ChannelDown))
	named("get_channels", noArgs("list channels", Remote.GetChannels))
	named("get_current_channel", noArgs("current channel", Remote.GetCurrentChannel))
	named("get_channel_info", noArgs("current program info", Remote.GetChannelInfo))
	named("set_channel", oneString("<channel-id>", "tune a channel", Remote.SetChannel))

	// Media
	named("play", noArgs("play", Remote.Play))
	named("pause", noArgs("pause", Remote.Pause))
	named("stop", noArgs("stop", Remote.Stop))
	named("close", noArgs("close the media player", Remote.CloseMedia))
	named("rewind", noArgs("rewind", Remote.Rewind))
	named("fast_forward", noArgs("fast forward", Remote.FastForward))

	// Keyboard and browser
	named("send_enter_key", noArgs("IME enter", Remote.SendEnterKey))
	named("send_delete_key", noArgs("IME delete", Remote.SendDeleteKey))
	named("open_url", oneString("<url>", "open a URL in the browser", Remote.OpenURL))
	named("close_web", noArgs("close the browser", Remote.CloseWeb))

	// Input socket
	named("button", Command{
		Usage:   "<name>",
		Help:    "press a remote button",
		MinArgs: 1,
		MaxArgs: 1,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			return inputResult(r.Button(ctx, strings.ToUpper(args[0])))
		},
	})
	named("number", Command{
		Usage:   "<0-9>",
		Help:    "press a number button",
		MinArgs: 1,
		MaxArgs: 1,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			n, err := intArg(args, 0, "number")
			if err != nil {
				return nil, err
			}
			return inputResult(r.NumberButton(ctx, n))
		},
	})
	named("move", Command{
		Usage:   "<dx> <dy> [down]",
		Help:    "move the pointer",
		MinArgs: 2,
		MaxArgs: 3,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			dx, err := intArg(args, 0, "dx")
			if err != nil {
				return nil, err
			}
			dy, err := intArg(args, 1, "dy")
			if err != nil {
				return nil, err
			}
			down := 0
			if len(args) > 2 {
				if down, err = intArg(args, 2, "down"); err != nil {
					return nil, err
				}
			}
			return inputResult(r.Move(ctx, dx, dy, down))
		},
	})
	named("click", Command{
		Help: "click at the pointer",
		Run: func(ctx context.Context, r Remote, _ []string) (any, error) {
			return inputResult(r.Click(ctx))
		},
	})
	named("scroll", Command{
		Usage:   "<dx> <dy>",
		Help:    "scroll",
		MinArgs: 2,
		MaxArgs: 2,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			dx, err := intArg(args, 0, "dx")
			if err != nil {
				return nil, err
			}
			dy, err := intArg(args, 1, "dy")
			if err != nil {
				return nil, err
			}
			return inputResult(r.Scroll(ctx, dx, dy))
		},
	})

	addCalibration(named)

	for name, button := range namedButtons {
		named(name, Command{
			Help: "press " + button,
			Run: func(ctx context.Context, r Remote, _ []string) (any, error) {
				return inputResult(r.Button(ctx, button))
			},
		})
	}

	return r
}
