package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/markus-barta/webos-remote/internal/protocol"
)

// defaultPictureKeys is copied per call; callers never share the slice.
func defaultPictureKeys() []string {
	return []string{"contrast", "backlight", "brightness", "color"}
}

// Apps

// GetApps returns the launch points of all installed apps.
func (c *Client) GetApps(ctx context.Context) ([]json.RawMessage, error) {
	res, err := c.Request(ctx, protocol.EndpointGetApps, nil)
	if err != nil {
		return nil, err
	}
	apps, _ := field[[]json.RawMessage](res, "launchPoints")
	return apps, nil
}

// GetCurrentApp returns the id of the foreground app.
func (c *Client) GetCurrentApp(ctx context.Context) (string, error) {
	res, err := c.Request(ctx, protocol.EndpointGetCurrentAppInfo, nil)
	if err != nil {
		return "", err
	}
	appID, _ := field[string](res, "appId")
	return appID, nil
}

// LaunchApp starts an app by id.
func (c *Client) LaunchApp(ctx context.Context, appID string) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointLaunch, map[string]any{"id": appID})
}

// LaunchAppWithParams starts an app with launch parameters.
func (c *Client) LaunchAppWithParams(ctx context.Context, appID string, params map[string]any) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointLaunch, map[string]any{"id": appID, "params": params})
}

// LaunchAppWithContentID starts an app on a content id.
func (c *Client) LaunchAppWithContentID(ctx context.Context, appID, contentID string) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointLaunch, map[string]any{"id": appID, "contentId": contentID})
}

// CloseApp closes an app by id.
func (c *Client) CloseApp(ctx context.Context, appID string) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointLauncherClose, map[string]any{"id": appID})
}

// System

// GetServices lists the services offered by the device.
func (c *Client) GetServices(ctx context.Context) ([]json.RawMessage, error) {
	res, err := c.Request(ctx, protocol.EndpointGetServices, nil)
	if err != nil {
		return nil, err
	}
	services, _ := field[[]json.RawMessage](res, "services")
	return services, nil
}

// GetSoftwareInfo returns the current software status.
func (c *Client) GetSoftwareInfo(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointGetSoftwareInfo, nil)
}

// GetSystemInfo returns the system information.
func (c *Client) GetSystemInfo(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointGetSystemInfo, nil)
}

// PowerOff turns the device off. Without a standby connection the device
// answers unreliably while shutting down, so the request is sent without
// waiting and the session is closed right away.
func (c *Client) PowerOff(ctx context.Context) (json.RawMessage, error) {
	if c.opts.Standby {
		return c.Request(ctx, protocol.EndpointPowerOff, nil)
	}
	if err := c.command(ctx, protocol.EndpointPowerOff, nil); err != nil {
		return nil, err
	}
	return nil, c.Disconnect(ctx)
}

// PowerOn wakes a device held on a standby connection.
func (c *Client) PowerOn(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointPowerOn, nil)
}

// Turn3DOn enables 3D mode.
func (c *Client) Turn3DOn(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.Endpoint3DOn, nil)
}

// Turn3DOff disables 3D mode.
func (c *Client) Turn3DOff(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.Endpoint3DOff, nil)
}

// ShowMessage displays a toast. iconPath is optional.
func (c *Client) ShowMessage(ctx context.Context, message, iconPath string) (json.RawMessage, error) {
	var icon, ext string
	if iconPath != "" {
		data, err := os.ReadFile(iconPath)
		if err != nil {
			return nil, err
		}
		icon = base64.StdEncoding.EncodeToString(data)
		ext = strings.TrimPrefix(filepath.Ext(iconPath), ".")
	}
	return c.Request(ctx, protocol.EndpointShowMessage, map[string]any{
		"message":       message,
		"iconData":      icon,
		"iconExtension": ext,
	})
}

// GetPictureSettings reads picture settings. Without keys the contrast,
// backlight, brightness and color values are requested.
func (c *Client) GetPictureSettings(ctx context.Context, keys ...string) (json.RawMessage, error) {
	if len(keys) == 0 {
		keys = defaultPictureKeys()
	}
	res, err := c.Request(ctx, protocol.EndpointGetSystemSettings, map[string]any{
		"category": "picture",
		"keys":     keys,
	})
	if err != nil {
		return nil, err
	}
	settings, _ := field[json.RawMessage](res, "settings")
	return settings, nil
}

// Inputs

// GetInputs lists the external inputs.
func (c *Client) GetInputs(ctx context.Context) ([]json.RawMessage, error) {
	res, err := c.Request(ctx, protocol.EndpointGetInputs, nil)
	if err != nil {
		return nil, err
	}
	devices, _ := field[[]json.RawMessage](res, "devices")
	return devices, nil
}

// GetInput returns the current input, which is the foreground app id.
func (c *Client) GetInput(ctx context.Context) (string, error) {
	return c.GetCurrentApp(ctx)
}

// SetInput switches to an input by id.
func (c *Client) SetInput(ctx context.Context, inputID string) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointSetInput, map[string]any{"inputId": inputID})
}

// Audio

// GetAudioStatus returns the audio status.
func (c *Client) GetAudioStatus(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointGetAudioStatus, nil)
}

// GetMuted reports whether audio is muted.
func (c *Client) GetMuted(ctx context.Context) (bool, error) {
	res, err := c.GetAudioStatus(ctx)
	if err != nil {
		return false, err
	}
	muted, _ := field[bool](res, "mute")
	return muted, nil
}

// SetMute mutes or unmutes audio.
func (c *Client) SetMute(ctx context.Context, mute bool) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointSetMute, map[string]any{"mute": mute})
}

// GetVolume returns the volume level.
func (c *Client) GetVolume(ctx context.Context) (int, error) {
	res, err := c.Request(ctx, protocol.EndpointGetVolume, nil)
	if err != nil {
		return 0, err
	}
	volume, _ := field[int](res, "volume")
	return volume, nil
}

// SetVolume sets the volume level. Negative values are clamped to zero.
func (c *Client) SetVolume(ctx context.Context, volume int) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointSetVolume, map[string]any{"volume": max(0, volume)})
}

// VolumeUp raises the volume one step.
func (c *Client) VolumeUp(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointVolumeUp, nil)
}

// VolumeDown lowers the volume one step.
func (c *Client) VolumeDown(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointVolumeDown, nil)
}

// TV channels

// ChannelUp switches to the next channel.
func (c *Client) ChannelUp(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointChannelUp, nil)
}

// ChannelDown switches to the previous channel.
func (c *Client) ChannelDown(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointChannelDown, nil)
}

// GetChannels lists the tuned channels.
func (c *Client) GetChannels(ctx context.Context) ([]json.RawMessage, error) {
	res, err := c.Request(ctx, protocol.EndpointGetTVChannels, nil)
	if err != nil {
		return nil, err
	}
	channels, _ := field[[]json.RawMessage](res, "channelList")
	return channels, nil
}

// GetCurrentChannel returns the current channel.
func (c *Client) GetCurrentChannel(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointGetCurrentChannel, nil)
}

// GetChannelInfo returns program info for the current channel.
func (c *Client) GetChannelInfo(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointGetChannelInfo, nil)
}

// SetChannel opens a channel by id.
func (c *Client) SetChannel(ctx context.Context, channelID string) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointSetChannel, map[string]any{"channelId": channelID})
}

// Media

func (c *Client) Play(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointMediaPlay, nil)
}

func (c *Client) Pause(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointMediaPause, nil)
}

func (c *Client) Stop(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointMediaStop, nil)
}

// CloseMedia closes the media viewer.
func (c *Client) CloseMedia(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointMediaClose, nil)
}

func (c *Client) Rewind(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointMediaRewind, nil)
}

func (c *Client) FastForward(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointMediaFastForward, nil)
}

// Keyboard

// SendEnterKey sends enter to the on-screen keyboard.
func (c *Client) SendEnterKey(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointSendEnter, nil)
}

// SendDeleteKey deletes one character in the on-screen keyboard.
func (c *Client) SendDeleteKey(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointSendDelete, nil)
}

// Web

// OpenURL opens url in the browser.
func (c *Client) OpenURL(ctx context.Context, url string) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointOpen, map[string]any{"target": url})
}

// CloseWeb closes the web browser.
func (c *Client) CloseWeb(ctx context.Context) (json.RawMessage, error) {
	return c.Request(ctx, protocol.EndpointCloseWebApp, nil)
}
