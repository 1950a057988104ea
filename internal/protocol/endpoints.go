package protocol

// Control-socket endpoints. Values are relative to URIScheme.
const (
	EndpointInputSocket = "com.webos.service.networkinput/getPointerInputSocket"

	// Apps
	EndpointGetApps           = "com.webos.applicationManager/listLaunchPoints"
	EndpointGetCurrentAppInfo = "com.webos.applicationManager/getForegroundAppInfo"
	EndpointLaunch            = "system.launcher/launch"
	EndpointLauncherClose     = "system.launcher/close"
	EndpointOpen              = "system.launcher/open"
	EndpointCloseWebApp       = "webapp/closeWebApp"

	// System
	EndpointGetServices       = "api/getServiceList"
	EndpointGetSystemInfo     = "system/getSystemInfo"
	EndpointGetSoftwareInfo   = "com.webos.service.update/getCurrentSWInformation"
	EndpointPowerOff          = "system/turnOff"
	EndpointPowerOn           = "system/turnOn"
	EndpointShowMessage       = "system.notifications/createToast"
	EndpointGetSystemSettings = "settings/getSystemSettings"
	Endpoint3DOn              = "com.webos.service.tv.display/set3DOn"
	Endpoint3DOff             = "com.webos.service.tv.display/set3DOff"

	// Picture calibration
	EndpointCalibration = "externalpq/setExternalPqData"

	// Inputs
	EndpointGetInputs = "tv/getExternalInputList"
	EndpointSetInput  = "tv/switchInput"

	// Audio
	EndpointGetAudioStatus = "audio/getStatus"
	EndpointSetMute        = "audio/setMute"
	EndpointGetVolume      = "audio/getVolume"
	EndpointSetVolume      = "audio/setVolume"
	EndpointVolumeUp       = "audio/volumeUp"
	EndpointVolumeDown     = "audio/volumeDown"

	// TV channels
	EndpointGetTVChannels     = "tv/getChannelList"
	EndpointGetCurrentChannel = "tv/getCurrentChannel"
	EndpointGetChannelInfo    = "tv/getChannelProgramInfo"
	EndpointSetChannel        = "tv/openChannel"
	EndpointChannelUp         = "tv/channelUp"
	EndpointChannelDown       = "tv/channelDown"

	// Media
	EndpointMediaPlay        = "media.controls/play"
	EndpointMediaPause       = "media.controls/pause"
	EndpointMediaStop        = "media.controls/stop"
	EndpointMediaClose       = "media.viewer/close"
	EndpointMediaRewind      = "media.controls/rewind"
	EndpointMediaFastForward = "media.controls/fastForward"

	// Keyboard
	EndpointSendEnter  = "com.webos.service.ime/sendEnterKey"
	EndpointSendDelete = "com.webos.service.ime/deleteCharacters"
)
