package webos

// Control protocol endpoints.
const (
	uriListLaunchPoints  = "ssap://com.webos.applicationManager/listLaunchPoints"
	uriForegroundApp     = "ssap://com.webos.applicationManager/getForegroundAppInfo"
	uriGetVolume         = "ssap://audio/getVolume"
	uriSetVolume         = "ssap://audio/setVolume"
	uriSetMute           = "ssap://audio/setMute"
	uriVolumeUp          = "ssap://audio/volumeUp"
	uriVolumeDown        = "ssap://audio/volumeDown"
	uriTurnOff           = "ssap://system/turnOff"
	uriLaunch            = "ssap://system.launcher/launch"
	uriCreateToast       = "ssap://system.notifications/createToast"
	uriInsertText        = "ssap://com.webos.service.ime/insertText"
	uriSendEnterKey      = "ssap://com.webos.service.ime/sendEnterKey"
	uriDeleteCharacters  = "ssap://com.webos.service.ime/deleteCharacters"
	uriChannelUp         = "ssap://tv/channelUp"
	uriChannelDown       = "ssap://tv/channelDown"
	uriMediaControlsBase = "ssap://media.controls/"
)
