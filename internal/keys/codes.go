package keys

// Physical key codes, aligned with the Linux input-event-codes KEY_*/BTN_*
// values so the device layer can pass codes through unmodified.
const (
	Escape         Key = 1
	Digit1         Key = 2
	Digit2         Key = 3
	Digit3         Key = 4
	Digit4         Key = 5
	Digit5         Key = 6
	Digit6         Key = 7
	Digit7         Key = 8
	Digit8         Key = 9
	Digit9         Key = 10
	Digit0         Key = 11
	Minus          Key = 12
	Equal          Key = 13
	Backspace      Key = 14
	Tab            Key = 15
	Q              Key = 16
	W              Key = 17
	E              Key = 18
	R              Key = 19
	T              Key = 20
	Y              Key = 21
	U              Key = 22
	I              Key = 23
	O              Key = 24
	P              Key = 25
	BracketLeft    Key = 26
	BracketRight   Key = 27
	Enter          Key = 28
	ControlLeft    Key = 29
	A              Key = 30
	S              Key = 31
	D              Key = 32
	F              Key = 33
	G              Key = 34
	H              Key = 35
	J              Key = 36
	K              Key = 37
	L              Key = 38
	Semicolon      Key = 39
	Quote          Key = 40
	Backquote      Key = 41
	ShiftLeft      Key = 42
	Backslash      Key = 43
	Z              Key = 44
	X              Key = 45
	C              Key = 46
	V              Key = 47
	B              Key = 48
	N              Key = 49
	M              Key = 50
	Comma          Key = 51
	Period         Key = 52
	Slash          Key = 53
	ShiftRight     Key = 54
	NumpadMultiply Key = 55
	AltLeft        Key = 56
	Space          Key = 57
	CapsLock       Key = 58
	F1             Key = 59
	F2             Key = 60
	F3             Key = 61
	F4             Key = 62
	F5             Key = 63
	F6             Key = 64
	F7             Key = 65
	F8             Key = 66
	F9             Key = 67
	F10            Key = 68
	NumLock        Key = 69
	ScrollLock     Key = 70
	Numpad7        Key = 71
	Numpad8        Key = 72
	Numpad9        Key = 73
	NumpadSubtract Key = 74
	Numpad4        Key = 75
	Numpad5        Key = 76
	Numpad6        Key = 77
	NumpadAdd      Key = 78
	Numpad1        Key = 79
	Numpad2        Key = 80
	Numpad3        Key = 81
	Numpad0        Key = 82
	NumpadDecimal  Key = 83
	IntlBackslash  Key = 86
	F11            Key = 87
	F12            Key = 88
	NumpadEnter    Key = 96
	ControlRight   Key = 97
	NumpadDivide   Key = 98
	PrintScreen    Key = 99
	AltRight       Key = 100
	Home           Key = 102
	ArrowUp        Key = 103
	PageUp         Key = 104
	ArrowLeft      Key = 105
	ArrowRight     Key = 106
	End            Key = 107
	ArrowDown      Key = 108
	PageDown       Key = 109
	Insert         Key = 110
	Delete         Key = 111
	Mute           Key = 113
	VolumeDown     Key = 114
	VolumeUp       Key = 115
	Pause          Key = 119
	MetaLeft       Key = 125
	MetaRight      Key = 126
	ContextMenu    Key = 127
	MediaPlayPause Key = 164
	MediaStop      Key = 166
	MediaPrevious  Key = 165
	MediaNext      Key = 163

	// Pointer buttons (BTN_LEFT..BTN_TASK).
	ButtonLeft    Key = 0x110
	ButtonRight   Key = 0x111
	ButtonMiddle  Key = 0x112
	ButtonSide    Key = 0x113
	ButtonExtra   Key = 0x114
	ButtonForward Key = 0x115
	ButtonBack    Key = 0x116
	ButtonTask    Key = 0x117
)

var physicalNames = map[Key]string{
	Escape: "Escape", Digit1: "1", Digit2: "2", Digit3: "3", Digit4: "4",
	Digit5: "5", Digit6: "6", Digit7: "7", Digit8: "8", Digit9: "9",
	Digit0: "0", Minus: "Minus", Equal: "Equal", Backspace: "Backspace",
	Tab: "Tab", Q: "Q", W: "W", E: "E", R: "R", T: "T", Y: "Y", U: "U",
	I: "I", O: "O", P: "P", BracketLeft: "BracketLeft",
	BracketRight: "BracketRight", Enter: "Enter", ControlLeft: "ControlLeft",
	A: "A", S: "S", D: "D", F: "F", G: "G", H: "H", J: "J", K: "K", L: "L",
	Semicolon: "Semicolon", Quote: "Quote", Backquote: "Backquote",
	ShiftLeft: "ShiftLeft", Backslash: "Backslash", Z: "Z", X: "X", C: "C",
	V: "V", B: "B", N: "N", M: "M", Comma: "Comma", Period: "Period",
	Slash: "Slash", ShiftRight: "ShiftRight",
	NumpadMultiply: "NumpadMultiply", AltLeft: "AltLeft", Space: "Space",
	CapsLock: "CapsLock", F1: "F1", F2: "F2", F3: "F3", F4: "F4", F5: "F5",
	F6: "F6", F7: "F7", F8: "F8", F9: "F9", F10: "F10", NumLock: "NumLock",
	ScrollLock: "ScrollLock", Numpad7: "Numpad7", Numpad8: "Numpad8",
	Numpad9: "Numpad9", NumpadSubtract: "NumpadSubtract", Numpad4: "Numpad4",
	Numpad5: "Numpad5", Numpad6: "Numpad6", NumpadAdd: "NumpadAdd",
	Numpad1: "Numpad1", Numpad2: "Numpad2", Numpad3: "Numpad3",
	Numpad0: "Numpad0", NumpadDecimal: "NumpadDecimal",
	IntlBackslash: "IntlBackslash", F11: "F11", F12: "F12",
	NumpadEnter: "NumpadEnter", ControlRight: "ControlRight",
	NumpadDivide: "NumpadDivide", PrintScreen: "PrintScreen",
	AltRight: "AltRight", Home: "Home", ArrowUp: "ArrowUp", PageUp: "PageUp",
	ArrowLeft: "ArrowLeft", ArrowRight: "ArrowRight", End: "End",
	ArrowDown: "ArrowDown", PageDown: "PageDown", Insert: "Insert",
	Delete: "Delete", Mute: "Mute", VolumeDown: "VolumeDown",
	VolumeUp: "VolumeUp", Pause: "Pause", MetaLeft: "MetaLeft",
	MetaRight: "MetaRight", ContextMenu: "ContextMenu",
	MediaPlayPause: "MediaPlayPause", MediaStop: "MediaStop",
	MediaPrevious: "MediaPrevious", MediaNext: "MediaNext",
	ButtonLeft: "ButtonLeft", ButtonRight: "ButtonRight",
	ButtonMiddle: "ButtonMiddle", ButtonSide: "ButtonSide",
	ButtonExtra: "ButtonExtra", ButtonForward: "ButtonForward",
	ButtonBack: "ButtonBack", ButtonTask: "ButtonTask",
}

var physicalCodes = func() map[string]Key {
	m := make(map[string]Key, len(physicalNames))
	for k, name := range physicalNames {
		m[name] = k
	}
	return m
}()
