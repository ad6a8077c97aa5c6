package executor

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fixdesk/remotedesk/shared"
)

// namedKeys maps browser key identifiers to injector key names.
var namedKeys = map[string]string{
	"Enter":           "enter",
	"Escape":          "esc",
	"Backspace":       "backspace",
	"Tab":             "tab",
	"Delete":          "delete",
	"Insert":          "insert",
	"Home":            "home",
	"End":             "end",
	"PageUp":          "pageup",
	"PageDown":        "pagedown",
	"ArrowLeft":       "left",
	"ArrowRight":      "right",
	"ArrowUp":         "up",
	"ArrowDown":       "down",
	" ":               "space",
	"Spacebar":        "space",
	"CapsLock":        "capslock",
	"Shift":           "shift",
	"Control":         "ctrl",
	"Alt":             "alt",
	"Meta":            "cmd",
	"PrintScreen":     "printscreen",
	"AudioVolumeMute": "audio_mute",
	"AudioVolumeDown": "audio_vol_down",
	"AudioVolumeUp":   "audio_vol_up",
}

// shifted are printable characters typed with shift on a US layout.
var shifted = map[rune]rune{
	'!': '1', '@': '2', '#': '3', '$': '4', '%': '5', '^': '6', '&': '7',
	'*': '8', '(': '9', ')': '0', '_': '-', '+': '=', '{': '[', '}': ']',
	'|': '\\', ':': ';', '"': '\'', '<': ',', '>': '.', '?': '/', '~': '`',
}

// ResolveKey translates a browser key identifier into an injector key name
// plus modifiers. Unsupported identifiers wrap shared.ErrCommandDecode.
func ResolveKey(key string) (string, []string, error) {
	if name, ok := namedKeys[key]; ok {
		return name, nil, nil
	}
	if n, ok := functionKey(key); ok {
		return fmt.Sprintf("f%d", n), nil, nil
	}
	if utf8.RuneCountInString(key) != 1 {
		return "", nil, fmt.Errorf("%w: unsupported key %q", shared.ErrCommandDecode, key)
	}
	r, _ := utf8.DecodeRuneInString(key)
	switch {
	case r >= 'A' && r <= 'Z':
		return string(unicode.ToLower(r)), []string{"shift"}, nil
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return key, nil, nil
	case strings.ContainsRune("-=[]\\;',./`", r):
		return key, nil, nil
	}
	if base, ok := shifted[r]; ok {
		return string(base), []string{"shift"}, nil
	}
	return "", nil, fmt.Errorf("%w: unsupported key %q", shared.ErrCommandDecode, key)
}

func functionKey(key string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(key, "F%d", &n); err != nil {
		return 0, false
	}
	if n < 1 || n > 24 || key != fmt.Sprintf("F%d", n) {
		return 0, false
	}
	return n, true
}
