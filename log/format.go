package log

import (
	"os"

	logging "github.com/op/go-logging"
	"golang.org/x/crypto/ssh/terminal"
)

var (
	textFormat    = logging.MustStringFormatter(`%{time:2006-01-02T15:04:05.000Z07:00} %{level} %{shortfile} %{message}`)
	textFormatTTY = logging.MustStringFormatter(`%{color}%{time:15:04:05.000} %{level:.4s}%{color:reset} %{shortfile} %{message}`)
)

// GetTextFormat picks the colored format when stdin is attached to a terminal.
func GetTextFormat() logging.Formatter {
	if terminal.IsTerminal(int(os.Stdin.Fd())) {
		return textFormatTTY
	}
	return textFormat
}
