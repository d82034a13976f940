package main

import (
	"os"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // регистрирует MIDI-драйвер
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
