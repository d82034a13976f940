package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Roman77St/padboard"
	"github.com/Roman77St/padboard/dispatch"
)

// portsCommand перечисляет входы MIDI и, с --audio, устройства вывода malgo.
func portsCommand() *cobra.Command {
	var audio bool

	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List MIDI input ports and audio playback devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ports := dispatch.Ports()
			if len(ports) == 0 {
				fmt.Fprintln(out, "no MIDI input ports found")
			}
			for _, p := range ports {
				fmt.Fprintln(out, "midi:", p)
			}
			if !audio {
				return nil
			}

			devices, err := padboard.PlaybackDevices()
			if err != nil {
				return err
			}
			for _, d := range devices {
				fmt.Fprintln(out, "audio:", d)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&audio, "audio", false, "Also list playback devices for the malgo backend")
	return cmd
}
