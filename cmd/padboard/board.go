package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Roman77St/padboard/board"
	"github.com/Roman77St/padboard/clipstore"
)

func exportCommand(a *app) *cobra.Command {
	var withAudio bool
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Export the board, optionally with embedded audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.exportBoard(cmd.Context(), args[0], withAudio)
		},
	}
	cmd.Flags().BoolVar(&withAudio, "with-audio", false, "Embed referenced clips as data URIs")
	return cmd
}

func (a *app) exportBoard(ctx context.Context, path string, withAudio bool) error {
	clips, err := a.openClips()
	if err != nil {
		return err
	}
	b, err := a.loadBoard(ctx)
	if err != nil {
		return err
	}
	bf, err := board.Export(ctx, b, clips, withAudio)
	if err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := bf.Write(out); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	a.log.Info("board exported", "path", path, "pads", len(bf.Pads), "sounds", len(bf.Sounds))
	return nil
}

func importCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the board with an exported file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.importBoard(cmd.Context(), args[0])
		},
	}
}

func (a *app) importBoard(ctx context.Context, path string) error {
	clips, err := a.openClips()
	if err != nil {
		return err
	}
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	bf, err := board.ReadFile(in)
	if err != nil {
		return err
	}
	b := board.New(a.settings.Board.Banks, a.settings.Board.Pads)
	if err := board.Import(ctx, bf, b, clips); err != nil {
		return err
	}
	if err := a.saveBoard(ctx, b); err != nil {
		return err
	}
	a.log.Info("board imported", "path", path, "pads", len(bf.Pads), "sounds", len(bf.Sounds))
	return nil
}

type assignFlags struct {
	name    string
	key     string
	mode    string
	group   string
	note    int
	volume  float64
	track   string
	trimIn  float64
	trimOut float64
}

// assignCommand — редактор пэда из командной строки: кладёт файл в библиотеку
// и привязывает его (или удалённый трек) к пэду.
func assignCommand(a *app) *cobra.Command {
	f := &assignFlags{}
	cmd := &cobra.Command{
		Use:   "assign <bank:index> [audio-file]",
		Short: "Assign a clip or a remote track to a pad",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) == 2 {
				file = args[1]
			}
			return a.assign(cmd, args[0], file, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.name, "name", "", "Pad name")
	fl.StringVar(&f.key, "key", "", "Keyboard label, e.g. A or 7")
	fl.StringVar(&f.mode, "mode", "", "Trigger mode: oneshot, gate, toggleLoop")
	fl.StringVar(&f.group, "group", "", "Exclusive group label")
	fl.IntVar(&f.note, "midi-note", -1, "MIDI note 0..127")
	fl.Float64Var(&f.volume, "volume", board.DefaultVolume, "Volume 0..2")
	fl.StringVar(&f.track, "track", "", "Remote track reference instead of a local clip")
	fl.Float64Var(&f.trimIn, "trim-start", 0, "Start offset in seconds")
	fl.Float64Var(&f.trimOut, "trim-end", 0, "End offset in seconds, 0 for clip end")
	return cmd
}

func (a *app) assign(cmd *cobra.Command, padID, file string, f *assignFlags) error {
	ctx := cmd.Context()
	if f.mode != "" && !board.TriggerMode(f.mode).Valid() {
		return fmt.Errorf("unknown mode %q", f.mode)
	}
	if f.note > 127 {
		return fmt.Errorf("midi note %d out of range", f.note)
	}

	b, err := a.loadBoard(ctx)
	if err != nil {
		return err
	}

	var clipID string
	if file != "" {
		clips, err := a.openClips()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		clip := clipstore.NewClip(filepath.Base(file), mime.TypeByExtension(filepath.Ext(file)), data)
		if err := clips.Put(ctx, clip); err != nil {
			return err
		}
		clipID = clip.ID
	}

	changed := cmd.Flags().Changed
	pad, err := b.Update(padID, func(p *board.Pad) {
		switch {
		case clipID != "":
			p.Sound.SetClip(clipID)
		case f.track != "":
			p.Sound.SetTrack(f.track)
		}
		if changed("name") {
			p.Name = f.name
		}
		if changed("key") {
			p.Key = strings.TrimSpace(f.key)
		}
		if changed("mode") {
			p.Mode = board.TriggerMode(f.mode)
		}
		if changed("group") {
			p.Group = f.group
		}
		if changed("midi-note") {
			if f.note < 0 {
				p.MIDINote = nil
			} else {
				n := uint8(f.note)
				p.MIDINote = &n
			}
		}
		if changed("volume") {
			p.Volume = f.volume
		}
		if changed("trim-start") {
			p.TrimStart = f.trimIn
		}
		if changed("trim-end") {
			p.TrimEnd = f.trimOut
		}
	})
	if err != nil {
		return err
	}
	if err := a.saveBoard(ctx, b); err != nil {
		return err
	}
	a.log.Info("pad assigned", "pad", pad.ID(), "clip", pad.Sound.Clip, "track", pad.Sound.Track, "mode", string(pad.EffectiveMode()))
	return nil
}

func clipsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clips",
		Short: "List clips in the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			clips, err := a.openClips()
			if err != nil {
				return err
			}
			list, err := clips.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tCREATED")
			for _, c := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Type, c.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}
