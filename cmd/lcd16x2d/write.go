// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type writeOptions struct {
	node string
	raw  bool
}

func newWriteCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &writeOptions{}
	cmd := &cobra.Command{
		Use:   "write [text...]",
		Short: "Show text on a served display",
		Long: `Write text to the device node of a running "lcd16x2d serve". The
arguments are joined with spaces; without arguments the text is read from
stdin and one trailing newline is dropped.

Accents are stripped and other characters the display cannot show become
'?', unless --raw is given. The display keeps the first 16 bytes.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load(nil)
			if err != nil {
				return err
			}
			path := opts.node
			if path == "" {
				path = filepath.Join(cfg.Device.DevDir, cfg.Device.Name)
			}
			var text string
			if len(args) > 0 {
				text = strings.Join(args, " ")
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = strings.TrimSuffix(string(b), "\n")
			}
			if !opts.raw {
				text = fold(text)
			}
			return writeNode(path, []byte(text))
		},
	}
	cmd.Flags().StringVar(&opts.node, "node", "", "device node (defaults to dev_dir/name from the configuration)")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "send the bytes unchanged")
	return cmd
}

// writeNode sends b in a single write. It fails instead of blocking when
// nothing serves the node.
func writeNode(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, unix.ENXIO) {
			return fmt.Errorf("%s: no reader, is lcd16x2d serve running?", path)
		}
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var dropMarks = runes.Remove(runes.In(unicode.Mn))

// fold maps text onto the ASCII part of the character ROM.
func fold(s string) string {
	if out, _, err := transform.String(transform.Chain(norm.NFD, dropMarks, norm.NFC), s); err == nil {
		s = out
	}
	var b strings.Builder
	for _, r := range s {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		} else {
			b.WriteByte('?')
		}
	}
	return b.String()
}
