// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sffstool manipulates sffs flash image files.
package main

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iqyx/sffs/flash"
	"github.com/iqyx/sffs/sffs"
)

var (
	oImage  string
	oCap    int64
	oPage   int
	oSector int
)

func openImage(create bool) (*flash.FileFlash, error) {
	fl := os.O_RDWR
	if create {
		fl |= os.O_CREATE
	}
	f, err := os.OpenFile(oImage, fl, 0666)
	if err != nil {
		return nil, err
	}

	return flash.NewFileFlash(f, oCap, oPage, oSector)
}

func mount() (*flash.FileFlash, *sffs.FS, error) {
	dev, err := openImage(false)
	if err != nil {
		return nil, nil, err
	}

	fs, err := sffs.Mount(dev)
	if err != nil {
		dev.Close()
		return nil, nil, err
	}

	return dev, fs, nil
}

func idArg(arg string) (uint16, error) {
	var id uint16
	if _, err := fmt.Sscanf(arg, "%d", &id); err != nil {
		return 0, err
	}

	return id, nil
}

func main() {
	root := &cobra.Command{
		Use:           "sffstool",
		Short:         "inspect and modify sffs flash images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&oImage, "image", "f", "sffs.img", "flash image file")
	root.PersistentFlags().Int64Var(&oCap, "capacity", 1<<20, "device capacity in bytes")
	root.PersistentFlags().IntVar(&oPage, "page", 256, "page size in bytes")
	root.PersistentFlags().IntVar(&oSector, "sector", 4096, "sector size in bytes")

	root.AddCommand(
		&cobra.Command{
			Use:   "format [label]",
			Short: "erase the image and create an empty filesystem",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				label := ""
				if len(args) == 1 {
					label = args[0]
				}
				dev, err := openImage(true)
				if err != nil {
					return err
				}

				defer dev.Close()
				if err = sffs.Format(dev, label); err != nil {
					return err
				}

				return dev.Sync()
			},
		},
		&cobra.Command{
			Use:   "info",
			Short: "print label and geometry",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				dev, fs, err := mount()
				if err != nil {
					return err
				}

				defer dev.Close()
				defer fs.Close()
				info := fs.Info()
				fmt.Printf("label    %q\n", fs.Label())
				fmt.Printf("capacity %d\n", info.Capacity)
				fmt.Printf("page     %d\n", info.PageSize)
				fmt.Printf("sector   %d\n", info.SectorSize)
				return nil
			},
		},
		&cobra.Command{
			Use:   "ls",
			Short: "list files",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				dev, fs, err := mount()
				if err != nil {
					return err
				}

				defer dev.Close()
				defer fs.Close()
				ids, err := fs.FileIDs()
				if err != nil {
					return err
				}

				for _, id := range ids {
					size, err := fs.FileSize(id)
					if err != nil {
						return err
					}

					fmt.Printf("%5d %8d\n", id, size)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "put id [file]",
			Short: "write a file into the image (stdin when no file given)",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := idArg(args[0])
				if err != nil {
					return err
				}

				var b []byte
				if len(args) == 2 {
					if b, err = ioutil.ReadFile(args[1]); err != nil {
						return err
					}
				} else if b, err = ioutil.ReadAll(os.Stdin); err != nil {
					return err
				}

				dev, fs, err := mount()
				if err != nil {
					return err
				}

				defer dev.Close()
				defer fs.Close()
				fs.Remove(id) // replace, not merge
				f, err := fs.OpenID(id, sffs.ModeOverwrite)
				if err != nil {
					return err
				}

				if _, err = f.Write(b); err != nil {
					return err
				}

				if err = f.Close(); err != nil {
					return err
				}

				return dev.Sync()
			},
		},
		&cobra.Command{
			Use:   "get id",
			Short: "copy a file from the image to stdout",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := idArg(args[0])
				if err != nil {
					return err
				}

				dev, fs, err := mount()
				if err != nil {
					return err
				}

				defer dev.Close()
				defer fs.Close()
				f, err := fs.OpenID(id, sffs.ModeRead)
				if err != nil {
					return err
				}

				defer f.Close()
				b := make([]byte, 1<<16)
				for {
					n, err := f.Read(b)
					if n != 0 {
						if _, werr := os.Stdout.Write(b[:n]); werr != nil {
							return werr
						}
					}
					if err == io.EOF {
						return nil
					}

					if err != nil {
						return err
					}
				}
			},
		},
		&cobra.Command{
			Use:   "rm id",
			Short: "remove a file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := idArg(args[0])
				if err != nil {
					return err
				}

				dev, fs, err := mount()
				if err != nil {
					return err
				}

				defer dev.Close()
				defer fs.Close()
				if err = fs.Remove(id); err != nil {
					return err
				}

				return dev.Sync()
			},
		},
		&cobra.Command{
			Use:   "debug",
			Short: "dump the volume structure",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				dev, fs, err := mount()
				if err != nil {
					return err
				}

				defer dev.Close()
				defer fs.Close()
				fs.DebugPrint(os.Stdout)
				return nil
			},
		},
	)

	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
