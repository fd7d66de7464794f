// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Sffs crash test. The master process spawns a dummie writing to a flash
// image, kills it at a random moment, verifies the image still mounts and
// every file reads back consistent content, and repeats.
package main

import (
	"bytes"
	"flag"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iqyx/sffs/flash"
	"github.com/iqyx/sffs/sffs"
)

const (
	imgCap    = 1 << 20
	imgPage   = 256
	imgSector = 4096
	maxID     = 32
)

var oFile = flag.String("f", "crash.img", "crash test flash image name")

func openImage(create bool) (*flash.FileFlash, error) {
	fl := os.O_RDWR
	if create {
		fl |= os.O_CREATE
	}
	f, err := os.OpenFile(*oFile, fl, 0666)
	if err != nil {
		return nil, errors.Wrap(err, "open image")
	}

	return flash.NewFileFlash(f, imgCap, imgPage, imgSector)
}

// dummie writes files whose content is their id byte repeated, so any torn
// or cross wired page is detectable by the master without shared state.
func dummie() {
	dev, err := openImage(true)
	if err != nil {
		logrus.Fatal(err)
	}

	fs, err := sffs.Mount(dev)
	if err != nil {
		if err = sffs.Format(dev, "crash"); err != nil {
			logrus.Fatal(err)
		}

		if fs, err = sffs.Mount(dev); err != nil {
			logrus.Fatal(err)
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	c := time.After(time.Minute)
	for i := 0; ; i++ {
		select {
		case <-c:
			logrus.Fatal("timeout")
		default:
		}

		id := uint16(rng.Intn(maxID) + 1)
		b := bytes.Repeat([]byte{byte(id)}, 1+rng.Intn(4*imgPage))
		f, err := fs.OpenID(id, sffs.ModeOverwrite)
		if err != nil {
			logrus.Fatal(err)
		}

		if _, err = f.WriteAt(b, 0); err != nil {
			if sffs.IsNoSpace(err) {
				f.Close()
				if err = fs.Remove(uint16(rng.Intn(maxID) + 1)); err != nil && !sffs.IsNotFound(err) {
					logrus.Fatal(err)
				}

				continue
			}

			logrus.Fatal(err)
		}
		f.Close()
	}
}

func verify() error {
	dev, err := openImage(false)
	if err != nil {
		return err
	}

	defer dev.Close()
	fs, err := sffs.Mount(dev)
	if err != nil {
		return errors.Wrap(err, "mount after crash")
	}

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

		f, err := fs.OpenID(id, sffs.ModeRead)
		if err != nil {
			return err
		}

		b := make([]byte, size)
		if _, err = f.ReadAt(b, 0); err != nil && err != io.EOF {
			f.Close()
			return err
		}

		f.Close()
		for off, v := range b {
			if v != byte(id) {
				return errors.Errorf("file %d: byte %d is %#02x", id, off, v)
			}
		}
	}
	logrus.Infof("image ok, %d files", len(ids))
	return nil
}

func main() {
	oTest := flag.Bool("test", false, "run as a crash test dummie")
	flag.Parse()
	if *oTest {
		dummie() // does/should not return
		panic("unreachable")
	}

	logrus.Info("master started")
	for ncrash := 1; ; ncrash++ {
		os.Remove(*oFile)
		lifespan := time.Duration(1+rand.Intn(10)) * time.Second
		proc, err := os.StartProcess(
			os.Args[0],
			[]string{os.Args[0], "-test", "-f", *oFile},
			&os.ProcAttr{Files: []*os.File{os.Stdin, os.Stdout, os.Stderr}},
		)
		if err != nil {
			logrus.Fatal(err)
		}

		<-time.After(lifespan)
		if err = proc.Kill(); err != nil {
			logrus.Fatal(err)
		}

		proc.Wait()
		if err = verify(); err != nil {
			logrus.Fatalf("crash %d: %v", ncrash, err)
		}

		logrus.Infof("crash %d survived", ncrash)
	}
}
