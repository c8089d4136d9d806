/*
fox32 - Main process: wires memory, CPU, I/O bus and devices together and
runs the fetch-decode-execute loop.

Copyright 2026, fox32vm contributors.

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	getopt "github.com/pborman/getopt/v2"

	"github.com/fox32vm/fox32/config"
	"github.com/fox32vm/fox32/internal/audio"
	"github.com/fox32vm/fox32/internal/cpu"
	"github.com/fox32vm/fox32/internal/disk"
	"github.com/fox32vm/fox32/internal/hid"
	"github.com/fox32vm/fox32/internal/iobus"
	"github.com/fox32vm/fox32/internal/memory"
	"github.com/fox32vm/fox32/internal/overlay"
	"github.com/fox32vm/fox32/util/console"
	"github.com/fox32vm/fox32/util/logger"
)

// romPaths is tried in order until one is found, per SPEC_FULL.md §6.
var romPaths = []string{"fox32.rom", "../fox32rom/fox32.rom"}

// Fixed RAM offsets for the two audio half-buffers, per original_source's
// audio.rs AUDIO_BUFFER_0/1_ADDRESS.
const (
	audioBufferA uint32 = 0x0212C000
	audioBufferB uint32 = 0x02134000
)

// discardSink implements audio.Sink; this CLI has no host audio backend
// wired, since spec.md scopes the host window/event loop out entirely.
type discardSink struct{}

func (discardSink) Write(samples []int16) {}

func main() {
	optConfigPath := getopt.StringLong("config", 'c', "fox32.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optRAMSize := getopt.Uint32Long("ram", 'r', memory.DefaultRAMSize, "RAM size in bytes")
	optConsole := getopt.BoolLong("console", 0, "Start the interactive debug console")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var logFile *os.File
	if *optLogFile != "" {
		var err error
		logFile, err = os.Create(*optLogFile)
		if err != nil {
			slog.Error("creating log file", "path", *optLogFile, "error", err)
			os.Exit(1)
		}
		defer logFile.Close()
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	log := slog.New(logger.NewHandler(logFile, &slog.HandlerOptions{Level: programLevel}, false))
	slog.SetDefault(log)

	log.Info("fox32 starting")

	cfg := &config.Config{RAMSize: *optRAMSize}
	if _, err := os.Stat(*optConfigPath); err == nil {
		loaded, err := config.Load(*optConfigPath)
		if err != nil {
			log.Error("loading config", "path", *optConfigPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
		if cfg.RAMSize == 0 {
			cfg.RAMSize = *optRAMSize
		}
	}

	rom, err := loadROM(cfg.ROMPath)
	if err != nil {
		log.Error("loading ROM", "error", err)
		os.Exit(1)
	}

	mem := memory.New(cfg.RAMSize, uint32(len(rom)))
	mem.LoadROM(rom)

	overlays := overlay.NewTable()
	keyboard := hid.NewKeyboard()
	mouse := hid.NewMouse()
	diskCtl := disk.New()
	audioChan := audio.New(audioBufferA, audioBufferB)

	hardIRQ := make(chan uint8, 8)
	diskCtl.SetIRQ(hardIRQ)
	diskCtl.SetSeekLatency(cfg.DiskSeekLatencyTicks)
	bus := iobus.New(overlays, keyboard, mouse, audioChan, diskCtl, mem)
	bus.Terminal = os.Stdout
	bus.OnFatal = func(err error) {
		log.Error("device fault", "error", err)
		if errors.Is(err, disk.ErrSeekPastEnd) {
			os.Exit(1)
		}
	}

	for _, d := range cfg.Disks {
		if err := mountDisk(diskCtl, d.ID, d.Path); err != nil {
			log.Error("mounting disk", "id", d.ID, "path", d.Path, "error", err)
			os.Exit(1)
		}
	}
	for id, path := range getopt.Args() {
		if err := mountDisk(diskCtl, id, path); err != nil {
			log.Error("mounting disk", "id", id, "path", path, "error", err)
			os.Exit(1)
		}
	}

	c := cpu.New(mem, bus, hardIRQ)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		audioChan.Run(ctx, mem, discardSink{}, hardIRQ)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if *optConsole {
		console.New(console.Target{CPU: c, Mem: mem}).Run()
	} else {
		runCh := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(runCh)
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				// Step blocks internally on hardIRQ while halted (§5), so
				// this keeps driving the CPU through idle waits instead of
				// tearing the loop down on the first halt; it only exits
				// once halted and the channel is known closed.
				c.Step()
				diskCtl.Tick()
				if c.Halted() && c.Closed() {
					return
				}
			}
		}()

		select {
		case <-sigChan:
			log.Info("shutdown signal received")
		case <-runCh:
			log.Info("CPU halted")
		}
	}

	cancel()

	// hardIRQ is left open: the audio task only ever sends to it (never
	// ranges over it), and closing it here would race its in-flight tick
	// against this goroutine. It is simply dropped once both goroutines
	// return below.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		log.Warn("shutdown timed out waiting for device tasks")
	}

	log.Info("fox32 stopped")
}

func loadROM(configured string) ([]byte, error) {
	candidates := romPaths
	if configured != "" {
		candidates = append([]string{configured}, romPaths...)
	}
	var lastErr error
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func mountDisk(ctl *disk.Controller, id int, path string) error {
	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	return ctl.Mount(id, file)
}
