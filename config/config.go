/*
fox32 - fox32.cfg line-oriented configuration parser.

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

// Package config parses fox32.cfg: one directive per line, '#' starts a
// comment that runs to end of line. Recognized directives:
//
//	rom <path>
//	ram <size>[K|M]
//	disk <id> <path>
//	disk_seek_latency <ticks>
//	log <path>
//
// Unknown directives are a parse error; blank lines are skipped.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Disk is one `disk` directive: a slot id and the image path to mount
// there at startup.
type Disk struct {
	ID   int
	Path string
}

// Config is the parsed contents of a fox32.cfg file.
type Config struct {
	ROMPath string
	RAMSize uint32
	LogPath string
	Disks   []Disk

	// DiskSeekLatencyTicks enables internal/disk's optional seek-latency
	// modeling when nonzero; see disk_seek_latency directive. Zero (the
	// default) keeps disk sector operations synchronous with no
	// completion interrupt, matching spec.md §4.5.
	DiskSeekLatencyTicks int
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &Config{}
	scanner := bufio.NewScanner(file)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		if err := cfg.parseLine(scanner.Text()); err != nil {
			return nil, fmt.Errorf("fox32.cfg line %d: %w", lineNumber, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parseLine(raw string) error {
	line := stripComment(raw)
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	fields := strings.Fields(line)
	directive := strings.ToLower(fields[0])
	args := fields[1:]

	switch directive {
	case "rom":
		if len(args) != 1 {
			return errors.New("rom requires exactly one path")
		}
		c.ROMPath = args[0]
	case "ram":
		if len(args) != 1 {
			return errors.New("ram requires exactly one size")
		}
		size, err := parseSize(args[0])
		if err != nil {
			return err
		}
		c.RAMSize = size
	case "log":
		if len(args) != 1 {
			return errors.New("log requires exactly one path")
		}
		c.LogPath = args[0]
	case "disk":
		if len(args) != 2 {
			return errors.New("disk requires an id and a path")
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid disk id %q: %w", args[0], err)
		}
		c.Disks = append(c.Disks, Disk{ID: id, Path: args[1]})
	case "disk_seek_latency":
		if len(args) != 1 {
			return errors.New("disk_seek_latency requires exactly one tick count")
		}
		ticks, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid disk_seek_latency %q: %w", args[0], err)
		}
		c.DiskSeekLatencyTicks = ticks
	default:
		return fmt.Errorf("unknown directive %q", fields[0])
	}
	return nil
}

// stripComment removes everything from the first '#' onward. Quotes are
// not recognized, so a '#' inside a path also starts a comment.
func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

// parseSize accepts a decimal byte count with an optional K or M suffix.
func parseSize(s string) (uint32, error) {
	mult := uint64(1)
	switch {
	case strings.HasSuffix(s, "K") || strings.HasSuffix(s, "k"):
		mult = 1024
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M") || strings.HasSuffix(s, "m"):
		mult = 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	v := n * mult
	if v > 0xFFFFFFFF {
		return 0, fmt.Errorf("size %q overflows a 32-bit byte count", s)
	}
	return uint32(v), nil
}
