/*
fox32 - Local interactive debug console.

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

// Package console is a liner-backed read-only introspection REPL plus a
// `brk` pause/resume/step surface: regs, mem, step, break, continue,
// disasm. It never mutates guest state beyond advancing the CPU via Step.
package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/fox32vm/fox32/internal/cpu"
	"github.com/fox32vm/fox32/internal/decode"
	"github.com/fox32vm/fox32/internal/disassemble"
	"github.com/fox32vm/fox32/internal/memory"
)

// Target is what the console inspects and single-steps.
type Target struct {
	CPU *cpu.CPU
	Mem *memory.Memory
}

type cmd struct {
	name    string
	process func(console *Console, args []string) error
}

var cmdList = []cmd{
	{"regs", (*Console).cmdRegs},
	{"mem", (*Console).cmdMem},
	{"step", (*Console).cmdStep},
	{"break", (*Console).cmdBreak},
	{"continue", (*Console).cmdContinue},
	{"disasm", (*Console).cmdDisasm},
	{"quit", (*Console).cmdQuit},
}

// Console runs the REPL loop against a Target.
type Console struct {
	target     Target
	breakpoint map[uint32]bool
	quit       bool
}

// New returns a console attached to target.
func New(target Target) *Console {
	return &Console{target: target, breakpoint: map[uint32]bool{}}
}

// Run drives the REPL until the user quits or Ctrl-D/Ctrl-C aborts it.
func (c *Console) Run() {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(partial string) []string {
		var out []string
		for _, entry := range cmdList {
			if strings.HasPrefix(entry.name, partial) {
				out = append(out, entry.name)
			}
		}
		return out
	})

	for !c.quit {
		input, err := line.Prompt("fox32> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				return
			}
			fmt.Println("error reading line:", err)
			return
		}
		line.AppendHistory(input)
		if err := c.dispatch(input); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func (c *Console) dispatch(input string) error {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]
	for _, entry := range cmdList {
		if entry.name == name {
			return entry.process(c, args)
		}
	}
	return fmt.Errorf("unknown command %q", name)
}

func (c *Console) cmdQuit(_ []string) error {
	c.quit = true
	return nil
}

func (c *Console) cmdRegs(_ []string) error {
	cp := c.target.CPU
	for i := uint8(0); i < 32; i += 4 {
		fmt.Printf("r%-2d=%08x  r%-2d=%08x  r%-2d=%08x  r%-2d=%08x\n",
			i, cp.Reg(i), i+1, cp.Reg(i+1), i+2, cp.Reg(i+2), i+3, cp.Reg(i+3))
	}
	fmt.Printf("rsp=%08x resp=%08x rfp=%08x ip=%08x\n",
		cp.Reg(cpu.RegRSP), cp.Reg(cpu.RegRESP), cp.Reg(cpu.RegRFP), cp.IP())
	zero, carry, interrupt, swapSP := cp.Flags()
	fmt.Printf("flags: zero=%t carry=%t interrupt=%t swap_sp=%t halted=%t\n",
		zero, carry, interrupt, swapSP, cp.Halted())
	return nil
}

func (c *Console) cmdMem(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: mem <addr> <len>")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid length %q: %w", args[1], err)
	}

	for i := 0; i < n; i += 16 {
		fmt.Printf("%08x: ", addr+uint32(i))
		for j := 0; j < 16 && i+j < n; j++ {
			v, pf, fatal := c.target.Mem.Read8(addr + uint32(i+j))
			if fatal != nil {
				return fatal
			}
			if pf {
				fmt.Print("?? ")
				continue
			}
			fmt.Printf("%02x ", v)
		}
		fmt.Println()
	}
	return nil
}

func (c *Console) cmdStep(args []string) error {
	n := 1
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q: %w", args[0], err)
		}
		n = v
	}
	for i := 0; i < n; i++ {
		c.target.CPU.Step()
	}
	return c.cmdRegs(nil)
}

func (c *Console) cmdBreak(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: break <addr>")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	c.breakpoint[addr] = true
	fmt.Printf("breakpoint set at %08x\n", addr)
	return nil
}

func (c *Console) cmdContinue(_ []string) error {
	for {
		c.target.CPU.Step()
		if c.target.CPU.Halted() {
			fmt.Println("halted")
			return nil
		}
		if c.breakpoint[c.target.CPU.IP()] {
			fmt.Printf("breakpoint hit at %08x\n", c.target.CPU.IP())
			return nil
		}
	}
}

func (c *Console) cmdDisasm(args []string) error {
	addr := c.target.CPU.IP()
	if len(args) == 1 {
		v, err := parseAddr(args[0])
		if err != nil {
			return err
		}
		addr = v
	}

	for i := 0; i < 8; i++ {
		half, pf, fatal := c.readHalf(addr)
		if fatal != nil {
			return fatal
		}
		if pf {
			fmt.Printf("%08x: <page fault>\n", addr)
			return nil
		}
		inst, ok := decode.Decode(half)
		if !ok {
			fmt.Printf("%08x: <invalid opcode %04x>\n", addr, half)
			addr += 2
			continue
		}
		text, length, ok := disassemble.Instruction(c.target.Mem, addr, inst)
		if !ok {
			fmt.Printf("%08x: <truncated>\n", addr)
			return nil
		}
		fmt.Printf("%08x: %s\n", addr, text)
		addr += uint32(length)
	}
	return nil
}

func (c *Console) readHalf(addr uint32) (uint16, bool, error) {
	lo, pf, err := c.target.Mem.Read8(addr)
	if pf || err != nil {
		return 0, pf, err
	}
	hi, pf, err := c.target.Mem.Read8(addr + 1)
	if pf || err != nil {
		return 0, pf, err
	}
	return uint16(lo) | uint16(hi)<<8, false, nil
}

func parseAddr(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint32(v), nil
}
