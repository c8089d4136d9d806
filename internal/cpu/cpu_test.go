package cpu

import (
	"testing"
	"time"

	"github.com/fox32vm/fox32/internal/assemble"
	"github.com/fox32vm/fox32/internal/memory"
)

type stubBus struct {
	reads  map[uint32]uint32
	writes map[uint32]uint32
}

func newStubBus() *stubBus {
	return &stubBus{reads: map[uint32]uint32{}, writes: map[uint32]uint32{}}
}

func (b *stubBus) Read(port uint32) uint32 { return b.reads[port] }
func (b *stubBus) Write(port uint32, value uint32) {
	if b.writes == nil {
		b.writes = map[uint32]uint32{}
	}
	b.writes[port] = value
}

// newTestCPU assembles source, loads it at the ROM reset vector, and
// returns a CPU ready to Step through it.
func newTestCPU(t *testing.T, source string) (*CPU, *memory.Memory, *stubBus) {
	t.Helper()
	code, _, err := assemble.Assemble(source, resetIP)
	if err != nil {
		t.Fatalf("assembling test program: %v", err)
	}
	mem := memory.New(0x10000, uint32(len(code)))
	mem.LoadROM(code)
	bus := newStubBus()
	c := New(mem, bus, nil)
	return c, mem, bus
}

func runUntilHalt(t *testing.T, c *CPU, maxSteps int) {
	t.Helper()
	for i := 0; i < maxSteps; i++ {
		if c.Halted() {
			return
		}
		c.Step()
	}
	t.Fatalf("CPU did not halt within %d steps", maxSteps)
}

func TestMovAndAdd(t *testing.T) {
	c, _, _ := newTestCPU(t, `
		mov r0, 5
		add r0, 3
		halt
	`)
	runUntilHalt(t, c, 10)
	if got := c.Reg(0); got != 8 {
		t.Errorf("r0 = %d, want 8", got)
	}
}

func TestConditionalSkipsOnFalseCondition(t *testing.T) {
	c, _, _ := newTestCPU(t, `
		mov r0, 0
		cmp r0, 1
		mov.z r1, 99
		halt
	`)
	runUntilHalt(t, c, 10)
	if got := c.Reg(1); got != 0 {
		t.Errorf("r1 = %d, want 0 (mov.z should not have fired)", got)
	}
}

func TestConditionalFiresOnTrueCondition(t *testing.T) {
	c, _, _ := newTestCPU(t, `
		mov r0, 1
		cmp r0, 1
		mov.z r1, 99
		halt
	`)
	runUntilHalt(t, c, 10)
	if got := c.Reg(1); got != 99 {
		t.Errorf("r1 = %d, want 99 (mov.z should have fired)", got)
	}
}

func TestPushPopRoundTrip(t *testing.T) {
	c, _, _ := newTestCPU(t, `
		mov rsp, 0x2000
		mov r0, 42
		push r0
		mov r0, 0
		pop r0
		halt
	`)
	runUntilHalt(t, c, 10)
	if got := c.Reg(0); got != 42 {
		t.Errorf("r0 = %d, want 42", got)
	}
}

func TestJmpSkipsIntermediateInstruction(t *testing.T) {
	c, _, _ := newTestCPU(t, `
		jmp skip
		mov r0, 1
	skip:
		mov r1, 2
		halt
	`)
	runUntilHalt(t, c, 10)
	if got := c.Reg(0); got != 0 {
		t.Errorf("r0 = %d, want 0 (instruction should have been jumped over)", got)
	}
	if got := c.Reg(1); got != 2 {
		t.Errorf("r1 = %d, want 2", got)
	}
}

func TestCallAndRet(t *testing.T) {
	c, _, _ := newTestCPU(t, `
		mov rsp, 0x2000
		call fn
		mov r1, 2
		halt
	fn:
		mov r0, 1
		ret
	`)
	runUntilHalt(t, c, 10)
	if got := c.Reg(0); got != 1 {
		t.Errorf("r0 = %d, want 1", got)
	}
	if got := c.Reg(1); got != 2 {
		t.Errorf("r1 = %d, want 2", got)
	}
}

func TestDivByZeroFaultsWithoutAdvancingIP(t *testing.T) {
	c, _, _ := newTestCPU(t, `
		mov r0, 10
		mov r1, 0
		div r0, r1
		halt
	`)
	// Step past the two movs.
	c.Step()
	c.Step()
	ipBefore := c.IP()
	c.Step() // div by zero: queues a fault, ip stays put
	if c.IP() != ipBefore {
		t.Errorf("IP advanced past a faulting div, got %#x want %#x", c.IP(), ipBefore)
	}
	if c.pendingException == nil {
		t.Error("div by zero did not queue a pending exception")
	}
}

func TestConditionalDivByZeroSkipsWithoutFaultingOnFalseCondition(t *testing.T) {
	c, _, _ := newTestCPU(t, `
		mov r0, 10
		mov r1, 0
		cmp r0, 1
		div.z r0, r1
		halt
	`)
	// Step past the two movs and the cmp.
	c.Step()
	c.Step()
	c.Step()
	ipBefore := c.IP()
	c.Step() // div.z: condition false (zero flag clear), must simply fall through
	if c.IP() == ipBefore {
		t.Error("conditional div did not advance ip past a false condition")
	}
	if c.pendingException != nil {
		t.Error("a div by zero under a false condition must not queue a fault")
	}
	if c.Reg(0) != 10 {
		t.Errorf("r0 = %d, want 10 (div.z should not have fired)", c.Reg(0))
	}
}

func TestInOutRoutesThroughBus(t *testing.T) {
	c, _, bus := newTestCPU(t, `
		mov r0, 7
		out 0x100, r0
		in r1, 0x200
		halt
	`)
	bus.reads[0x200] = 123
	runUntilHalt(t, c, 10)
	if got := bus.writes[0x100]; got != 7 {
		t.Errorf("bus.writes[0x100] = %d, want 7", got)
	}
	if got := c.Reg(1); got != 123 {
		t.Errorf("r1 = %d, want 123", got)
	}
}

func TestPostHardIRQDispatchesWhenInterruptsEnabled(t *testing.T) {
	c, mem, _ := newTestCPU(t, `
		ise
		halt
	`)
	// Interrupt vector table: vector 0x05 at physical word offset 0x05*4.
	const vector = 0x05
	handler := uint32(0x3000)
	mem.RAM()[vector*4] = byte(handler)
	mem.RAM()[vector*4+1] = byte(handler >> 8)
	mem.RAM()[vector*4+2] = byte(handler >> 16)
	mem.RAM()[vector*4+3] = byte(handler >> 24)

	c.Step() // ise: sets the interrupt flag
	c.PostHardIRQ(vector)
	c.Step() // should dispatch into the handler instead of executing halt
	if c.IP() != handler {
		t.Errorf("IP = %#x after dispatch, want handler at %#x", c.IP(), uint32(handler))
	}
	if c.Halted() {
		t.Error("CPU halted instead of dispatching the pending hardware interrupt")
	}
}

func TestHardIRQWakesAHaltedCPU(t *testing.T) {
	c, mem, _ := newTestCPU(t, `
		ise
		halt
	`)
	const vector = 0x05
	handler := uint32(0x3000)
	mem.RAM()[vector*4] = byte(handler)
	mem.RAM()[vector*4+1] = byte(handler >> 8)
	mem.RAM()[vector*4+2] = byte(handler >> 16)
	mem.RAM()[vector*4+3] = byte(handler >> 24)

	c.Step() // ise
	c.Step() // halt: actually executes this time, so the CPU is genuinely halted
	if !c.Halted() {
		t.Fatal("CPU did not halt after executing halt")
	}

	c.PostHardIRQ(vector)
	c.Step() // a pending hardware interrupt must wake a halted CPU and dispatch
	if c.Halted() {
		t.Error("CPU remained halted after a hardware interrupt was delivered")
	}
	if c.IP() != handler {
		t.Errorf("IP = %#x after waking, want handler at %#x", c.IP(), uint32(handler))
	}
}

// TestHaltedStepBlocksOnChannelUntilHardIRQArrives drives the CPU through a
// real channel (not PostHardIRQ) to confirm Step itself blocks while halted,
// matching a driver loop that just keeps calling Step instead of polling.
func TestHaltedStepBlocksOnChannelUntilHardIRQArrives(t *testing.T) {
	code, _, err := assemble.Assemble(`
		ise
		halt
	`, resetIP)
	if err != nil {
		t.Fatalf("assembling test program: %v", err)
	}
	mem := memory.New(0x10000, uint32(len(code)))
	mem.LoadROM(code)
	const vector = 0x05
	handler := uint32(0x3000)
	mem.RAM()[vector*4] = byte(handler)
	mem.RAM()[vector*4+1] = byte(handler >> 8)
	mem.RAM()[vector*4+2] = byte(handler >> 16)
	mem.RAM()[vector*4+3] = byte(handler >> 24)

	hardIRQ := make(chan uint8)
	c := New(mem, newStubBus(), hardIRQ)
	c.Step() // ise
	c.Step() // halt

	done := make(chan struct{})
	go func() {
		c.Step() // should block inside Step until a vector arrives
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Step returned before a hardware interrupt was delivered")
	case <-time.After(20 * time.Millisecond):
	}

	hardIRQ <- vector
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Step did not return after a hardware interrupt was delivered")
	}
	if c.Halted() {
		t.Error("CPU remained halted after a hardware interrupt was delivered")
	}
	if c.IP() != handler {
		t.Errorf("IP = %#x after waking, want handler at %#x", c.IP(), uint32(handler))
	}
}

// TestHaltedStepUnblocksWhenChannelCloses confirms a closed hardIRQ channel
// wakes a blocked Step rather than hanging the driver loop forever, and that
// Closed reports it so the loop knows to stop.
func TestHaltedStepUnblocksWhenChannelCloses(t *testing.T) {
	code, _, err := assemble.Assemble(`halt`, resetIP)
	if err != nil {
		t.Fatalf("assembling test program: %v", err)
	}
	mem := memory.New(0x10000, uint32(len(code)))
	mem.LoadROM(code)

	hardIRQ := make(chan uint8)
	c := New(mem, newStubBus(), hardIRQ)
	c.Step() // halt

	done := make(chan struct{})
	go func() {
		c.Step()
		close(done)
	}()

	close(hardIRQ)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Step did not return after the hardIRQ channel closed")
	}
	if !c.Closed() {
		t.Error("Closed() should report true once the channel has closed")
	}
	if !c.Halted() {
		t.Error("CPU should remain halted when woken only by a channel close")
	}
}
