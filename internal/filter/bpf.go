// Package filter compiles tcpdump expressions into classic BPF and runs them
// over raw frames in user space.
package filter

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"firestige.xyz/flowtap/internal/core"
)

// BPF matches frames against a compiled program.
type BPF struct {
	expr string
	vm   *bpf.VM
}

// Compile builds a filter for frames of the given link type.
func Compile(linkType layers.LinkType, snapLen int, expr string) (*BPF, error) {
	pcapBpf, err := pcap.CompileBPFFilter(linkType, snapLen, expr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to compile BPF filter %q: %v", core.ErrConfigInvalid, expr, err)
	}

	rawBpf := make([]bpf.RawInstruction, len(pcapBpf))
	for i, ins := range pcapBpf {
		rawBpf[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}

	insns, _ := bpf.Disassemble(rawBpf)
	f, err := New(insns)
	if err != nil {
		return nil, err
	}
	f.expr = expr
	return f, nil
}

// New wraps an already assembled program.
func New(insns []bpf.Instruction) (*BPF, error) {
	vm, err := bpf.NewVM(insns)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid BPF program: %v", core.ErrConfigInvalid, err)
	}
	return &BPF{vm: vm}, nil
}

// Match reports whether the program accepts the frame. A program that fails
// at run time rejects the frame.
func (f *BPF) Match(frame []byte) bool {
	n, err := f.vm.Run(frame)
	return err == nil && n > 0
}

func (f *BPF) String() string {
	return f.expr
}
