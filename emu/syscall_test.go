package emu_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/riversim/emu"
)

func negErrno(errno int) uint64 {
	return uint64(-int64(errno))
}

var _ = Describe("Syscall Handler", func() {
	var (
		regFile *emu.RegFile
		memory  *emu.Memory
		stdout  *bytes.Buffer
		stderr  *bytes.Buffer
		handler *emu.DefaultSyscallHandler
	)

	BeforeEach(func() {
		regFile = &emu.RegFile{}
		memory = emu.NewMemory()
		stdout = new(bytes.Buffer)
		stderr = new(bytes.Buffer)
		handler = emu.NewDefaultSyscallHandler(memory, stdout, stderr)
	})

	It("should exit with a0", func() {
		regFile.WriteReg(emu.RegA7, emu.SyscallExit)
		regFile.WriteReg(emu.RegA0, 7)

		result := handler.Handle(regFile)
		Expect(result.Exited).To(BeTrue())
		Expect(result.ExitCode).To(Equal(int64(7)))
	})

	It("should write a buffer to stdout", func() {
		memory.LoadProgram(0x100, []byte("hello"))
		regFile.WriteReg(emu.RegA7, emu.SyscallWrite)
		regFile.WriteReg(emu.RegA0, 1)
		regFile.WriteReg(emu.RegA1, 0x100)
		regFile.WriteReg(emu.RegA2, 5)

		result := handler.Handle(regFile)
		Expect(result.Exited).To(BeFalse())
		Expect(stdout.String()).To(Equal("hello"))
		Expect(regFile.ReadReg(emu.RegA0)).To(Equal(uint64(5)))
	})

	It("should route fd 2 to stderr", func() {
		memory.LoadProgram(0x100, []byte("err"))
		regFile.WriteReg(emu.RegA7, emu.SyscallWrite)
		regFile.WriteReg(emu.RegA0, 2)
		regFile.WriteReg(emu.RegA1, 0x100)
		regFile.WriteReg(emu.RegA2, 3)

		handler.Handle(regFile)
		Expect(stderr.String()).To(Equal("err"))
	})

	It("should read stdin into memory", func() {
		handler.SetStdin(strings.NewReader("abc"))
		regFile.WriteReg(emu.RegA7, emu.SyscallRead)
		regFile.WriteReg(emu.RegA0, 0)
		regFile.WriteReg(emu.RegA1, 0x200)
		regFile.WriteReg(emu.RegA2, 8)

		handler.Handle(regFile)
		Expect(regFile.ReadReg(emu.RegA0)).To(Equal(uint64(3)))
		Expect(memory.Read8(0x202)).To(Equal(uint8('c')))
	})

	It("should return -EBADF for unknown descriptors", func() {
		regFile.WriteReg(emu.RegA7, emu.SyscallWrite)
		regFile.WriteReg(emu.RegA0, 9)

		handler.Handle(regFile)
		Expect(regFile.ReadReg(emu.RegA0)).To(Equal(negErrno(emu.EBADF)))
	})

	It("should return -ENOSYS for unknown syscall numbers", func() {
		regFile.WriteReg(emu.RegA7, 999)

		result := handler.Handle(regFile)
		Expect(result.Exited).To(BeFalse())
		Expect(regFile.ReadReg(emu.RegA0)).To(Equal(negErrno(emu.ENOSYS)))
	})
})

var _ = Describe("CSRFile", func() {
	var csr *emu.CSRFile

	BeforeEach(func() {
		csr = emu.NewCSRFile()
	})

	It("should save and restore the interrupt enable around a trap", func() {
		csr.WriteCSR(emu.CSRMstatus, emu.MstatusMIE)
		csr.Trap(0x1234, emu.CauseIllegalInstruction)

		Expect(csr.ReadCSR(emu.CSRMepc)).To(Equal(uint64(0x1234)))
		Expect(csr.ReadCSR(emu.CSRMcause)).To(Equal(emu.CauseIllegalInstruction))
		Expect(csr.ReadCSR(emu.CSRMstatus)).To(Equal(emu.MstatusMPIE))

		csr.MRet()
		Expect(csr.ReadCSR(emu.CSRMstatus)).To(Equal(emu.MstatusMIE | emu.MstatusMPIE))
	})

	It("should require both MIE and MEIE for interrupts", func() {
		csr.WriteCSR(emu.CSRMstatus, emu.MstatusMIE)
		Expect(csr.InterruptEnabled()).To(BeFalse())
		csr.WriteCSR(emu.CSRMie, emu.MieMEIE)
		Expect(csr.InterruptEnabled()).To(BeTrue())
	})

	It("should align mtvec and ignore unknown CSRs", func() {
		csr.WriteCSR(emu.CSRMtvec, 0x203)
		Expect(csr.TrapVector()).To(Equal(uint64(0x200)))
		csr.WriteCSR(0x7C0, 5)
		Expect(csr.ReadCSR(0x7C0)).To(BeZero())
		Expect(csr.ReadCSR(emu.CSRMhartid)).To(BeZero())
	})
})

var _ = Describe("Memory", func() {
	It("should read unwritten locations as zero", func() {
		Expect(emu.NewMemory().Read64(0xDEAD0000)).To(BeZero())
	})

	It("should be little-endian across page boundaries", func() {
		m := emu.NewMemory()
		m.Write64(0xFFC, 0x1122334455667788)
		Expect(m.Read8(0xFFC)).To(Equal(uint8(0x88)))
		Expect(m.Read32(0x1000)).To(Equal(uint32(0x11223344)))
		Expect(m.Read16(0xFFE)).To(Equal(uint16(0x5566)))
	})
})
