package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/riversim/timing/pipeline"
)

var _ = Describe("RegFile", func() {
	var rf *pipeline.RegFile

	write := func(addr uint8, data uint64, tag uint8, inOrder bool) pipeline.RegFileOutputs {
		return rf.Tick(pipeline.RegFileInputs{
			Write: pipeline.RegFileWrite{
				Enable:  true,
				Addr:    addr,
				Data:    data,
				Tag:     tag,
				InOrder: inOrder,
			},
		})
	}

	BeforeEach(func() {
		rf = pipeline.NewRegFile(true)
	})

	It("should start with zero values and tags", func() {
		for i := uint8(0); i < pipeline.NumRegisters; i++ {
			v, tag := rf.Read(i)
			Expect(v).To(BeZero())
			Expect(tag).To(BeZero())
		}
	})

	Context("in-order mode", func() {
		It("should accept the next tag", func() {
			out := write(5, 42, 1, true)
			Expect(out.Ignored).To(BeFalse())

			v, tag := rf.Read(5)
			Expect(v).To(Equal(uint64(42)))
			Expect(tag).To(Equal(uint8(1)))
		})

		It("should ignore a tag that skips ahead", func() {
			write(5, 42, 1, true)
			out := write(5, 99, 3, true)
			Expect(out.Ignored).To(BeTrue())

			v, tag := rf.Read(5)
			Expect(v).To(Equal(uint64(42)))
			Expect(tag).To(Equal(uint8(1)))
			Expect(rf.Stats().IgnoredWrites).To(Equal(uint64(1)))
		})

		It("should wrap the tag modulo its width", func() {
			for i := 1; i <= pipeline.RegTagMask+1; i++ {
				out := write(7, uint64(i), uint8(i)&pipeline.RegTagMask, true)
				Expect(out.Ignored).To(BeFalse())
			}
			v, tag := rf.Read(7)
			Expect(v).To(Equal(uint64(pipeline.RegTagMask + 1)))
			Expect(tag).To(BeZero())
		})
	})

	Context("unordered mode", func() {
		It("should accept any tag and advance the stored tag by one", func() {
			out := write(5, 42, 6, false)
			Expect(out.Ignored).To(BeFalse())

			v, tag := rf.Read(5)
			Expect(v).To(Equal(uint64(42)))
			Expect(tag).To(Equal(uint8(1)))
		})
	})

	It("should never write register 0", func() {
		out := write(0, 42, 1, true)
		Expect(out.Ignored).To(BeFalse())
		Expect(rf.ReadReg(0)).To(BeZero())

		rf.Tick(pipeline.RegFileInputs{
			Debug: pipeline.DebugPortRequest{Enable: true, Write: true, Addr: 0, WData: 7},
		})
		Expect(rf.ReadReg(0)).To(BeZero())
	})

	Describe("debug port", func() {
		It("should write when the pipeline port is idle", func() {
			rf.Tick(pipeline.RegFileInputs{
				Debug: pipeline.DebugPortRequest{Enable: true, Write: true, Addr: 6, WData: 0x55},
			})
			v, tag := rf.Read(6)
			Expect(v).To(Equal(uint64(0x55)))
			Expect(tag).To(BeZero())
		})

		It("should lose to a pipeline write in the same cycle", func() {
			rf.Tick(pipeline.RegFileInputs{
				Write: pipeline.RegFileWrite{Enable: true, Addr: 5, Data: 1, Tag: 1, InOrder: true},
				Debug: pipeline.DebugPortRequest{Enable: true, Write: true, Addr: 6, WData: 2},
			})
			Expect(rf.ReadReg(5)).To(Equal(uint64(1)))
			Expect(rf.ReadReg(6)).To(BeZero())
		})

		It("should write when the pipeline write is ignored", func() {
			rf.Tick(pipeline.RegFileInputs{
				Write: pipeline.RegFileWrite{Enable: true, Addr: 5, Data: 1, Tag: 4, InOrder: true},
				Debug: pipeline.DebugPortRequest{Enable: true, Write: true, Addr: 6, WData: 2},
			})
			Expect(rf.ReadReg(5)).To(BeZero())
			Expect(rf.ReadReg(6)).To(Equal(uint64(2)))
		})

		It("should read the committed value", func() {
			write(9, 123, 1, true)
			out := rf.Comb(pipeline.RegFileInputs{
				Debug: pipeline.DebugPortRequest{Enable: true, Addr: 9},
			})
			Expect(out.DebugRData).To(Equal(uint64(123)))
		})
	})

	Describe("Reset", func() {
		It("should clear immediately with asynchronous reset", func() {
			write(5, 42, 1, true)
			rf.Reset()
			Expect(rf.ReadReg(5)).To(BeZero())
		})

		It("should clear on the next commit with synchronous reset", func() {
			rf = pipeline.NewRegFile(false)
			write(5, 42, 1, true)
			rf.Reset()
			Expect(rf.ReadReg(5)).To(Equal(uint64(42)))

			rf.Comb(pipeline.RegFileInputs{})
			rf.Commit()
			v, tag := rf.Read(5)
			Expect(v).To(BeZero())
			Expect(tag).To(BeZero())
		})
	})

	It("should produce identical results for identical inputs", func() {
		run := func() [pipeline.NumRegisters]pipeline.RegisterEntry {
			f := pipeline.NewRegFile(true)
			for i := 0; i < 40; i++ {
				f.Tick(pipeline.RegFileInputs{
					Write: pipeline.RegFileWrite{
						Enable:  true,
						Addr:    uint8(i % 5),
						Data:    uint64(i * 3),
						Tag:     uint8(i/5+1) & pipeline.RegTagMask,
						InOrder: i%3 != 0,
					},
				})
			}
			return f.Entries()
		}
		Expect(run()).To(Equal(run()))
	})
})
