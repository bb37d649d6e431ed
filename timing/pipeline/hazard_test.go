package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/riversim/timing/pipeline"
)

var _ = Describe("HazardUnit", func() {
	var hazardUnit *pipeline.HazardUnit

	BeforeEach(func() {
		hazardUnit = pipeline.NewHazardUnit()
	})

	Describe("Detect", func() {
		It("should report nothing at depth 0", func() {
			s := pipeline.HazardState{Addr0: 1, Addr1: 2}
			Expect(hazardUnit.Detect(s, 1, 2)).To(BeFalse())
		})

		It("should check only slot 0 at depth 1", func() {
			s := pipeline.HazardState{Addr0: 1, Addr1: 2, Depth: 1}
			Expect(hazardUnit.Detect(s, 1, 0)).To(BeTrue())
			Expect(hazardUnit.Detect(s, 0, 1)).To(BeTrue())
			Expect(hazardUnit.Detect(s, 2, 3)).To(BeFalse())
		})

		It("should check both slots at depth 2", func() {
			s := pipeline.HazardState{Addr0: 1, Addr1: 2, Depth: 2}
			Expect(hazardUnit.Detect(s, 2, 3)).To(BeTrue())
			Expect(hazardUnit.Detect(s, 4, 5)).To(BeFalse())
		})

		It("should ignore register 0", func() {
			s := pipeline.HazardState{Addr0: 0, Addr1: 0, Depth: 2}
			Expect(hazardUnit.Detect(s, 0, 0)).To(BeFalse())
		})
	})

	Describe("Next", func() {
		It("should shift the destination in on issue", func() {
			s := hazardUnit.Next(pipeline.HazardState{Addr0: 3}, true, 7, false)
			Expect(s).To(Equal(pipeline.HazardState{Addr0: 7, Addr1: 3, Depth: 1}))
		})

		It("should keep the depth when issue and write-back coincide", func() {
			s := hazardUnit.Next(pipeline.HazardState{Addr0: 3, Depth: 1}, true, 7, true)
			Expect(s.Depth).To(Equal(uint8(1)))
			Expect(s.Addr0).To(Equal(uint8(7)))
		})

		It("should decrement on write-back without issue", func() {
			s := hazardUnit.Next(pipeline.HazardState{Addr0: 3, Addr1: 4, Depth: 2}, false, 0, true)
			Expect(s).To(Equal(pipeline.HazardState{Addr0: 3, Addr1: 4, Depth: 1}))
		})

		It("should not underflow", func() {
			s := hazardUnit.Next(pipeline.HazardState{}, false, 0, true)
			Expect(s.Depth).To(BeZero())
		})
	})
})
