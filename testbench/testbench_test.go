package testbench_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/riversim/testbench"
	"github.com/sarchlab/riversim/timing/arith"
)

var _ = Describe("Bench", func() {
	var (
		out   *bytes.Buffer
		bench *testbench.Bench
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		bench = testbench.New(testbench.WithOutput(out))
	})

	run := func(script string) testbench.Result {
		res, err := bench.Run(script)
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	Describe("multiplier", func() {
		It("should return the product after the fixed latency", func() {
			res := run(`
				mul(6, 7)
				local r = wait("mul")
				expect(r, 42)
			`)
			Expect(res.Passed()).To(BeTrue())
			Expect(res.Checks).To(Equal(1))
			Expect(res.Cycles).To(Equal(uint64(arith.MultiplierLatency)))
			Expect(res.Multiplier.Issued).To(Equal(uint64(1)))
			Expect(res.Multiplier.Completed).To(Equal(uint64(1)))
		})

		It("should select the high word and sign modes", func() {
			res := run(`
				mul("-1", "-1", {high=true})
				expect(wait("mul"), 0)
				mul("0xffffffffffffffff", "0xffffffffffffffff", {mode="uu", high=true})
				expect(wait("mul"), "0xfffffffffffffffe")
				mul("-2", "3", {mode="su", high=true})
				expect(wait("mul"), "-1")
				mul("0x7fffffff", 2, {w=true})
				expect(wait("mul"), "0xfffffffffffffffe")
			`)
			Expect(res.Failures).To(BeEmpty())
			Expect(res.Checks).To(Equal(4))
		})

		It("should ignore a request while busy", func() {
			res := run(`
				expect(mul(5, 5) and 1 or 0, 1)
				expect(busy("mul") and 1 or 0, 1)
				expect(mul(9, 9) and 1 or 0, 0)
				expect(wait("mul"), 25)
			`)
			Expect(res.Failures).To(BeEmpty())
			Expect(res.Multiplier.Issued).To(Equal(uint64(1)))
		})
	})

	Describe("divider", func() {
		It("should return quotient and remainder after the fixed latency", func() {
			res := run(`
				div(7, 2)
				expect(wait("div"), 3)
			`)
			Expect(res.Passed()).To(BeTrue())
			Expect(res.Cycles).To(Equal(uint64(arith.DividerLatency)))

			res = run(`
				div(-7, 2, {rem=true})
				expect(wait("div"), -1)
			`)
			Expect(res.Passed()).To(BeTrue())
		})

		It("should follow the division by zero and overflow rules", func() {
			res := run(`
				div(17, 0)
				expect(wait("div"), "0xffffffffffffffff", "quotient")
				div(17, 0, {rem=true})
				expect(wait("div"), 17, "remainder")
				div("0x8000000000000000", -1)
				expect(wait("div"), "0x8000000000000000", "overflow quotient")
				div("0x8000000000000000", -1, {rem=true})
				expect(wait("div"), 0, "overflow remainder")
			`)
			Expect(res.Failures).To(BeEmpty())
			Expect(res.Divider.DivByZero).To(Equal(uint64(2)))
			Expect(res.Divider.Overflows).To(Equal(uint64(2)))
		})

		It("should sign-extend unsigned word results", func() {
			res := run(`
				div("0x80000000", 1, {unsigned=true, w=true})
				expect(wait("div"), "0xffffffff80000000")
			`)
			Expect(res.Failures).To(BeEmpty())
		})
	})

	It("should report failed expectations without stopping the script", func() {
		res := run(`
			mul(2, 3)
			expect(wait("mul"), 7, "product")
			expect(1, 1)
		`)
		Expect(res.Passed()).To(BeFalse())
		Expect(res.Checks).To(Equal(2))
		Expect(res.Failures).To(HaveLen(1))
		Expect(res.Failures[0]).To(ContainSubstring("expected 0x0000000000000007, got 0x0000000000000006"))
		Expect(res.Failures[0]).To(ContainSubstring("(product)"))
	})

	It("should count idle cycles and expose the cycle number", func() {
		res := run(`
			tick()
			tick(4)
			expect(cycle(), 5)
			local valid = result("mul")
			expect(valid and 1 or 0, 0)
		`)
		Expect(res.Failures).To(BeEmpty())
		Expect(res.Cycles).To(Equal(uint64(5)))
	})

	It("should send print output to the configured writer", func() {
		run(`print(hex(255), "done")`)
		Expect(out.String()).To(Equal("0x00000000000000ff\tdone\n"))
	})

	It("should start every run from reset units", func() {
		run(`mul(3, 3)`)
		res := run(`
			local valid = result("mul")
			expect(valid and 1 or 0, 0)
		`)
		Expect(res.Failures).To(BeEmpty())
		Expect(res.Cycles).To(BeZero())
	})

	DescribeTable("reset discipline",
		func(async bool, cycles uint64) {
			bench = testbench.New(testbench.WithOutput(out), testbench.WithAsyncReset(async))
			res := run(`
				mul(6, 7)
				reset()
				tick(6)
				local valid = result("mul")
				expect(valid and 1 or 0, 0)
			`)
			Expect(res.Failures).To(BeEmpty())
			Expect(res.Cycles).To(Equal(cycles))
			Expect(res.Multiplier.Completed).To(BeZero())
		},
		Entry("synchronous reset takes a clock edge", false, uint64(8)),
		Entry("asynchronous reset is immediate", true, uint64(7)),
	)

	Describe("errors", func() {
		It("should fail when a result never becomes valid", func() {
			bench = testbench.New(testbench.WithOutput(out), testbench.WithMaxWait(2))
			_, err := bench.Run(`
				div(9, 3)
				wait("div")
			`)
			Expect(err).To(MatchError(ContainSubstring("not valid after 2 cycles")))
		})

		It("should reject an unknown unit", func() {
			_, err := bench.Run(`wait("fpu")`)
			Expect(err).To(MatchError(ContainSubstring("unknown unit")))
		})

		It("should reject a malformed value", func() {
			_, err := bench.Run(`mul("zz", 1)`)
			Expect(err).To(MatchError(ContainSubstring("invalid value")))
		})

		It("should return Lua syntax errors", func() {
			_, err := bench.Run(`mul(`)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("RunFile", func() {
		It("should run a script from disk", func() {
			dir := GinkgoT().TempDir()
			path := filepath.Join(dir, "mul.lua")
			Expect(os.WriteFile(path, []byte(`mul(4, 4); expect(wait("mul"), 16)`), 0644)).To(Succeed())

			res, err := bench.RunFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Passed()).To(BeTrue())
		})

		It("should fail for a missing script", func() {
			_, err := bench.RunFile("/nonexistent/script.lua")
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = DescribeTable("ParseValue",
	func(in string, want uint64) {
		v, err := testbench.ParseValue(in)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(want))
	},
	Entry("hex", "0x10", uint64(16)),
	Entry("decimal", "42", uint64(42)),
	Entry("negative decimal", "-1", ^uint64(0)),
	Entry("binary", "0b101", uint64(5)),
	Entry("separators", "0xffff_ffff", uint64(0xffffffff)),
	Entry("surrounding spaces", " 7 ", uint64(7)),
)
