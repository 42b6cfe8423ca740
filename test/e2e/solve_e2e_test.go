package e2e

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/solvo-project/solvo/pkg/compile"
)

var _ = Describe("Solving documents", func() {
	var compiler *compile.Compiler

	BeforeEach(func() {
		logger := logrus.New()
		logger.SetOutput(GinkgoWriter)
		compiler = compile.New(logger)
	})

	It("selects a compatible stack honoring policies and priorities", func() {
		result, err := compiler.Solve(context.Background(), loadModel("stack.yaml"))
		Expect(err).ToNot(HaveOccurred())

		Expect(result.Status).To(Equal(compile.StatusOptimal))
		// The no-west policy prohibits mysql, and the priority suffix
		// puts postgres ahead of it anyway.
		Expect(result.Selected).To(Equal([]string{"app", "postgres", "redis"}))
		Expect(result.Fingerprint).To(HaveLen(16))
	})

	It("solves a linear program to optimality", func() {
		result, err := compiler.Solve(context.Background(), loadModel("diet.yaml"))
		Expect(err).ToNot(HaveOccurred())

		Expect(result.Status).To(Equal(compile.StatusOptimal))
		Expect(result.Objective).ToNot(BeNil())
		Expect(*result.Objective).To(BeNumerically("~", 36.0, 1e-6))
		Expect(result.Values["x"]).To(BeNumerically("~", 2.0, 1e-6))
		Expect(result.Values["y"]).To(BeNumerically("~", 6.0, 1e-6))
		Expect(result.Binding).To(ContainElement("capacity"))
	})

	It("discretizes a horizon program and integrates its objective", func() {
		result, err := compiler.Solve(context.Background(), loadModel("decay.yaml"))
		Expect(err).ToNot(HaveOccurred())

		Expect(result.Status).To(Equal(compile.StatusOptimal))
		Expect(*result.Objective).To(BeNumerically("~", 50.0, 1e-6))
		Expect(result.Values["v[0]"]).To(BeNumerically("~", 10.0, 1e-6))
		Expect(result.Values["v[10]"]).To(BeNumerically("~", 0.0, 1e-6))
		Expect(result.Stats.Points).To(Equal(11))
	})

	It("reports conflicts for unsatisfiable documents", func() {
		result, err := compiler.Solve(context.Background(), loadModel("clash.yaml"))
		Expect(err).ToNot(HaveOccurred())

		Expect(result.Status).To(Equal(compile.StatusInfeasible))
		Expect(result.Conflicts).To(ContainElement("legacy conflicts with core"))
		Expect(result.Selected).To(BeEmpty())
	})
})
