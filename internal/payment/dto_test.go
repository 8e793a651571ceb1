package payment_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/Infantselva015/eci-payment-service/internal"
	paymentpkg "github.com/Infantselva015/eci-payment-service/internal/payment"
)

// fieldErrorCodes extracts the per-field codes from an aggregated
// validation error.
func fieldErrorCodes(err error) []string {
	appErr, ok := apperrors.IsAppError(err)
	Expect(ok).To(BeTrue())
	Expect(appErr.Code).To(Equal(apperrors.ErrCodeValidationFailed))

	details, ok := appErr.Details.(apperrors.ValidationErrors)
	Expect(ok).To(BeTrue())

	codes := make([]string, 0, len(details.Errors))
	for _, fieldErr := range details.Errors {
		codes = append(codes, fieldErr.Code)
	}
	return codes
}

var _ = Describe("ChargeRequest", func() {
	Describe("Validate", func() {
		It("should accept a well formed request", func() {
			req := chargeRequest()
			Expect(req.Validate()).To(Succeed())
		})

		It("should reject a non-positive amount", func() {
			req := chargeRequest()
			req.Amount = decimal.Zero

			err := req.Validate()
			Expect(err).To(HaveOccurred())
			Expect(fieldErrorCodes(err)).To(ContainElement(string(apperrors.ErrCodeInvalidAmount)))
		})

		It("should reject amounts above the cap", func() {
			req := chargeRequest()
			req.Amount = decimal.NewFromInt(100001)

			err := req.Validate()
			Expect(err).To(HaveOccurred())
			Expect(fieldErrorCodes(err)).To(ContainElement(string(apperrors.ErrCodeAmountTooHigh)))
		})

		It("should accept an amount at the cap", func() {
			req := chargeRequest()
			req.Amount = decimal.NewFromInt(100000)

			Expect(req.Validate()).To(Succeed())
		})

		It("should reject unknown payment methods", func() {
			req := chargeRequest()
			req.PaymentMethod = "CHEQUE"

			err := req.Validate()
			Expect(err).To(HaveOccurred())
			Expect(fieldErrorCodes(err)).To(ContainElement(string(apperrors.ErrCodeInvalidMethod)))
		})

		It("should reject a missing order", func() {
			req := chargeRequest()
			req.OrderID = 0

			Expect(req.Validate()).To(HaveOccurred())
		})

		It("should reject a malformed currency code", func() {
			req := chargeRequest()
			req.Currency = "RUPEES"

			Expect(req.Validate()).To(HaveOccurred())
		})
	})

	Describe("Normalize", func() {
		It("should apply banker's rounding to the amount", func() {
			req := chargeRequest()
			req.Amount = decimal.NewFromFloat(100.125)
			req.Normalize()

			Expect(req.Amount.String()).To(Equal("100.12"))
		})

		It("should default the currency", func() {
			req := chargeRequest()
			req.Currency = ""
			req.Normalize()

			Expect(req.Currency).To(Equal("INR"))
		})

		It("should treat an empty reference as absent", func() {
			reference := ""
			req := chargeRequest()
			req.Reference = &reference
			req.Normalize()

			Expect(req.Reference).To(BeNil())
		})

		It("should treat a whitespace reference as absent", func() {
			reference := "   "
			req := chargeRequest()
			req.Reference = &reference
			req.Normalize()

			Expect(req.Reference).To(BeNil())
		})

		It("should keep a real reference", func() {
			reference := "INV-2024-001"
			req := chargeRequest()
			req.Reference = &reference
			req.Normalize()

			Expect(req.Reference).NotTo(BeNil())
			Expect(*req.Reference).To(Equal("INV-2024-001"))
		})
	})
})

var _ = Describe("RefundRequest", func() {
	It("should require a reason of useful length", func() {
		req := &paymentpkg.RefundRequest{Reason: "bad"}
		Expect(req.Validate()).To(HaveOccurred())

		req.Reason = "customer returned item"
		Expect(req.Validate()).To(Succeed())
	})

	It("should reject a non-positive partial amount", func() {
		amount := decimal.Zero
		req := &paymentpkg.RefundRequest{Reason: "customer returned item", Amount: &amount}

		err := req.Validate()
		Expect(err).To(HaveOccurred())
		Expect(fieldErrorCodes(err)).To(ContainElement(string(apperrors.ErrCodeInvalidAmount)))
	})
})

var _ = Describe("ListFilter", func() {
	It("should clamp pagination to sane bounds", func() {
		filter := paymentpkg.ListFilter{Page: 0, PageSize: 500}
		filter.Normalize()

		Expect(filter.Page).To(Equal(1))
		Expect(filter.PageSize).To(Equal(100))
	})

	It("should default the page size", func() {
		filter := paymentpkg.ListFilter{Page: 3}
		filter.Normalize()

		Expect(filter.PageSize).To(Equal(10))
	})
})
