package cmd

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	ledgermodel "github.com/Infantselva015/eci-payment-service/internal/core/datamodel/ledger"
	paymentmodel "github.com/Infantselva015/eci-payment-service/internal/core/datamodel/payment"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample payments for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gormDB, err := initGorm(db)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			if err := gormDB.Exec("DELETE FROM ledger_entries").Error; err != nil {
				log.Fatalf("failed to clear ledger entries: %v", err)
			}
			if err := gormDB.Exec("DELETE FROM idempotency_keys").Error; err != nil {
				log.Fatalf("failed to clear idempotency keys: %v", err)
			}
			if err := gormDB.Exec("DELETE FROM payments").Error; err != nil {
				log.Fatalf("failed to clear payments: %v", err)
			}
			fmt.Println("Cleared existing payment data")
		}

		authCode := "AUTH000042"
		gatewayResponse := "Payment authorized"
		samples := []paymentmodel.Payment{
			{
				OrderID:           9001,
				UserID:            101,
				Amount:            decimal.NewFromFloat(1499.00),
				Currency:          "INR",
				PaymentMethod:     paymentmodel.MethodUPI,
				Status:            paymentmodel.StatusCompleted,
				TransactionID:     "TXN0000009001",
				AuthorizationCode: &authCode,
				GatewayResponse:   &gatewayResponse,
			},
			{
				OrderID:       9002,
				UserID:        102,
				Amount:        decimal.NewFromFloat(250.50),
				Currency:      "INR",
				PaymentMethod: paymentmodel.MethodCreditCard,
				Status:        paymentmodel.StatusPending,
				TransactionID: "TXN0000009002",
			},
			{
				OrderID:       9003,
				UserID:        101,
				Amount:        decimal.NewFromFloat(78.25),
				Currency:      "INR",
				PaymentMethod: paymentmodel.MethodCOD,
				Status:        paymentmodel.StatusFailed,
				TransactionID: "TXN0000009003",
			},
		}

		for i := range samples {
			p := &samples[i]

			var exists int64
			gormDB.Model(&paymentmodel.Payment{}).Where("order_id = ?", p.OrderID).Count(&exists)
			if exists > 0 {
				fmt.Printf("payment for order %d already exists, skipping\n", p.OrderID)
				continue
			}

			if err := gormDB.Create(p).Error; err != nil {
				log.Fatalf("failed to seed payment for order %d: %v", p.OrderID, err)
			}

			entries := []ledgermodel.Entry{
				{
					PaymentID:   p.PaymentID,
					EntryType:   ledgermodel.EntryTypePayment,
					Amount:      p.Amount,
					Status:      paymentmodel.StatusPending,
					Description: fmt.Sprintf("Payment initiated via %s", p.PaymentMethod),
				},
			}
			if p.Status != paymentmodel.StatusPending {
				entries = append(entries, ledgermodel.Entry{
					PaymentID:   p.PaymentID,
					EntryType:   ledgermodel.EntryTypePayment,
					Amount:      p.Amount,
					Status:      p.Status,
					Description: fmt.Sprintf("Status changed from %s to %s", paymentmodel.StatusPending, p.Status),
				})
			}
			for j := range entries {
				if err := gormDB.Create(&entries[j]).Error; err != nil {
					log.Fatalf("failed to seed ledger entry for order %d: %v", p.OrderID, err)
				}
			}

			fmt.Printf("Seeded payment %d for order %d (%s)\n", p.PaymentID, p.OrderID, p.Status)
		}
	},
}
