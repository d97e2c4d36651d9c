package postgres

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/prasetya/receiptbot/internal/receipt"
)

func TestReceiptRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ReceiptRepository Suite")
}

var _ = Describe("ReceiptRepository", func() {
	var (
		db   *gorm.DB
		repo receipt.Repository
		ctx  context.Context
	)

	BeforeEach(func() {
		var err error

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&receipt.Receipt{}, &receipt.Position{})
		Expect(err).NotTo(HaveOccurred())

		repo = NewReceiptRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		err = sqlDB.Close()
		Expect(err).NotTo(HaveOccurred())
	})

	newReceipt := func(userID int64, merchant string) *receipt.Receipt {
		purchased := time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)
		return &receipt.Receipt{
			UserID:       userID,
			Merchant:     merchant,
			Category:     "food",
			TotalAmount:  decimal.NewFromFloat(12.50),
			PurchaseDate: &purchased,
			Positions: []receipt.Position{
				{Description: "Milk", Quantity: decimal.NewFromInt(2), Category: "food", Price: decimal.NewFromFloat(3.00)},
				{Description: "Bread", Quantity: decimal.NewFromInt(1), Category: "food", Price: decimal.NewFromFloat(9.50)},
			},
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
	}

	Describe("Create", func() {
		It("should persist the receipt with its positions", func() {
			rec := newReceipt(1, "REWE")

			err := repo.Create(ctx, rec)

			Expect(err).NotTo(HaveOccurred())
			Expect(rec.ID).To(BeNumerically(">", 0))

			loaded, err := repo.GetByID(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Merchant).To(Equal("REWE"))
			Expect(loaded.Positions).To(HaveLen(2))
			Expect(loaded.TotalAmount.Equal(decimal.NewFromFloat(12.50))).To(BeTrue())
		})
	})

	Describe("GetByID", func() {
		It("should return the sentinel error for missing receipts", func() {
			_, err := repo.GetByID(ctx, 404)

			Expect(err).To(MatchError(receipt.ErrReceiptNotFound))
		})
	})

	Describe("Update", func() {
		It("should replace positions instead of accumulating them", func() {
			rec := newReceipt(1, "REWE")
			Expect(repo.Create(ctx, rec)).To(Succeed())

			rec.Merchant = "Edeka"
			rec.Positions = []receipt.Position{
				{Description: "Cheese", Quantity: decimal.NewFromInt(1), Category: "food", Price: decimal.NewFromFloat(12.50)},
			}

			Expect(repo.Update(ctx, rec)).To(Succeed())

			loaded, err := repo.GetByID(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Merchant).To(Equal("Edeka"))
			Expect(loaded.Positions).To(HaveLen(1))
			Expect(loaded.Positions[0].Description).To(Equal("Cheese"))
		})
	})

	Describe("ListByUser", func() {
		It("should only return the user's receipts", func() {
			Expect(repo.Create(ctx, newReceipt(1, "REWE"))).To(Succeed())
			Expect(repo.Create(ctx, newReceipt(1, "Edeka"))).To(Succeed())
			Expect(repo.Create(ctx, newReceipt(2, "Aldi"))).To(Succeed())

			receipts, err := repo.ListByUser(ctx, 1, 20, 0, receipt.Filters{})

			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(HaveLen(2))
		})

		It("should apply the category filter", func() {
			rec := newReceipt(1, "Bar")
			rec.Category = "alcohol"
			Expect(repo.Create(ctx, rec)).To(Succeed())
			Expect(repo.Create(ctx, newReceipt(1, "REWE"))).To(Succeed())

			receipts, err := repo.ListByUser(ctx, 1, 20, 0, receipt.Filters{Category: "alcohol"})

			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(HaveLen(1))
			Expect(receipts[0].Merchant).To(Equal("Bar"))
		})
	})

	Describe("UpdateMediaRef", func() {
		It("should record the media reference", func() {
			rec := newReceipt(1, "REWE")
			Expect(repo.Create(ctx, rec)).To(Succeed())

			Expect(repo.UpdateMediaRef(ctx, rec.ID, "media/receipt-1.jpg")).To(Succeed())

			loaded, err := repo.GetByID(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.MediaRef).NotTo(BeNil())
			Expect(*loaded.MediaRef).To(Equal("media/receipt-1.jpg"))
		})
	})

	Describe("Delete", func() {
		It("should remove the receipt and its positions", func() {
			rec := newReceipt(1, "REWE")
			Expect(repo.Create(ctx, rec)).To(Succeed())

			Expect(repo.Delete(ctx, rec.ID)).To(Succeed())

			_, err := repo.GetByID(ctx, rec.ID)
			Expect(err).To(MatchError(receipt.ErrReceiptNotFound))

			var count int64
			Expect(db.Model(&receipt.Position{}).Where("receipt_id = ?", rec.ID).Count(&count).Error).To(Succeed())
			Expect(count).To(BeZero())
		})
	})
})
