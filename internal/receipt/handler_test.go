package receipt_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/prasetya/receiptbot/internal/receipt"
	receiptPostgres "github.com/prasetya/receiptbot/internal/receipt/postgres"
)

var _ = Describe("Receipt Handler Integration", func() {
	var (
		db      *gorm.DB
		service *receipt.Service
		handler *receipt.Handler
	)

	BeforeEach(func() {
		var err error
		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&receipt.Receipt{}, &receipt.Position{})
		Expect(err).NotTo(HaveOccurred())

		repo := receiptPostgres.NewReceiptRepository(db)
		service = receipt.NewService(repo, slogger)
		handler = receipt.NewHandler(service)

		now := time.Now().UTC()
		purchased := time.Date(now.Year(), now.Month(), 5, 0, 0, 0, 0, time.UTC)
		seed := []*receipt.Receipt{
			{UserID: 1, Merchant: "REWE", Category: "food", TotalAmount: decimal.NewFromFloat(12.50), PurchaseDate: &purchased},
			{UserID: 1, Merchant: "Bar", Category: "alcohol", TotalAmount: decimal.NewFromFloat(8.00), PurchaseDate: &purchased},
			{UserID: 2, Merchant: "Aldi", Category: "food", TotalAmount: decimal.NewFromFloat(30.00), PurchaseDate: &purchased},
		}
		for _, rec := range seed {
			_, err := service.Save(context.Background(), rec)
			Expect(err).NotTo(HaveOccurred())
		}
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("List", func() {
		It("should return only the requesting user's receipts with a total", func() {
			req := httptest.NewRequest(http.MethodGet, "/receipts?user_id=1", nil)
			w := httptest.NewRecorder()

			handler.List(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(ContainSubstring("application/json"))

			var response struct {
				Receipts []receipt.Receipt `json:"receipts"`
				Total    decimal.Decimal   `json:"total"`
			}
			Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())
			Expect(response.Receipts).To(HaveLen(2))
			Expect(response.Total.Equal(decimal.NewFromFloat(20.50))).To(BeTrue())
		})

		It("should apply the category filter", func() {
			req := httptest.NewRequest(http.MethodGet, "/receipts?user_id=1&category=alcohol", nil)
			w := httptest.NewRecorder()

			handler.List(w, req)

			var response struct {
				Receipts []receipt.Receipt `json:"receipts"`
			}
			Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())
			Expect(response.Receipts).To(HaveLen(1))
			Expect(response.Receipts[0].Merchant).To(Equal("Bar"))
		})

		It("should reject requests without a user id", func() {
			req := httptest.NewRequest(http.MethodGet, "/receipts", nil)
			w := httptest.NewRecorder()

			handler.List(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Summary", func() {
		It("should return monthly totals for the user", func() {
			req := httptest.NewRequest(http.MethodGet, "/receipts/summary?user_id=1&months=2", nil)
			w := httptest.NewRecorder()

			handler.Summary(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))

			var response struct {
				Months  int                  `json:"months"`
				Summary []receipt.MonthTotal `json:"summary"`
			}
			Expect(json.NewDecoder(w.Body).Decode(&response)).To(Succeed())
			Expect(response.Months).To(Equal(2))
			Expect(response.Summary).To(HaveLen(1))
			Expect(response.Summary[0].Count).To(Equal(2))
		})
	})
})
