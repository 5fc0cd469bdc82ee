// Package testfixture provides the January 2024 sample expenses shared by package tests.
package testfixture

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-flow/internal/domain/entity"
)

// Fixture ids
const (
	ClientDinnerID    = "1"
	OfficeSuppliesID  = "2"
	HotelStayID       = "3"
	SoftwareLicenseID = "4"
)

// Now is a reference clock inside the fixture month
var Now = time.Date(2024, 1, 25, 12, 0, 0, 0, time.UTC)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func day(s string) time.Time {
	t, err := time.Parse(entity.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func status(p entity.ProcessingStatus) *entity.ProcessingStatus {
	return &p
}

func confidence(v float64) *float64 {
	return &v
}

// Expenses returns a fresh copy of the four sample expenses, ordered by id
func Expenses() []*entity.Expense {
	dinnerAmount := amount("127.50")
	softwareAmount := amount("199.00")

	return []*entity.Expense{
		{
			ID:          ClientDinnerID,
			Title:       "Client Dinner Meeting",
			Amount:      dinnerAmount,
			Currency:    "USD",
			Category:    "Meals & Entertainment",
			Date:        day("2024-01-15"),
			Description: "Dinner with potential client to discuss new project opportunities",
			Status:      entity.StatusApproved,
			SubmittedBy: "John Smith",
			SubmittedAt: ts("2024-01-16T09:00:00Z"),
			ApprovedBy:  "Sarah Johnson",
			ApprovedAt:  ts("2024-01-17T14:30:00Z"),
			Attachments: []entity.Attachment{{
				ID:               "att1",
				Name:             "restaurant_receipt.pdf",
				Size:             245760,
				MediaType:        "application/pdf",
				StorageRef:       "receipts/receipt1.pdf",
				UploadedAt:       *ts("2024-01-16T09:00:00Z"),
				AbbyySentAt:      ts("2024-01-16T09:01:00Z"),
				AbbyyProcessedAt: ts("2024-01-16T09:03:00Z"),
			}},
			ExtractedData: &entity.ExtractedData{
				AttachmentID: "att1",
				Vendor:       "The Steakhouse",
				Amount:       &dinnerAmount,
				Currency:     "USD",
				Date:         "2024-01-15",
				Category:     "Restaurant",
				Confidence:   confidence(0.95),
				ExtractedAt:  *ts("2024-01-16T09:03:00Z"),
			},
			ProcessingStatus: status(entity.ProcessingCompleted),
			Version:          1,
			CreatedAt:        *ts("2024-01-16T09:00:00Z"),
			UpdatedAt:        *ts("2024-01-17T14:30:00Z"),
		},
		{
			ID:          OfficeSuppliesID,
			Title:       "Office Supplies",
			Amount:      amount("89.99"),
			Currency:    "USD",
			Category:    "Office Supplies",
			Date:        day("2024-01-18"),
			Description: "Notebooks, pens, and other office materials",
			Status:      entity.StatusSubmitted,
			SubmittedBy: "Mike Davis",
			SubmittedAt: ts("2024-01-18T11:15:00Z"),
			Attachments: []entity.Attachment{{
				ID:                  "att2",
				Name:                "office_depot_receipt.jpg",
				Size:                186420,
				MediaType:           "image/jpeg",
				StorageRef:          "receipts/receipt2.jpg",
				UploadedAt:          *ts("2024-01-18T11:15:00Z"),
				AbbyySentAt:         ts("2024-01-18T11:16:00Z"),
				ExtractionRequestID: "req-att2",
			}},
			ProcessingStatus: status(entity.ProcessingExtracting),
			Version:          1,
			CreatedAt:        *ts("2024-01-18T11:15:00Z"),
			UpdatedAt:        *ts("2024-01-18T11:16:00Z"),
		},
		{
			ID:          HotelStayID,
			Title:       "Travel - Hotel Stay",
			Amount:      amount("342.00"),
			Currency:    "USD",
			Category:    "Travel & Lodging",
			Date:        day("2024-01-20"),
			Description: "2-night stay for business conference",
			Status:      entity.StatusProcessing,
			SubmittedBy: "John Smith",
			SubmittedAt: ts("2024-01-21T08:30:00Z"),
			Attachments: []entity.Attachment{{
				ID:         "att3",
				Name:       "hotel_invoice.pdf",
				Size:       512000,
				MediaType:  "application/pdf",
				StorageRef: "receipts/hotel_invoice.pdf",
				UploadedAt: *ts("2024-01-21T08:30:00Z"),
			}},
			ProcessingStatus: status(entity.ProcessingPending),
			Version:          1,
			CreatedAt:        *ts("2024-01-21T08:30:00Z"),
			UpdatedAt:        *ts("2024-01-21T08:30:00Z"),
		},
		{
			ID:              SoftwareLicenseID,
			Title:           "Software License",
			Amount:          softwareAmount,
			Currency:        "USD",
			Category:        "Software & Technology",
			Date:            day("2024-01-22"),
			Description:     "Annual license for design software",
			Status:          entity.StatusRejected,
			SubmittedBy:     "Mike Davis",
			SubmittedAt:     ts("2024-01-22T16:45:00Z"),
			RejectedBy:      "Sarah Johnson",
			RejectedAt:      ts("2024-01-23T10:20:00Z"),
			RejectionReason: "Please provide business justification for this software purchase",
			Attachments: []entity.Attachment{{
				ID:               "att4",
				Name:             "software_receipt.pdf",
				Size:             98304,
				MediaType:        "application/pdf",
				StorageRef:       "receipts/software_receipt.pdf",
				UploadedAt:       *ts("2024-01-22T16:45:00Z"),
				AbbyySentAt:      ts("2024-01-22T16:46:00Z"),
				AbbyyProcessedAt: ts("2024-01-22T16:48:00Z"),
			}},
			ExtractedData: &entity.ExtractedData{
				AttachmentID:  "att4",
				Vendor:        "Adobe Systems",
				Amount:        &softwareAmount,
				Currency:      "USD",
				Date:          "2024-01-22",
				InvoiceNumber: "ADO-2024-001234",
				Category:      "Software",
				Confidence:    confidence(0.98),
				ExtractedAt:   *ts("2024-01-22T16:48:00Z"),
			},
			ProcessingStatus: status(entity.ProcessingCompleted),
			Version:          1,
			CreatedAt:        *ts("2024-01-22T16:45:00Z"),
			UpdatedAt:        *ts("2024-01-23T10:20:00Z"),
		},
	}
}

// ByID returns the fixture expense with the given id, or nil
func ByID(id string) *entity.Expense {
	for _, e := range Expenses() {
		if e.ID == id {
			return e
		}
	}
	return nil
}
