package domain

import "time"

// InventoryRecord is the ledger row of one sub-SKU.
type InventoryRecord struct {
	SubSku         string
	AvailableStock int64
	Version        int64
	UpdatedAt      time.Time
}

// Item is one (subSku, quantity) line of a bulk call.
type Item struct {
	SubSku   string `json:"subSku"`
	Quantity int64  `json:"quantity"`
}

// Adjustment is one administrative stock correction.
type Adjustment struct {
	SubSku        string `json:"subSku"`
	DeltaQuantity int64  `json:"deltaQuantity"`
}

// StockOperationResult is the outcome of one item of a bulk call.
type StockOperationResult struct {
	SubSku            string `json:"subSku"`
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	CurrentStock      int64  `json:"currentStock"`
	RequestedQuantity int64  `json:"requestedQuantity"`
}

// BulkOperationResponse aggregates the per-item results of a bulk call.
type BulkOperationResponse struct {
	CheckoutId   string                 `json:"checkoutId,omitempty"`
	Results      []StockOperationResult `json:"results"`
	AllSuccess   bool                   `json:"allSuccess"`
	SuccessCount int                    `json:"successCount"`
	FailureCount int                    `json:"failureCount"`
}

// NewBulkOperationResponse computes the aggregate fields from results.
func NewBulkOperationResponse(checkoutId string, results []StockOperationResult) *BulkOperationResponse {
	resp := &BulkOperationResponse{
		CheckoutId: checkoutId,
		Results:    results,
	}
	if resp.Results == nil {
		resp.Results = []StockOperationResult{}
	}
	for _, r := range resp.Results {
		if r.Success {
			resp.SuccessCount++
		} else {
			resp.FailureCount++
		}
	}
	resp.AllSuccess = resp.FailureCount == 0
	return resp
}
