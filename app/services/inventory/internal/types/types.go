package types

type Item struct {
	SubSku   string `json:"subSku"`
	Quantity int64  `json:"quantity"`
}

type Adjustment struct {
	SubSku        string `json:"subSku"`
	DeltaQuantity int64  `json:"deltaQuantity"`
}

type StockOperationResult struct {
	SubSku            string `json:"subSku"`
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	CurrentStock      int64  `json:"currentStock"`
	RequestedQuantity int64  `json:"requestedQuantity"`
}

type BulkOperationResponse struct {
	CheckoutId   string                 `json:"checkoutId,omitempty"`
	Results      []StockOperationResult `json:"results"`
	AllSuccess   bool                   `json:"allSuccess"`
	SuccessCount int                    `json:"successCount"`
	FailureCount int                    `json:"failureCount"`
}

type LockStockRequest struct {
	CheckoutId string `json:"checkoutId"`
	Items      []Item `json:"items"`
	TtlSeconds int64  `json:"ttlSeconds,optional"`
	Policy     string `json:"policy,optional"`
}

type StockItemsRequest struct {
	CheckoutId string `json:"checkoutId"`
	Items      []Item `json:"items"`
}

type CheckInventoryRequest struct {
	SubSkus []string `json:"subSkus"`
}

type InventoryStatus struct {
	SubSku    string `json:"subSku"`
	Stock     int64  `json:"stock"`
	HasStock  bool   `json:"hasStock"`
	Found     bool   `json:"found"`
	Version   int64  `json:"version"`
	UpdatedAt int64  `json:"updatedAt"`
}

type CheckInventoryResponse struct {
	Items []InventoryStatus `json:"items"`
}

type AdjustStockRequest struct {
	Items  []Adjustment `json:"items"`
	Policy string       `json:"policy,optional"`
}

type CreateStockRequest struct {
	SubSku       string `json:"subSku"`
	InitialStock int64  `json:"initialStock"`
}

type ReserveCheckoutRequest struct {
	CheckoutId string `json:"checkoutId"`
	UserId     string `json:"userId"`
	Items      []Item `json:"items"`
	TtlSeconds int64  `json:"ttlSeconds,optional"`
}

type CheckoutRequest struct {
	CheckoutId string `json:"checkoutId"`
}

type GetCheckoutRequest struct {
	CheckoutId string `path:"checkoutId"`
}

type CheckoutResponse struct {
	CheckoutId string                 `json:"checkoutId"`
	UserId     string                 `json:"userId"`
	Items      []Item                 `json:"items"`
	Status     string                 `json:"status"`
	LastResult *BulkOperationResponse `json:"lastResult,omitempty"`
	LastError  string                 `json:"lastError,omitempty"`
	CreatedAt  int64                  `json:"createdAt"`
	ExpiresAt  int64                  `json:"expiresAt"`
	UpdatedAt  int64                  `json:"updatedAt"`
}
