package paymentprovider

// Статусы платежа на стороне шлюза.
const (
	PaymentStatusCaptured   = "captured"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusFailed     = "failed"
)

// CreateOrderRequest — запрос на создание заказа.
// Amount задаётся в минимальных единицах валюты.
type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Order — ответ шлюза при создании заказа.
type Order struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// Payment — платёж, полученный от шлюза.
type Payment struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	Method      string `json:"method"`
	Email       string `json:"email"`
	Contact     string `json:"contact"`
	ErrorCode   string `json:"error_code,omitempty"`
	ErrorReason string `json:"error_reason,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}
