package offer

type Offer struct {
	ID        int64  `json:"offer_id"`
	OrderID   int64  `json:"order_id"`
	UserID    int64  `json:"user_id"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}
