package order

type Order struct {
	ID        int64    `json:"order_id"`
	UserID    int64    `json:"user_id"`
	OrderName string   `json:"order_name"`
	OrderDesc string   `json:"order_desc"`
	Price     float64  `json:"price"`
	ImageURLs []string `json:"image_urls"`
	CreatedAt int64    `json:"created_at"`
}

type OrderInput struct {
	OrderName string
	OrderDesc string
	Price     float64
	ImageURLs []string
}
