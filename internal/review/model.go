package review

type Review struct {
	ID            int64  `json:"review_id"`
	UserReviewed  int64  `json:"user_reviewed"`
	UserReviewing int64  `json:"user_reviewing"`
	Rating        int    `json:"rating"`
	Content       string `json:"content"`
	CreatedAt     int64  `json:"created_at"`
}
