package review

import (
	"context"
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("review not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, rev *Review) (*Review, error) {
	query := `INSERT INTO reviews (user_reviewed, user_reviewing, rating, content)
	          VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, rev.UserReviewed, rev.UserReviewing, rev.Rating, rev.Content).
		Scan(&rev.ID, &rev.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rev, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Review, error) {
	rev := &Review{}
	query := `SELECT id, user_reviewed, user_reviewing, rating, content, created_at
	          FROM reviews WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&rev.ID, &rev.UserReviewed, &rev.UserReviewing, &rev.Rating, &rev.Content, &rev.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rev, nil
}

// ListForUser returns reviews the user has received.
func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]*Review, error) {
	query := `SELECT id, user_reviewed, user_reviewing, rating, content, created_at
	          FROM reviews WHERE user_reviewed = $1 ORDER BY id DESC`
	return r.list(ctx, query, userID)
}

// ListByUser returns reviews the user has written.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]*Review, error) {
	query := `SELECT id, user_reviewed, user_reviewing, rating, content, created_at
	          FROM reviews WHERE user_reviewing = $1 ORDER BY id DESC`
	return r.list(ctx, query, userID)
}

func (r *Repository) list(ctx context.Context, query string, arg int64) ([]*Review, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []*Review
	for rows.Next() {
		rev := &Review{}
		if err := rows.Scan(&rev.ID, &rev.UserReviewed, &rev.UserReviewing, &rev.Rating, &rev.Content, &rev.CreatedAt); err != nil {
			return nil, err
		}
		reviews = append(reviews, rev)
	}
	return reviews, rows.Err()
}

func (r *Repository) Update(ctx context.Context, id int64, content string, rating int) (*Review, error) {
	rev := &Review{}
	query := `UPDATE reviews SET content = $2, rating = $3 WHERE id = $1
	          RETURNING id, user_reviewed, user_reviewing, rating, content, created_at`
	err := r.db.QueryRowContext(ctx, query, id, content, rating).
		Scan(&rev.ID, &rev.UserReviewed, &rev.UserReviewing, &rev.Rating, &rev.Content, &rev.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rev, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
