package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"go-market/internal/chat"
	"go-market/internal/db"
	"go-market/internal/mailer"
	myMiddleware "go-market/internal/middleware"
	"go-market/internal/offer"
	"go-market/internal/order"
	"go-market/internal/review"
	"go-market/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 1. Config & Flags
	addr := flag.String("addr", ":8080", "http service address")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("❌ DB_DSN is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("❌ JWT_SECRET is not set")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(dsn)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database Schema Initialized")

	// 3. Connect to Redis (Platform Layer)
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Connected to Redis")

	// 4. Users & Auth
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, jwtSecret)
	userHandler := user.NewHandler(userService)
	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 5. Messaging core
	chatRepo := chat.NewRepository(database.Conn, redisClient)
	chatHandler := chat.NewHandler(chatRepo)

	// 6. Marketplace features
	mail := mailer.New(
		os.Getenv("SMTP_HOST"),
		os.Getenv("SMTP_PORT"),
		os.Getenv("SMTP_FROM"),
		os.Getenv("SMTP_USER"),
		os.Getenv("SMTP_PASSWORD"),
	)
	if mail == nil {
		log.Println("⚠️ SMTP not configured, offer notices disabled")
	}

	orderRepo := order.NewRepository(database.Conn)
	orderHandler := order.NewHandler(orderRepo, order.NewCatboxUploader())

	offerRepo := offer.NewRepository(database.Conn)
	offerHandler := offer.NewHandler(offerRepo, orderRepo, userRepo, mail)

	reviewRepo := review.NewRepository(database.Conn)
	reviewHandler := review.NewHandler(reviewRepo)

	// 7. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		// WebSocket (Real-time)
		r.Get("/ws", chatHandler.ServeWs)

		// Messaging REST
		r.Post("/api/message", chatHandler.SendMessage)
		r.Post("/api/message/{id}", chatHandler.UpdateMessage)
		r.Delete("/api/message/{id}", chatHandler.DeleteMessage)
		r.Get("/api/messages", chatHandler.GetHistory)
		r.Get("/api/contacts", chatHandler.GetContacts)

		// Users
		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Get("/api/users/{id}", userHandler.Get)
		r.Post("/api/users/{id}", userHandler.Update)
		r.Delete("/api/users/{id}", userHandler.Delete)

		// Orders
		r.Post("/api/order", orderHandler.Create)
		r.Get("/api/orders/search", orderHandler.Search)
		r.Get("/api/orders/user/{id}", orderHandler.ListByUser)
		r.Get("/api/orders/{id}", orderHandler.Get)
		r.Post("/api/orders/{id}", orderHandler.Update)
		r.Delete("/api/orders/{id}", orderHandler.Delete)

		// Offers
		r.Post("/api/offer", offerHandler.Create)
		r.Get("/api/offers/user/{id}", offerHandler.ListByUser)
		r.Get("/api/offers/order/{id}", offerHandler.ListByOrder)
		r.Get("/api/offers/{id}", offerHandler.Get)
		r.Post("/api/offers/{id}", offerHandler.UpdateStatus)
		r.Delete("/api/offers/{id}", offerHandler.Delete)

		// Reviews
		r.Post("/api/review", reviewHandler.Create)
		r.Get("/api/reviews/for/{id}", reviewHandler.ListForUser)
		r.Get("/api/reviews/by/{id}", reviewHandler.ListByUser)
		r.Get("/api/reviews/{id}", reviewHandler.Get)
		r.Post("/api/reviews/{id}", reviewHandler.Update)
		r.Delete("/api/reviews/{id}", reviewHandler.Delete)
	})

	log.Printf("🚀 Server starting on %s", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		log.Fatal(err)
	}
}
