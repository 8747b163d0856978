package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"tripmate-server/handlers"
	"tripmate-server/middleware"
	"tripmate-server/services"
	"tripmate-server/store"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using default configuration")
	}

	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		log.Fatal("MONGODB_URI environment variable is not set")
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		log.Fatal("REDIS_ADDR environment variable is not set")
	}
	redisDB := 0
	if redisDBStr := os.Getenv("REDIS_DB"); redisDBStr != "" {
		var err error
		redisDB, err = strconv.Atoi(redisDBStr)
		if err != nil {
			log.Fatalf("Invalid REDIS_DB value: %v", err)
		}
	}

	ctx := context.Background()

	st, err := store.New(ctx, mongoURI, "tripmate")
	if err != nil {
		log.Fatalf("MongoDB connection failed: %v", err)
	}
	log.Println("Connected to MongoDB")
	if err := st.EnsureIndexes(ctx); err != nil {
		log.Printf("Failed to create indexes: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   redisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// Services
	userService := services.NewUserService(st, redisClient, jwtSecret)
	friendService := services.NewFriendService(st, userService)
	feedService := services.NewFeedService(st)
	chatService := services.NewChatService(st)
	goalService := services.NewGoalService(st, friendService, userService, redisClient)
	matchService := services.NewMatchService(st)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService)
	friendHandler := handlers.NewFriendHandler(friendService)
	feedHandler := handlers.NewFeedHandler(feedService)
	chatHandler := handlers.NewChatHandler(chatService)
	goalHandler := handlers.NewGoalHandler(goalService)
	matchHandler := handlers.NewMatchHandler(matchService)

	r := mux.NewRouter()

	// CORS middleware
	allowedOrigins := middleware.AllowedOrigins("http://localhost:3000", "http://localhost:5173")
	r.Use(middleware.CORSMiddleware(allowedOrigins))
	r.Use(middleware.ErrorMiddleware())

	// The user-keyed limiter must run after JWTMiddleware so requests are
	// budgeted per authenticated user, not per source address.
	userLimiter := middleware.NewLimiterStore(120, 20, 5*time.Minute)
	authLimiter := middleware.NewLimiterStore(30, 10, 5*time.Minute)

	// Auth routes, rate limited by remote address.
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.Use(middleware.RateLimitMiddleware(authLimiter))
	authRouter.HandleFunc("/register", authHandler.RegisterUser).Methods("POST", "OPTIONS")
	authRouter.HandleFunc("/login", authHandler.LoginUser).Methods("POST", "OPTIONS")

	// Friend routes
	friendRouter := r.PathPrefix("/friends").Subrouter()
	friendRouter.Use(middleware.JWTMiddleware(jwtSecret))
	friendRouter.Use(middleware.RateLimitMiddleware(userLimiter))
	friendRouter.HandleFunc("", friendHandler.ListFriends).Methods("GET", "OPTIONS")
	friendRouter.HandleFunc("/requests", friendHandler.ListFriendRequests).Methods("GET", "OPTIONS")
	friendRouter.HandleFunc("/requests", friendHandler.SendFriendRequest).Methods("POST", "OPTIONS")
	friendRouter.HandleFunc("/requests/respond", friendHandler.RespondToFriendRequest).Methods("POST", "OPTIONS")

	// Feed routes
	feedRouter := r.PathPrefix("/feed").Subrouter()
	feedRouter.Use(middleware.JWTMiddleware(jwtSecret))
	feedRouter.Use(middleware.RateLimitMiddleware(userLimiter))
	feedRouter.HandleFunc("", feedHandler.GetFeed).Methods("GET", "OPTIONS")
	feedRouter.HandleFunc("/posts", feedHandler.CreatePost).Methods("POST", "OPTIONS")
	feedRouter.HandleFunc("/posts/{postID}", feedHandler.EditPost).Methods("PUT", "OPTIONS")
	feedRouter.HandleFunc("/posts/{postID}", feedHandler.DeletePost).Methods("DELETE", "OPTIONS")
	feedRouter.HandleFunc("/posts/{postID}/like", feedHandler.ToggleLike).Methods("POST", "OPTIONS")

	// Chat routes
	chatRouter := r.PathPrefix("/chats").Subrouter()
	chatRouter.Use(middleware.JWTMiddleware(jwtSecret))
	chatRouter.Use(middleware.RateLimitMiddleware(userLimiter))
	chatRouter.HandleFunc("/messages", chatHandler.SendMessage).Methods("POST", "OPTIONS")
	chatRouter.HandleFunc("/{peerID}", chatHandler.OpenConversation).Methods("GET", "OPTIONS")
	chatRouter.HandleFunc("/{peerID}/unread", chatHandler.GetUnreadCount).Methods("GET", "OPTIONS")

	// Goal routes
	goalRouter := r.PathPrefix("/goals").Subrouter()
	goalRouter.Use(middleware.JWTMiddleware(jwtSecret))
	goalRouter.Use(middleware.RateLimitMiddleware(userLimiter))
	goalRouter.HandleFunc("", goalHandler.ListActiveGoals).Methods("GET", "OPTIONS")
	goalRouter.HandleFunc("/recompute", goalHandler.RecomputeGoals).Methods("POST", "OPTIONS")
	goalRouter.HandleFunc("/leaderboard", goalHandler.GetLeaderboard).Methods("GET", "OPTIONS")

	// Match routes
	matchRouter := r.PathPrefix("/matches").Subrouter()
	matchRouter.Use(middleware.JWTMiddleware(jwtSecret))
	matchRouter.Use(middleware.RateLimitMiddleware(userLimiter))
	matchRouter.HandleFunc("", matchHandler.GetMatches).Methods("GET", "OPTIONS")

	log.Println("Server starting on :8080")
	log.Fatal(http.ListenAndServe(":8080", r))
}
