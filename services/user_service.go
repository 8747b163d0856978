package services

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"tripmate-server/models"
	"tripmate-server/store"
	"tripmate-server/utils/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

const userCacheTTL = 24 * time.Hour

type UserService struct {
	store       *store.Store
	redisClient *redis.Client
	jwtSecret   string
}

func NewUserService(st *store.Store, redisClient *redis.Client, jwtSecret string) *UserService {
	return &UserService{
		store:       st,
		redisClient: redisClient,
		jwtSecret:   jwtSecret,
	}
}

// Register creates a new user and returns their public ID and a session token.
func (s *UserService) Register(ctx context.Context, fullName, email, password string) (string, string, error) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", "", errors.Wrap(err, "HASH_ERROR", "Failed to hash password", http.StatusInternalServerError)
	}

	user := models.User{
		ID:           uuid.New().String(),
		PublicID:     uuid.New().String(),
		FullName:     fullName,
		Email:        email,
		PasswordHash: string(passwordHash),
		Points:       0,
	}

	_, err = s.store.Users().InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", "", errors.NewAPIError("EMAIL_TAKEN", "An account with this email already exists", http.StatusConflict)
		}
		return "", "", errors.Wrap(err, "DB_ERROR", "Failed to create user in database", http.StatusInternalServerError)
	}

	s.cacheUser(ctx, user)

	token, err := s.issueToken(user.PublicID)
	if err != nil {
		return "", "", err
	}
	return user.PublicID, token, nil
}

// Login authenticates a user by email and returns a JWT.
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	var user models.User
	err := s.store.Users().FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		return "", errors.NewAPIError("INVALID_CREDENTIALS", "Invalid email or password", http.StatusUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", errors.NewAPIError("INVALID_CREDENTIALS", "Invalid email or password", http.StatusUnauthorized)
	}

	s.cacheUser(ctx, user)

	return s.issueToken(user.PublicID)
}

func (s *UserService) issueToken(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userID": userID,
		"exp":    time.Now().Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", errors.Wrap(err, "JWT_ERROR", "Failed to generate token", http.StatusInternalServerError)
	}
	return tokenString, nil
}

// GetUser retrieves a user from Redis or MongoDB. The Redis read-through
// keeps the display-name join on friend requests off the users collection.
func (s *UserService) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User

	userJSON, err := s.redisClient.Get(ctx, "user:"+userID).Result()
	if err == nil {
		if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
			log.Printf("Failed to unmarshal cached user %s: %v", userID, err)
		} else {
			return user, nil
		}
	}

	err = s.store.Users().FindOne(ctx, bson.M{"public_id": userID}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return models.User{}, errors.ErrNotFound
		}
		return models.User{}, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}

	s.cacheUser(ctx, user)
	return user, nil
}

// InvalidateUser drops the cached copy after a write that changes the user
// document, such as a points award.
func (s *UserService) InvalidateUser(ctx context.Context, userID string) {
	if err := s.redisClient.Del(ctx, "user:"+userID).Err(); err != nil {
		log.Printf("Failed to invalidate cached user %s: %v", userID, err)
	}
}

func (s *UserService) cacheUser(ctx context.Context, user models.User) {
	userJSON, err := json.Marshal(user)
	if err != nil {
		log.Printf("Failed to marshal user %s: %v", user.PublicID, err)
		return
	}
	s.redisClient.Set(ctx, "user:"+user.PublicID, userJSON, userCacheTTL)
}
