package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dudaji/dudaji-chat/internal/config"
	"github.com/dudaji/dudaji-chat/internal/database"
	"github.com/dudaji/dudaji-chat/internal/docstore"
	"github.com/dudaji/dudaji-chat/internal/handlers"
	"github.com/dudaji/dudaji-chat/internal/middleware"
	"github.com/dudaji/dudaji-chat/internal/objectstore"
	"github.com/dudaji/dudaji-chat/internal/services"
	"github.com/dudaji/dudaji-chat/internal/websocket"
	"github.com/dudaji/dudaji-chat/pkg/auth"
)

type Server struct {
	Config     *config.Config
	Router     *gin.Engine
	DB         *database.Database
	Redis      *redis.Client
	Mongo      *mongo.Client
	Store      docstore.Store
	Hub        *websocket.Hub
	JWTManager *auth.JWTManager
}

func NewServer(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	s := &Server{Config: cfg}

	s.DB = &database.Database{}
	if err := s.DB.Connect(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("postgres connect failed: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	s.Redis = redis.NewClient(redisOpts)
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}

	if cfg.MongoURI != "" {
		s.Mongo, err = mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("mongo connect failed: %w", err)
		}
		if err := s.Mongo.Ping(ctx, nil); err != nil {
			return nil, fmt.Errorf("mongo ping failed: %w", err)
		}
	}

	if s.Store, err = s.openDocstore(ctx); err != nil {
		return nil, err
	}
	objects, err := s.openObjectStore()
	if err != nil {
		return nil, err
	}

	s.JWTManager = auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	blacklist := middleware.NewRedisBlacklist(s.Redis)

	access := services.NewRoomAccessController(s.Store,
		services.WithEnforceAdmin(cfg.EnforceAdminApproval),
		services.WithDefaultAvatar(cfg.DefaultRoomAvatar),
	)
	messages := services.NewMessageService(s.Store, access, objects)
	identity := services.NewIdentityService(s.DB, s.Store, s.JWTManager, blacklist)

	s.Hub = websocket.NewHub()
	go s.Hub.Run()

	s.Router = gin.Default()
	APIEndpoints(s.Router, Handlers{
		Auth:      handlers.NewAuthHandler(identity),
		User:      handlers.NewUserHandler(identity),
		Room:      handlers.NewRoomHandler(access, s.Hub),
		Message:   handlers.NewHTTPMessageHandler(access, messages, cfg.MaxUploadBytes),
		File:      handlers.NewFileHandler(objects),
		WebSocket: handlers.NewWebSocketHandler(s.Hub, s.Store, handlers.NewMessageHandler(s.Store, access), cfg.AllowedOrigins),
	}, Middleware{
		Auth:      middleware.AuthMiddleware(s.JWTManager, blacklist),
		WSAuth:    middleware.WSAuthMiddleware(s.JWTManager, blacklist),
		RateLimit: middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	})

	return s, nil
}

func (s *Server) openDocstore(ctx context.Context) (docstore.Store, error) {
	switch s.Config.DocstoreBackend {
	case config.BackendRedis:
		store, err := docstore.NewRedisStore(ctx, s.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis docstore: %w", err)
		}
		return store, nil
	case config.BackendMongo:
		return docstore.NewMongoStore(s.Mongo.Database(s.Config.MongoDatabase)), nil
	default:
		log.Println("Using in-memory document store")
		return docstore.NewMemoryStore(), nil
	}
}

func (s *Server) openObjectStore() (objectstore.Store, error) {
	if s.Config.ObjectStore == config.ObjectStoreGridFS {
		return objectstore.NewGridFSStore(s.Mongo.Database(s.Config.MongoDatabase), "uploads", s.Config.PublicBaseURL)
	}
	return objectstore.NewFSStore(s.Config.UploadDir, s.Config.PublicBaseURL)
}

// Run слушает порт до SIGINT/SIGTERM и затем закрывает соединения
func (s *Server) Run() {
	httpServer := &http.Server{
		Addr:    ":" + s.Config.Port,
		Handler: s.Router,
	}

	go func() {
		log.Printf("Server starting on port %s", s.Config.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server run error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	s.Hub.Stop()
	s.close(ctx)
}

func (s *Server) close(ctx context.Context) {
	if err := s.Store.Close(); err != nil {
		log.Printf("Docstore close error: %v", err)
	}
	if s.Mongo != nil {
		if err := s.Mongo.Disconnect(ctx); err != nil {
			log.Printf("Mongo disconnect error: %v", err)
		}
	}
	if err := s.Redis.Close(); err != nil {
		log.Printf("Redis close error: %v", err)
	}
	if err := s.DB.Close(); err != nil {
		log.Printf("Postgres close error: %v", err)
	}
}
