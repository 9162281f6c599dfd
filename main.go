package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ragchatgo/internal/api"
	"ragchatgo/internal/config"
	"ragchatgo/internal/embedding"
	"ragchatgo/internal/ingest"
	"ragchatgo/internal/namespace"
	"ragchatgo/internal/redis"
	"ragchatgo/internal/service/chat"
	"ragchatgo/internal/service/rag"
	"ragchatgo/internal/session"
	"ragchatgo/internal/storage"
	"ragchatgo/internal/vectorindex"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfgPath := os.Getenv("RAGCHATGO_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	dbType := os.Getenv("RAGCHATGO_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", dbType).Msg("open database")
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create redis client")
	}
	defer rdb.Close()

	index, err := vectorindex.New(cfg.Index.Dimension)
	if err != nil {
		log.Fatal().Err(err).Msg("create vector index")
	}
	defer index.Close()

	ctx := context.Background()
	var embedder embedding.Embedder
	switch strings.ToLower(cfg.Index.EmbeddingProvider) {
	case "gemini":
		embedder, err = embedding.NewGeminiEmbedder(ctx, cfg.Index.EmbeddingAPIKey, cfg.Index.EmbeddingModel, cfg.Index.Dimension)
		if err != nil {
			log.Fatal().Err(err).Msg("create gemini embedder")
		}
	default:
		embedder = embedding.NewHashEmbedder(cfg.Index.Dimension)
	}

	provider := os.Getenv("RAGCHATGO_PROVIDER")
	if provider == "" {
		provider = "openai"
	}
	chatModel, err := rag.NewChatModel(ctx, cfg, provider)
	if err != nil {
		log.Fatal().Err(err).Str("provider", provider).Msg("create chat model")
	}

	sessions := session.NewStore(rdb, time.Duration(cfg.Session.TTLSeconds)*time.Second)
	pipeline := rag.NewService(chatModel, embedder, index, rag.Options{
		TopK:           cfg.Retrieval.TopK,
		FetchK:         cfg.Retrieval.FetchK,
		ScoreThreshold: cfg.Retrieval.ScoreThreshold,
		AnswerLanguage: cfg.Retrieval.AnswerLanguage,
	})
	directory := namespace.NewDirectory(index)
	chatService := chat.NewService(sessions, pipeline, directory)
	ingestService, err := ingest.NewService(db, index, embedder, cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		log.Fatal().Err(err).Msg("init ingest service")
	}

	handlers := api.NewHandler(chatService, ingestService, cfg.BasicConfig.CORSOrigins)
	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	log.Info().Str("addr", addr).Str("provider", provider).Msg("server starting")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
