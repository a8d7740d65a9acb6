package app

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/zealess/doj-backend/internal/account"
	"github.com/zealess/doj-backend/internal/auth/credentials"
	"github.com/zealess/doj-backend/internal/auth/handler"
	"github.com/zealess/doj-backend/internal/config"
	"github.com/zealess/doj-backend/internal/discord"
	"github.com/zealess/doj-backend/internal/link"
	"github.com/zealess/doj-backend/internal/middleware"
	"github.com/zealess/doj-backend/internal/state"
	"github.com/zealess/doj-backend/internal/token"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	accountStore := account.NewPGStore(infra.DB)
	credentialService := credentials.NewService(accountStore)
	codec := token.NewCodec(cfg.JWTSecret)

	gradeTable, err := config.ParseGradeRoleMap(cfg.GradeRoleMap)
	if err != nil {
		return nil, nil, err
	}

	discordClient, err := discord.New(discord.Config{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURL:  cfg.DiscordRedirectURL,
		BotToken:     cfg.DiscordBotToken,
		GuildID:      cfg.DiscordGuildID,
		BaseURL:      cfg.DiscordBaseURL,
		Timeout:      cfg.DiscordTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	var stateGuard state.Guard = state.NoopGuard{}
	if infra.Redis != nil {
		stateGuard = state.NewRedisGuard(infra.Redis.Client)
	}

	linkService := link.NewService(link.ServiceConfig{
		Codec:           codec,
		Client:          discordClient,
		Accounts:        accountStore,
		Guard:           stateGuard,
		GradeTable:      gradeTable,
		StateTTL:        cfg.LinkStateTTL,
		SyncSecret:      cfg.SyncSharedSecret,
		FrontendBaseURL: cfg.FrontendBaseURL,
	})
	linkHandler := link.NewHandler(linkService)

	authHandler := handler.NewHandler(
		credentialService,
		accountStore,
		codec,
		cfg.SessionTTL,
		cfg.ProfileEditGrades,
	)

	authMiddleware := middleware.NewAuthMiddleware(codec)
	requireAuth := middleware.GinRequireAuth(authMiddleware)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())

	// Frontend is served from another origin; mirror its permissive
	// CORS posture, including the preflight short-circuit.
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{
		"Origin", "X-Requested-With", "Content-Type", "Accept", "Authorization",
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// ----------------------------
	// Routes
	// ----------------------------

	authHandler.RegisterRoutes(router, requireAuth)
	linkHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, func() error {
		if infra.Redis != nil {
			_ = infra.Redis.Close()
		}
		return infra.DB.Close()
	}, nil
}
