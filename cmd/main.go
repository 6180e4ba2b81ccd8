package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"gomoku/internal/adapters"
	"gomoku/internal/bootstrap"
	roomDelivery "gomoku/internal/delivery/room"
	sessionDelivery "gomoku/internal/delivery/session"
	"gomoku/internal/engine"
	ownMiddleware "gomoku/internal/middleware"
	repo "gomoku/internal/repository"
)

type mainDeliveryHandler struct {
	session *sessionDelivery.SessionHandler
	room    *roomDelivery.RoomHandler
}

type dataBaseAdapters struct {
	redisAdapter *adapters.AdapterRedis
	mongoAdapter *adapters.AdapterMongo
}

func main() {
	logger := NewLogger()
	cfg, err := bootstrap.Setup(".env")
	if err != nil {
		logger.Error("Failed to setup configuration", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleShutdown(cancel, logger)

	databaseAdapters := initDatabaseAdapters(ctx, logger, *cfg)
	defer databaseAdapters.mongoAdapter.Close(ctx)
	defer databaseAdapters.redisAdapter.Close(ctx)

	r := chi.NewRouter()
	handlers := initializeDeliveryHandlers(*cfg, logger, databaseAdapters)
	handlers.Router(r, cfg.IsLocalCors)

	port := cfg.ServerPort
	if port == "" {
		port = ":8080"
	}
	logger.Infof("Server is running on port %s", port)
	if err := http.ListenAndServe(port, r); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func NewLogger() *zap.SugaredLogger {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return logger.Sugar()
}

func (h *mainDeliveryHandler) Router(r *chi.Mux, isLocalCors bool) {
	if isLocalCors {
		r.Use(ownMiddleware.CORS)
	}
	r.Use(middleware.Logger)

	r.Post("/session/new", h.session.HandleNewSession)
	r.Post("/session/move", h.session.HandleMove)
	r.Post("/session/swap", h.session.HandleSwap)
	r.Post("/session/undo", h.session.HandleStepBack)
	r.Post("/session/redo", h.session.HandleStepForward)
	r.Post("/session/reset", h.session.HandleReset)
	r.Get("/session/suggestion", h.session.HandleSuggestion)
	r.Get("/session/state", h.session.HandleState)

	r.Post("/room/new", h.room.HandleNewRoom)
	r.Get("/room/list", h.room.HandleRooms)
	r.Get("/room/connect", h.room.HandleConnect)
	r.Get("/room/archive", h.room.HandleArchive)
}

func initDatabaseAdapters(ctx context.Context, log *zap.SugaredLogger, cfg bootstrap.Config) *dataBaseAdapters {
	mongoAdapter := adapters.NewAdapterMongo(&cfg)
	if err := mongoAdapter.Init(ctx); err != nil {
		log.Fatal("Не удалось инициализировать MongoDB", zap.Error(err))
	}

	redisAdapter := adapters.NewAdapterRedis(&cfg)
	if err := redisAdapter.Init(ctx); err != nil {
		log.Fatal("Не удалось инициализировать Redis", zap.Error(err))
	}

	log.Info("Адаптеры баз данных инициализированы")
	return &dataBaseAdapters{
		redisAdapter: redisAdapter,
		mongoAdapter: mongoAdapter,
	}
}

func initializeDeliveryHandlers(
	cfg bootstrap.Config,
	log *zap.SugaredLogger,
	databaseAdapters *dataBaseAdapters,
) *mainDeliveryHandler {
	engineClient := engine.NewClient(cfg, log)
	roomRepository := repo.NewRoomRepository(cfg, log, databaseAdapters.redisAdapter.GetClient(), databaseAdapters.mongoAdapter.Database)

	return &mainDeliveryHandler{
		session: sessionDelivery.NewSessionHandler(cfg, log, engineClient),
		room:    roomDelivery.NewRoomHandler(cfg, log, engineClient, roomRepository),
	}
}

func handleShutdown(cancelFunc context.CancelFunc, log *zap.SugaredLogger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("Received shutdown signal")
	cancelFunc()
	time.Sleep(1 * time.Second) // дать время закрыть соединения
}
