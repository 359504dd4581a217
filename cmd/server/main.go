package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"papertrade/internal/api"
	"papertrade/internal/auth"
	"papertrade/internal/config"
	"papertrade/internal/db"
	"papertrade/internal/jobs"
	"papertrade/internal/logger"
	"papertrade/internal/marketdata"
	"papertrade/internal/models"
	"papertrade/internal/trading"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type quoteHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
}

func newQuoteHub() *quoteHub {
	return &quoteHub{clients: make(map[*wsClient]bool)}
}

func (hub *quoteHub) add(c *wsClient) {
	hub.mu.Lock()
	hub.clients[c] = true
	hub.mu.Unlock()
}

func (hub *quoteHub) remove(c *wsClient) {
	hub.mu.Lock()
	delete(hub.clients, c)
	hub.mu.Unlock()
}

// broadcast pushes the current quotes for the whole catalog to every
// connected client, dropping clients whose writes fail.
func (hub *quoteHub) broadcast(ctx context.Context, database *db.DB, market *marketdata.Service) {
	instruments, err := database.ListInstruments(ctx)
	if err != nil {
		logger.Errorf("failed to list instruments for broadcast: %v", err)
		return
	}

	quotes := make([]models.Quote, 0, len(instruments))
	for _, inst := range instruments {
		quote, err := market.GetQuote(ctx, inst.Symbol)
		if err != nil {
			continue
		}
		quotes = append(quotes, quote)
	}

	data, err := json.Marshal(map[string]interface{}{"quotes": quotes})
	if err != nil {
		logger.Errorf("failed to marshal quotes: %v", err)
		return
	}

	hub.mu.RLock()
	clients := make([]*wsClient, 0, len(hub.clients))
	for client := range hub.clients {
		clients = append(clients, client)
	}
	hub.mu.RUnlock()

	for _, client := range clients {
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			logger.Warnf("failed to send quotes, dropping client: %v", err)
			hub.remove(client)
		}
	}
}

func handleWebSocket(hub *quoteHub, database *db.DB, market *marketdata.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Errorf("failed to upgrade connection: %v", err)
			return
		}

		client := &wsClient{conn: conn}
		hub.add(client)

		// Send an initial snapshot
		hub.broadcast(r.Context(), database, market)

		// Keep connection alive and handle disconnection
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				hub.remove(client)
				break
			}
		}
	}
}

// Main entry point: sets up database, execution engine, jobs, and the
// HTTP server
func main() {
	if err := godotenv.Load(); err != nil {
		logger.Infof("no .env file found, using system environment")
	}

	cfg, err := config.Load("config.yaml")
	if err != nil {
		logger.Errorf("failed to load config: %v", err)
		return
	}
	logger.SetLevel(cfg.LogLevel)

	initialBalance, err := decimal.NewFromString(cfg.InitialBalance)
	if err != nil {
		logger.Errorf("invalid initial_balance %q: %v", cfg.InitialBalance, err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Errorf("failed to connect to database: %v", err)
		return
	}
	defer database.Close(ctx)

	market := marketdata.NewService(cfg.QuoteTTL)
	engine := trading.NewEngine(database, market)
	authService := auth.NewAuthService(database, cfg.JWTSecret, cfg.TokenTTL)
	handler := api.NewHandler(database, engine, market, authService)
	hub := newQuoteHub()

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WebSocket quote stream
	r.Get("/ws", handleWebSocket(hub, database, market))

	// Public endpoints
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)
	r.Get("/market/quotes/{symbol}", handler.GetQuote)
	r.Get("/market/history/{symbol}", handler.GetHistory)
	r.Get("/market/instruments", handler.SearchInstruments)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(handler.JWTAuthMiddleware)
		r.Post("/accounts", handler.CreateAccount(initialBalance))
		r.Get("/accounts", handler.GetUserAccounts)
		r.Get("/accounts/{id}/summary", handler.GetAccountSummary)
		r.Get("/accounts/{id}/portfolio", handler.GetPortfolio)
		r.Post("/orders", handler.PlaceOrder)
		r.Get("/orders", handler.GetUserOrders)
		r.Get("/orders/{id}", handler.GetOrder)
		r.Delete("/orders/{id}", handler.CancelOrder)
	})

	// Mark-to-market job
	c := cron.New()
	mtm := jobs.NewMarkToMarket(database, market)
	if err := mtm.Schedule(c, cfg.MarkToMarketSpec); err != nil {
		logger.Errorf("failed to schedule mark-to-market: %v", err)
		return
	}
	c.Start()
	defer c.Stop()

	server := &http.Server{Addr: cfg.ListenAddr, Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("starting server on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.BroadcastInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				hub.broadcast(gctx, database, market)
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("server failed: %v", err)
	}
}
