package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/TannerHolle/budget/internal/api/handlers"
	"github.com/TannerHolle/budget/internal/api/middleware"
	"github.com/TannerHolle/budget/internal/bankfeed"
	"github.com/TannerHolle/budget/internal/config"
	"github.com/TannerHolle/budget/internal/infra/postgres"
	"github.com/TannerHolle/budget/internal/logger"
	"github.com/TannerHolle/budget/internal/mail"
	"github.com/TannerHolle/budget/internal/plaid"
	"github.com/TannerHolle/budget/internal/teller"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("info", false)
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	ctx := context.Background()

	// Database
	db, err := postgres.Connect(ctx, cfg.DatabaseURI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Repositories
	users := postgres.NewUserRepository(db)
	tokens := postgres.NewTokenRepository(db)
	budgets := postgres.NewBudgetRepository(db)
	categories := postgres.NewCategoryRepository(db)
	expenses := postgres.NewExpenseRepository(db)
	invites := postgres.NewInviteRepository(db)
	netWorth := postgres.NewNetWorthRepository(db)

	if err := tokens.PurgeExpired(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to purge expired tokens")
	}

	// Bank feed pipeline
	syncer := bankfeed.NewSyncer(budgets, categories, expenses, log)
	importer := bankfeed.NewImporter(budgets, categories, expenses, log)

	plaidClient := plaid.NewClient(plaid.Config{
		ClientID:    cfg.PlaidClientID,
		Secret:      cfg.PlaidSecret,
		Environment: cfg.PlaidEnvironment,
	})

	var tellerClient *teller.Client
	if cfg.TellerCertFile != "" {
		tellerClient, err = teller.NewClient(teller.Config{
			AppID:    cfg.TellerAppID,
			CertFile: cfg.TellerCertFile,
			KeyFile:  cfg.TellerKeyFile,
			BaseURL:  cfg.TellerBaseURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load Teller client certificate")
		}
	} else {
		log.Warn().Msg("No Teller certificate configured - Teller endpoints will be disabled")
	}

	// Mail
	mailCtx, cancelMail := context.WithCancel(ctx)
	defer cancelMail()

	dispatcher := mail.NewDispatcher(mail.NewSMTPSender(mail.SMTPConfig{
		Host:       cfg.SMTPHost,
		Port:       cfg.SMTPPort,
		User:       cfg.SMTPUser,
		Password:   cfg.SMTPPassword,
		From:       cfg.MailFrom,
		AppBaseURL: cfg.AppBaseURL,
	}), cfg.AppBaseURL, 100, log)
	dispatcher.Start(mailCtx)

	// Handlers
	authHandler := handlers.NewAuthHandler(users, tokens, invites, budgets, log)
	budgetsHandler := handlers.NewBudgetsHandler(budgets, users, invites, dispatcher, log)
	categoriesHandler := handlers.NewCategoriesHandler(budgets, categories, log)
	expensesHandler := handlers.NewExpensesHandler(budgets, categories, expenses, log)
	netWorthHandler := handlers.NewNetWorthHandler(netWorth, log)
	plaidHandler := handlers.NewPlaidHandler(plaidClient, budgets, syncer, importer, log)

	// Protected routes
	api := http.NewServeMux()

	api.HandleFunc("/api/auth/logout", postOnly(authHandler.Logout))
	api.HandleFunc("/api/auth/me", getOnly(authHandler.Me))

	api.HandleFunc("/api/budgets", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			budgetsHandler.List(w, r)
		case http.MethodPost:
			budgetsHandler.Create(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	api.HandleFunc("/api/budgets/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/budgets/"), "/"), "/")
		switch {
		case len(parts) == 1:
			switch r.Method {
			case http.MethodGet:
				budgetsHandler.Get(w, r, parts[0])
			case http.MethodPut:
				budgetsHandler.Rename(w, r, parts[0])
			case http.MethodDelete:
				budgetsHandler.Delete(w, r, parts[0])
			default:
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		case len(parts) == 2 && parts[1] == "invite" && r.Method == http.MethodPost:
			budgetsHandler.Invite(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "invite-code" && r.Method == http.MethodGet:
			budgetsHandler.InviteCode(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "regenerate-invite-code" && r.Method == http.MethodPost:
			budgetsHandler.RegenerateInviteCode(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "leave" && r.Method == http.MethodPost:
			budgetsHandler.Leave(w, r, parts[0])
		case len(parts) == 3 && parts[1] == "members" && r.Method == http.MethodDelete:
			budgetsHandler.RemoveMember(w, r, parts[0], parts[2])
		case len(parts) == 2 && parts[1] == "categories":
			switch r.Method {
			case http.MethodGet:
				categoriesHandler.List(w, r, parts[0])
			case http.MethodPost:
				categoriesHandler.Create(w, r, parts[0])
			default:
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		case len(parts) == 3 && parts[1] == "categories":
			switch r.Method {
			case http.MethodPut:
				categoriesHandler.Update(w, r, parts[0], parts[2])
			case http.MethodDelete:
				categoriesHandler.Delete(w, r, parts[0], parts[2])
			default:
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		case len(parts) == 2 && parts[1] == "expenses":
			switch r.Method {
			case http.MethodGet:
				expensesHandler.List(w, r, parts[0])
			case http.MethodPost:
				expensesHandler.Create(w, r, parts[0])
			default:
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		case len(parts) == 3 && parts[1] == "expenses" && parts[2] == "totals" && r.Method == http.MethodGet:
			expensesHandler.Totals(w, r, parts[0])
		case len(parts) == 3 && parts[1] == "expenses" && parts[2] == "months" && r.Method == http.MethodGet:
			expensesHandler.Months(w, r, parts[0])
		case len(parts) == 3 && parts[1] == "expenses":
			switch r.Method {
			case http.MethodPut:
				expensesHandler.Update(w, r, parts[0], parts[2])
			case http.MethodDelete:
				expensesHandler.Delete(w, r, parts[0], parts[2])
			default:
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		default:
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		}
	})

	// Plaid endpoints
	api.HandleFunc("/api/plaid/create-link-token", postOnly(plaidHandler.CreateLinkToken))
	api.HandleFunc("/api/plaid/exchange-token", postOnly(plaidHandler.ExchangeToken))
	api.HandleFunc("/api/plaid/accounts/", withID("/api/plaid/accounts/", http.MethodGet, plaidHandler.Accounts))
	api.HandleFunc("/api/plaid/transactions/", withID("/api/plaid/transactions/", http.MethodGet, plaidHandler.Transactions))
	api.HandleFunc("/api/plaid/import/", withID("/api/plaid/import/", http.MethodPost, plaidHandler.Import))
	api.HandleFunc("/api/plaid/remove/", withID("/api/plaid/remove/", http.MethodPost, plaidHandler.Remove))

	// Teller endpoints
	if tellerClient != nil {
		tellerHandler := handlers.NewTellerHandler(tellerClient, budgets, syncer, importer, log)
		api.HandleFunc("/api/teller/config", getOnly(tellerHandler.Config))
		api.HandleFunc("/api/teller/connect", postOnly(tellerHandler.Connect))
		api.HandleFunc("/api/teller/accounts/", withID("/api/teller/accounts/", http.MethodGet, tellerHandler.Accounts))
		api.HandleFunc("/api/teller/transactions/", withID("/api/teller/transactions/", http.MethodGet, tellerHandler.Transactions))
		api.HandleFunc("/api/teller/import/", withID("/api/teller/import/", http.MethodPost, tellerHandler.Import))
		api.HandleFunc("/api/teller/remove/", withID("/api/teller/remove/", http.MethodPost, tellerHandler.Remove))
	}

	// Net worth endpoints
	api.HandleFunc("/api/networth", getOnly(netWorthHandler.Summary))
	api.HandleFunc("/api/networth/assets", postOnly(netWorthHandler.CreateAsset))
	api.HandleFunc("/api/networth/assets/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/networth/assets/")
		switch r.Method {
		case http.MethodPut:
			netWorthHandler.UpdateAsset(w, r, id)
		case http.MethodDelete:
			netWorthHandler.DeleteAsset(w, r, id)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})
	api.HandleFunc("/api/networth/liabilities", postOnly(netWorthHandler.CreateLiability))
	api.HandleFunc("/api/networth/liabilities/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/networth/liabilities/")
		switch r.Method {
		case http.MethodPut:
			netWorthHandler.UpdateLiability(w, r, id)
		case http.MethodDelete:
			netWorthHandler.DeleteLiability(w, r, id)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Public routes
	mux := http.NewServeMux()
	mux.Handle("/", middleware.Auth(tokens)(api))
	mux.HandleFunc("/api/auth/register", postOnly(authHandler.Register))
	mux.HandleFunc("/api/auth/login", postOnly(authHandler.Login))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Flush outstanding mail before exit
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping mail dispatcher")
	}
	cancelMail()

	log.Info().Msg("Server exited")
}

func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return methodOnly(http.MethodGet, h)
}

func postOnly(h http.HandlerFunc) http.HandlerFunc {
	return methodOnly(http.MethodPost, h)
}

func methodOnly(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}

// withID routes a single-segment path parameter to a handler method.
func withID(prefix, method string, h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		id := strings.TrimPrefix(r.URL.Path, prefix)
		if id == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Budget ID is required")
			return
		}
		h(w, r, id)
	}
}
