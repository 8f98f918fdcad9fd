package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"boutique/internal/cart"
	"boutique/internal/config"
	"boutique/internal/database"
	"boutique/internal/events"
	"boutique/internal/handlers"
	"boutique/internal/middleware"
	"boutique/internal/orders"
	"boutique/internal/repository"
	"boutique/internal/sms"
	"boutique/internal/storage"
)

func main() {
	config.Load()
	env := config.AppEnv

	client, err := database.Connect(env.MongoURI)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}()

	db := client.Database(env.DBName)
	log.Println("MongoDB connected to:", db.Name())

	if err := database.EnsureIndexes(db); err != nil {
		log.Printf("[DB] [WARN] index setup: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cartCache cart.Cache = cart.NopCache{}
	if env.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: env.RedisAddr, Password: env.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("[CART] [WARN] redis unreachable, cache disabled: %v", err)
		} else {
			cartCache = cart.NewRedisCache(rdb, env.CartCacheTTL)
		}
	}

	var sender sms.Sender = sms.LogSender{}
	if env.RabbitMQURL != "" {
		conn, ch, err := sms.DialAMQP(env.RabbitMQURL, env.SMSExchange, 5, 2*time.Second)
		if err != nil {
			log.Printf("[SMS] [WARN] rabbitmq unavailable, logging codes instead: %v", err)
		} else {
			defer conn.Close()
			defer ch.Close()
			sender = sms.NewAMQPSender(ch, env.SMSExchange)
		}
	}

	products := repository.NewProductRepository(db)
	cartSvc := cart.NewService(repository.NewCartRepository(db), cartCache, products)
	orderSvc := orders.NewService(repository.NewOrderStore(db), orders.Config{
		Pricing: orders.Pricing{
			TaxRate:       env.TaxRate,
			ShippingFee:   env.ShippingFee,
			ProcessingFee: env.ProcessingFee,
		},
		Currency: env.Currency,
		Timeout:  env.CheckoutTimeout,
		Carts:    cartSvc,
	})

	if len(env.KafkaBrokers) > 0 {
		writer := events.NewKafkaWriter(env.OrderEventsTopic, env.KafkaBrokers...)
		defer writer.Close()
		poller := events.NewOutboxPoller(repository.NewOutboxRepository(db), writer)
		go poller.Run(ctx)
		log.Println("[EVENTS] [INFO] publishing order events to", env.OrderEventsTopic)
	} else {
		log.Println("[EVENTS] [INFO] KAFKA_BROKERS empty, order events stay in the outbox")
	}

	images := storage.NewImageStore(env.UploadDir)
	tokens := handlers.TokenSettings{
		Secret:     env.JWTSecret,
		AccessTTL:  env.AccessTokenTTL,
		RefreshTTL: env.RefreshTokenTTL,
	}
	otp := handlers.OTPSettings{TTL: env.OTPTTL, Prefix: env.PhonePrefix}

	r := gin.Default()
	r.Use(middleware.RequestID())
	r.MaxMultipartMemory = 16 << 20
	r.Static("/uploads", filepath.Join(env.UploadDir, "uploads"))

	r.GET("/health", handlers.Health(db))

	userAuth := middleware.UserAuth(env.JWTSecret)
	activeUser := middleware.ActiveUser(repository.NewUserRepository(db))
	adminAuth := middleware.AdminAuth(env.JWTSecret)

	auth := r.Group("/api/auth")
	{
		auth.POST("/otp/request", handlers.RequestOTP(db, sender, otp))
		auth.POST("/otp/verify", handlers.VerifyOTP(db, otp, tokens))
		auth.POST("/refresh", handlers.Refresh(db, tokens))
		auth.POST("/logout", handlers.Logout(db))
	}

	users := r.Group("/api/users", userAuth, activeUser)
	{
		users.GET("/me", handlers.GetMe(db))
		users.PATCH("/me", handlers.UpdateMe(db))
	}

	addresses := r.Group("/api/addresses", userAuth, activeUser)
	{
		addresses.POST("", handlers.CreateAddress(db))
		addresses.GET("", handlers.ListAddresses(db))
		addresses.GET("/:id", handlers.GetAddress(db))
		addresses.PUT("/:id", handlers.UpdateAddress(db))
		addresses.DELETE("/:id", handlers.DeleteAddress(db))
		addresses.PATCH("/:id/default", handlers.SetDefaultAddress(db))
	}

	carts := r.Group("/api/cart", userAuth, activeUser)
	{
		carts.GET("", handlers.GetCart(cartSvc))
		carts.POST("/items", handlers.AddCartItem(cartSvc))
		carts.PATCH("/items/:productId", handlers.UpdateCartItem(cartSvc))
		carts.DELETE("/items/:productId", handlers.RemoveCartItem(cartSvc))
		carts.DELETE("", handlers.ClearCart(cartSvc))
	}

	catalog := r.Group("/api/products")
	{
		catalog.GET("", handlers.ListProducts(db))
		catalog.GET("/brands", handlers.ListBrands(db))
		catalog.GET("/categories", handlers.ListCategories(db))
		catalog.GET("/:id", handlers.GetProduct(db))
		catalog.GET("/:id/suggestions", handlers.GetSuggestions(db))
	}

	orderRoutes := r.Group("/api/orders")
	{
		orderRoutes.POST("", userAuth, activeUser, handlers.CreateOrder(orderSvc))
		orderRoutes.GET("", userAuth, activeUser, handlers.ListOrders(orderSvc))
		orderRoutes.GET("/:id", userAuth, activeUser, handlers.GetOrderLine(orderSvc))
		orderRoutes.PATCH("/:id/status", adminAuth, handlers.UpdateOrderStatus(orderSvc))
	}

	refunds := r.Group("/api/refunds", userAuth, activeUser)
	{
		refunds.POST("", handlers.CreateRefund(db))
		refunds.GET("", handlers.ListRefunds(db))
		refunds.GET("/:id", handlers.GetRefund(db))
		refunds.DELETE("/:id", handlers.WithdrawRefund(db))
	}

	r.POST("/api/admin/signup", handlers.AdminSignup(db, env.JWTSecret, env.AccessTokenTTL))
	r.POST("/api/admin/login", handlers.AdminLogin(db, env.JWTSecret, env.AccessTokenTTL))

	admin := r.Group("/api/admin", adminAuth)
	{
		admin.POST("/admins", middleware.AuthGuard(env.JWTSecret, middleware.RoleSuperAdmin), handlers.CreateAdmin(db))

		admin.GET("/dashboard/stats", handlers.DashboardStats(db))

		admin.GET("/products", handlers.AdminListProducts(db))
		admin.GET("/products/stats", handlers.GetProductStats(db))
		admin.POST("/products", handlers.CreateProduct(db, images))
		admin.PUT("/products/:id", handlers.UpdateProduct(db, images))
		admin.DELETE("/products/:id", handlers.DeleteProduct(db, images))

		admin.GET("/orders", handlers.AdminListOrders(db))
		admin.PATCH("/orders/:id/status", handlers.UpdateOrderStatus(orderSvc))
		admin.PATCH("/orders/:id/payment-status", handlers.UpdatePaymentStatus(orderSvc))

		admin.GET("/customers", handlers.AdminListCustomers(db))
		admin.GET("/customers/:id", handlers.AdminGetCustomer(db))
		admin.PATCH("/customers/:id/toggle-status", handlers.ToggleCustomerStatus(db))

		admin.GET("/refunds", handlers.AdminListRefunds(db))
		admin.PATCH("/refunds/:id", handlers.UpdateRefundStatus(db, orderSvc))
	}

	srv := &http.Server{
		Addr:              ":" + env.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Println("listening on", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("[SERVER] [ERROR] shutdown:", err)
	}
}
