package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cartware/go-idempotent-checkout/internal/awsx"
	"github.com/cartware/go-idempotent-checkout/internal/carts"
	"github.com/cartware/go-idempotent-checkout/internal/completion"
	"github.com/cartware/go-idempotent-checkout/internal/idempotency"
	"github.com/cartware/go-idempotent-checkout/internal/orders"
	"github.com/cartware/go-idempotent-checkout/internal/payments"
	"github.com/cartware/go-idempotent-checkout/internal/pricing"
	"github.com/cartware/go-idempotent-checkout/internal/validation"
)

// IdempotencyHeader is the request/response header carrying the token.
const IdempotencyHeader = "Idempotency-Key"

// HandlerConfig groups dependencies for the cart handlers.
type HandlerConfig struct {
	DynamoDBClient   awsx.DynamoDBAPI
	SQSClient        awsx.SQSAPI
	CloudWatchClient awsx.CloudWatchAPI
	PaymentProvider  payments.Provider
	IdempotencyTable string
	CartsTable       string
	OrdersTable      string
	VariantsTable    string
	QueueURL         string
	TTLWindow        time.Duration
}

// RegisterCartRoutes registers the cart completion API.
func RegisterCartRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	keyStore := idempotency.NewStore(cfg.DynamoDBClient, cfg.IdempotencyTable, cfg.TTLWindow)
	cartStore := carts.NewStore(cfg.DynamoDBClient, cfg.CartsTable)
	orderStore := orders.NewStore(cfg.DynamoDBClient, cfg.OrdersTable)

	var variantStore *pricing.Store
	if cfg.VariantsTable != "" {
		variantStore = pricing.NewStore(cfg.DynamoDBClient, cfg.VariantsTable)
	}

	var metrics *awsx.Metrics
	if cfg.CloudWatchClient != nil {
		metrics = awsx.NewMetrics(cfg.CloudWatchClient)
	}
	var publisher *awsx.Publisher
	if cfg.SQSClient != nil && cfg.QueueURL != "" {
		publisher = awsx.NewPublisher(cfg.SQSClient, cfg.QueueURL)
	}

	strategy := completion.NewDefaultStrategy(cartStore, orderStore, cfg.PaymentProvider, variantStore)
	executor := completion.NewExecutor(keyStore, strategy, cfg.DynamoDBClient, metrics, publisher)

	r.POST("/carts", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateCartRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		cart := cartFromRequest(req)
		if err := cartStore.Put(ctx, cart); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cart_create_failed", "detail": err.Error()})
			return
		}

		c.Header("Location", "/carts/"+cart.CartID)
		c.JSON(http.StatusCreated, cart)
	})

	r.GET("/carts/:id", func(c *gin.Context) {
		cart, err := cartStore.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cart_fetch_failed", "detail": err.Error()})
			return
		}
		if cart == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "cart_not_found"})
			return
		}
		c.JSON(http.StatusOK, cart)
	})

	r.POST("/carts/:id/complete", func(c *gin.Context) {
		ctx := c.Request.Context()
		cartID := c.Param("id")

		// Optional body; a malformed one is still a client error.
		if c.Request.ContentLength > 0 {
			var req validation.CompleteCartRequest
			if err := validation.BindAndValidate(c, &req, v); err != nil {
				return
			}
		}

		key, resp, err := executor.Execute(ctx, completion.Request{
			Token:  c.GetHeader(IdempotencyHeader),
			Method: http.MethodPost,
			Path:   "/carts/" + cartID + "/complete",
			CartID: cartID,
		})

		// Always surface the token (client-supplied or server-generated) so
		// clients can retry with it; expose it for browser callers.
		if key != nil {
			c.Header(IdempotencyHeader, key.IdempotencyKey)
			c.Header("Access-Control-Expose-Headers", IdempotencyHeader)
		}

		if err != nil {
			status := completion.StatusForError(err)
			body := gin.H{"error": "completion_failed", "detail": err.Error()}
			if status == http.StatusConflict {
				body["error"] = "idempotency_conflict"
			}
			if status == http.StatusServiceUnavailable {
				body["retryable"] = true
			}
			c.JSON(status, body)
			return
		}

		if resp.Raw != "" {
			c.Data(resp.Code, "application/json", []byte(resp.Raw))
			return
		}
		c.JSON(resp.Code, resp.Body)
	})

	if variantStore != nil {
		priceStrategy := pricing.NewDefaultStrategy()

		r.POST("/variants", func(c *gin.Context) {
			var req validation.CreateVariantRequest
			if err := validation.BindAndValidate(c, &req, v); err != nil {
				return
			}

			variant := variantFromRequest(req)
			if err := variantStore.Put(c.Request.Context(), variant); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "variant_create_failed", "detail": err.Error()})
				return
			}
			c.Header("Location", "/variants/"+variant.VariantID+"/price")
			c.JSON(http.StatusCreated, variant)
		})

		r.GET("/variants/:id/price", func(c *gin.Context) {
			ctx := c.Request.Context()
			variant, err := variantStore.Get(ctx, c.Param("id"))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "variant_fetch_failed", "detail": err.Error()})
				return
			}
			if variant == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "variant_not_found"})
				return
			}

			quantity, _ := strconv.Atoi(c.Query("quantity"))
			price, err := priceStrategy.CalculateVariantPrice(ctx, *variant, pricing.Context{
				RegionID:              c.Query("region_id"),
				CurrencyCode:          c.Query("currency_code"),
				CustomerID:            c.Query("customer_id"),
				Quantity:              quantity,
				IncludeDiscountPrices: c.Query("include_discounts") == "true",
			})
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "price_calculation_failed", "detail": err.Error()})
				return
			}
			c.JSON(http.StatusOK, price)
		})
	}

	r.GET("/orders/:id", func(c *gin.Context) {
		o, err := orderStore.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_fetch_failed", "detail": err.Error()})
			return
		}
		if o == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}
		c.JSON(http.StatusOK, o)
	})
}

func cartFromRequest(req validation.CreateCartRequest) *carts.Cart {
	cartType := req.Type
	if cartType == "" {
		cartType = carts.TypeDefault
	}

	items := make([]carts.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, carts.LineItem{
			VariantID: it.VariantID,
			Title:     it.Title,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	cart := &carts.Cart{
		CartID:       uuid.NewString(),
		Type:         cartType,
		CustomerID:   req.CustomerID,
		Email:        req.Email,
		RegionID:     req.RegionID,
		CurrencyCode: req.CurrencyCode,
		TaxRate:      req.TaxRate,
		Items:        items,
	}
	if req.ShippingAddress != nil {
		cart.ShippingAddress = addressFromPayload(req.ShippingAddress)
	}
	if req.BillingAddress != nil {
		cart.BillingAddress = addressFromPayload(req.BillingAddress)
	}
	if req.PaymentProvider != "" {
		cart.PaymentSession = &carts.PaymentSession{
			Provider: req.PaymentProvider,
			Status:   carts.SessionPending,
		}
	}
	return cart
}

func variantFromRequest(req validation.CreateVariantRequest) *pricing.Variant {
	prices := make([]pricing.MoneyAmount, 0, len(req.Prices))
	for _, p := range req.Prices {
		prices = append(prices, pricing.MoneyAmount{
			Amount:        p.Amount,
			CurrencyCode:  p.CurrencyCode,
			RegionID:      p.RegionID,
			MinQuantity:   p.MinQuantity,
			MaxQuantity:   p.MaxQuantity,
			PriceListID:   p.PriceListID,
			PriceListType: p.PriceListType,
		})
	}
	return &pricing.Variant{VariantID: req.VariantID, Prices: prices}
}

func addressFromPayload(a *validation.AddressPayload) *carts.Address {
	return &carts.Address{
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		Address1:    a.Address1,
		City:        a.City,
		CountryCode: a.CountryCode,
		PostalCode:  a.PostalCode,
	}
}
