package httpapi

import (
	"net/http"

	"eventix/pkg/errutil"
	"eventix/pkg/middleware"
	"eventix/services/catalog"
	"eventix/services/order"
	"eventix/services/voucher"
	"eventix/services/wallet"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewRouter),
)

type Handler struct {
	catalog *catalog.Service
	wallet  *wallet.Service
	voucher *voucher.Service
	order   *order.Service
}

type Params struct {
	fx.In
	Catalog *catalog.Service
	Wallet  *wallet.Service
	Voucher *voucher.Service
	Order   *order.Service
}

// NewRouter builds the HTTP surface. Every authenticated route trusts the
// gateway-provided principal; the services enforce ownership.
func NewRouter(p Params) http.Handler {
	h := &Handler{
		catalog: p.Catalog,
		wallet:  p.Wallet,
		voucher: p.Voucher,
		order:   p.Order,
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1", middleware.Identity())
	{
		v1.GET("/events", h.listEvents)
		v1.GET("/events/:id", h.getEvent)
		v1.POST("/events", middleware.RequireRole(middleware.RoleOrganizer), h.createEvent)
		v1.GET("/events/:id/orders", middleware.RequireRole(middleware.RoleOrganizer), h.listEventOrders)

		v1.GET("/wallet", h.walletBalance)
		v1.POST("/wallet/points", middleware.RequireRole(middleware.RoleOrganizer), h.grantPoints)
		v1.POST("/wallet/coupons", middleware.RequireRole(middleware.RoleOrganizer), h.grantCoupon)

		v1.GET("/vouchers", h.listVouchers)
		v1.POST("/vouchers", middleware.RequireRole(middleware.RoleOrganizer), h.createVoucher)

		v1.POST("/orders", middleware.RequireRole(middleware.RoleCustomer), h.reserve)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/proof", middleware.RequireRole(middleware.RoleCustomer), h.recordProof)
		v1.POST("/orders/:id/approve", middleware.RequireRole(middleware.RoleOrganizer), h.approve)
		v1.POST("/orders/:id/reject", middleware.RequireRole(middleware.RoleOrganizer), h.reject)
		v1.POST("/orders/:id/cancel", h.cancel)
	}

	return r
}

func principal(c *gin.Context) middleware.Principal {
	p, _ := middleware.PrincipalFrom(c)
	return p
}

func (h *Handler) createEvent(c *gin.Context) {
	var req catalog.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	req.OwnerID = principal(c).UserID

	event, err := h.catalog.Create(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (h *Handler) getEvent(c *gin.Context) {
	event, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *Handler) listEvents(c *gin.Context) {
	events, err := h.catalog.List(c.Request.Context(), catalog.ListEventsRequest{
		OwnerID: c.Query("owner_id"),
		Status:  catalog.EventStatus(c.Query("status")),
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

func (h *Handler) walletBalance(c *gin.Context) {
	balance, err := h.wallet.AvailableBalance(c.Request.Context(), principal(c).UserID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *Handler) grantPoints(c *gin.Context) {
	var req wallet.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	point, err := h.wallet.GrantPoints(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, point)
}

func (h *Handler) grantCoupon(c *gin.Context) {
	var req wallet.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	coupon, err := h.wallet.GrantCoupon(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, coupon)
}

func (h *Handler) listVouchers(c *gin.Context) {
	vouchers, err := h.voucher.ListByUser(c.Request.Context(), principal(c).UserID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": vouchers})
}

func (h *Handler) createVoucher(c *gin.Context) {
	var req voucher.CreateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	req.ActorID = principal(c).UserID

	v, err := h.voucher.Create(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *Handler) reserve(c *gin.Context) {
	var req order.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	req.UserID = principal(c).UserID

	ord, err := h.order.Reserve(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, ord)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.order.ListByUser(c.Request.Context(), principal(c).UserID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": orders})
}

func (h *Handler) listEventOrders(c *gin.Context) {
	orders, err := h.order.ListByEvent(c.Request.Context(), c.Param("id"), principal(c).UserID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	ord, err := h.order.Get(c.Request.Context(), c.Param("id"), principal(c).UserID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ord)
}

type proofRequest struct {
	ProofRef string `json:"proof_ref"`
}

func (h *Handler) recordProof(c *gin.Context) {
	var req proofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	ord, err := h.order.RecordPaymentProof(c.Request.Context(), c.Param("id"), principal(c).UserID, req.ProofRef)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ord)
}

func (h *Handler) approve(c *gin.Context) {
	ord, err := h.order.Approve(c.Request.Context(), c.Param("id"), principal(c).UserID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ord)
}

func (h *Handler) reject(c *gin.Context) {
	ord, err := h.order.Reject(c.Request.Context(), c.Param("id"), principal(c).UserID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ord)
}

func (h *Handler) cancel(c *gin.Context) {
	ord, err := h.order.Cancel(c.Request.Context(), c.Param("id"), principal(c).UserID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ord)
}
