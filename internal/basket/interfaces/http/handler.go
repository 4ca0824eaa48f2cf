// Package http 篮子基金 HTTP 接口
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/basketfund/internal/basket/application"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
	"github.com/wyfcoding/basketfund/pkg/contextx"
	"github.com/wyfcoding/basketfund/pkg/logger"
)

// Handler 基金 HTTP 处理器
type Handler struct {
	cmd   *application.CommandService
	query *application.QueryService
}

// NewHandler 创建 HTTP 处理器
func NewHandler(cmd *application.CommandService, query *application.QueryService) *Handler {
	return &Handler{cmd: cmd, query: query}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	funds := r.Group("/funds")
	{
		funds.GET("", h.ListFunds)
		funds.POST("", h.CreateFund)
		funds.GET("/:id", h.GetFund)
		funds.GET("/:id/nav", h.NetAssetValue)
		funds.GET("/:id/rebalance/plan", h.RebalancePlan)
		funds.POST("/:id/rebalance", h.Rebalance)

		funds.GET("/:id/quotes/invest", h.InvestQuote)
		funds.GET("/:id/quotes/redeem", h.RedeemQuote)
		funds.GET("/:id/quotes/invest-settlement", h.QuoteInvestWithSettlement)
		funds.GET("/:id/quotes/redeem-settlement", h.QuoteRedeemToSettlement)

		funds.POST("/:id/invest", h.Invest)
		funds.POST("/:id/redeem", h.Redeem)
		funds.POST("/:id/invest-settlement", h.InvestWithSettlement)
		funds.POST("/:id/redeem-settlement", h.RedeemToSettlement)

		funds.GET("/:id/investments", h.ListInvestments)
		funds.GET("/:id/redemptions", h.ListRedemptions)
		funds.GET("/:id/rebalances", h.ListRebalances)

		funds.PUT("/:id/weights", h.UpdateWeights)
		funds.PUT("/:id/fees", h.UpdateFees)
		funds.PUT("/:id/price-feeds", h.SetPriceFeed)
		funds.POST("/:id/assets", h.AddAsset)
		funds.DELETE("/:id/assets/:asset", h.RemoveAsset)
		funds.PUT("/:id/rebalance-params", h.SetRebalanceParams)
		funds.PUT("/:id/min-mint-amount", h.SetMinMintAmount)
		funds.PUT("/:id/fee-recipient", h.SetFeeRecipient)
	}

	ledger := r.Group("/ledger")
	{
		ledger.POST("/approvals", h.Approve)
		ledger.GET("/allowances/:token", h.Allowance)
		ledger.GET("/balances/:token/:account", h.Balance)
	}
}

// statusOf 领域错误到 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrFundNotFound), errors.Is(err, domain.ErrAssetNotFound),
		errors.Is(err, domain.ErrPoolNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrFundExists), errors.Is(err, domain.ErrAssetExists),
		errors.Is(err, domain.ErrAssetInUse), errors.Is(err, application.ErrFundBusy),
		errors.Is(err, domain.ErrSymbolInUse), errors.Is(err, domain.ErrAddressInUse):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotRebalanceTime):
		return http.StatusTooEarly
	case errors.Is(err, domain.ErrOverSlippage), errors.Is(err, domain.ErrNoRoute),
		errors.Is(err, domain.ErrInsufficientBalance), errors.Is(err, domain.ErrInsufficientAllowance),
		errors.Is(err, domain.ErrInsufficientLiquidity), errors.Is(err, domain.ErrZeroSupply),
		errors.Is(err, domain.ErrExceedsSupply), errors.Is(err, domain.ErrBelowMinimumMint),
		errors.Is(err, domain.ErrInvalidTotalWeights):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPriceUnavailable), errors.Is(err, domain.ErrInvalidPrice):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrInvalidFund), errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidWeight), errors.Is(err, domain.ErrInvalidFee),
		errors.Is(err, domain.ErrInvalidPath), errors.Is(err, domain.ErrPathCountMismatch),
		errors.Is(err, domain.ErrMissingPriceFeed), errors.Is(err, application.ErrInvalidArgument):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, msg string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), msg, "path", c.FullPath(), "error", err)
	} else {
		logger.Warn(c.Request.Context(), msg, "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// caller 需要身份的接口读取调用方账户
func caller(c *gin.Context) (string, bool) {
	account := contextx.Caller(c.Request.Context())
	if account == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing caller account"})
		return "", false
	}
	return account, true
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	v, err := decimal.NewFromString(raw)
	if err != nil || v.IsNegative() || !v.IsInteger() {
		return decimal.Zero, false
	}
	return v, true
}

func queryAmount(c *gin.Context, name string) (decimal.Decimal, bool) {
	v, ok := parseAmount(c.Query(name))
	if !ok {
		badRequest(c, "invalid "+name)
	}
	return v, ok
}

func pageOf(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, size
}

// --- 查询 ---

// ListFunds 基金列表
func (h *Handler) ListFunds(c *gin.Context) {
	funds, err := h.query.ListFunds(c.Request.Context())
	if err != nil {
		fail(c, "Failed to list funds", err)
		return
	}
	c.JSON(http.StatusOK, funds)
}

// GetFund 基金详情
func (h *Handler) GetFund(c *gin.Context) {
	fund, err := h.query.GetFund(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, "Failed to get fund", err)
		return
	}
	c.JSON(http.StatusOK, fund)
}

// NetAssetValue 基金净值
func (h *Handler) NetAssetValue(c *gin.Context) {
	nav, err := h.query.NetAssetValue(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, "Failed to value fund", err)
		return
	}
	c.JSON(http.StatusOK, nav)
}

// RebalancePlan 再平衡预览
func (h *Handler) RebalancePlan(c *gin.Context) {
	plan, err := h.query.RebalancePlan(c.Request.Context(), c.Param("id"), time.Now())
	if err != nil {
		fail(c, "Failed to plan rebalance", err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// InvestQuote 成分申购报价，参数 amount 为份额数量
func (h *Handler) InvestQuote(c *gin.Context) {
	amount, ok := queryAmount(c, "amount")
	if !ok {
		return
	}
	amounts, err := h.query.InvestQuote(c.Request.Context(), c.Param("id"), amount)
	if err != nil {
		fail(c, "Failed to quote invest", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amounts": amounts})
}

// RedeemQuote 成分赎回报价
func (h *Handler) RedeemQuote(c *gin.Context) {
	amount, ok := queryAmount(c, "amount")
	if !ok {
		return
	}
	amounts, err := h.query.RedeemQuote(c.Request.Context(), c.Param("id"), amount)
	if err != nil {
		fail(c, "Failed to quote redeem", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amounts": amounts})
}

// QuoteInvestWithSettlement 结算资产申购报价
func (h *Handler) QuoteInvestWithSettlement(c *gin.Context) {
	amount, ok := queryAmount(c, "amount")
	if !ok {
		return
	}
	q, err := h.query.QuoteInvestWithSettlement(c.Request.Context(), c.Param("id"), amount)
	if err != nil {
		fail(c, "Failed to quote settlement invest", err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// QuoteRedeemToSettlement 结算资产赎回报价
func (h *Handler) QuoteRedeemToSettlement(c *gin.Context) {
	amount, ok := queryAmount(c, "amount")
	if !ok {
		return
	}
	q, err := h.query.QuoteRedeemToSettlement(c.Request.Context(), c.Param("id"), amount)
	if err != nil {
		fail(c, "Failed to quote settlement redeem", err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// ListInvestments 申购记录
func (h *Handler) ListInvestments(c *gin.Context) {
	page, size := pageOf(c)
	out, err := h.query.ListInvestments(c.Request.Context(), c.Param("id"), page, size)
	if err != nil {
		fail(c, "Failed to list investments", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ListRedemptions 赎回记录
func (h *Handler) ListRedemptions(c *gin.Context) {
	page, size := pageOf(c)
	out, err := h.query.ListRedemptions(c.Request.Context(), c.Param("id"), page, size)
	if err != nil {
		fail(c, "Failed to list redemptions", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ListRebalances 再平衡记录
func (h *Handler) ListRebalances(c *gin.Context) {
	page, size := pageOf(c)
	out, err := h.query.ListRebalances(c.Request.Context(), c.Param("id"), page, size)
	if err != nil {
		fail(c, "Failed to list rebalances", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- 申购与赎回 ---

// InvestRequest 成分申购请求，Recipient 为空时份额发给调用方
type InvestRequest struct {
	Recipient  string `json:"recipient"`
	MintAmount string `json:"mint_amount" binding:"required"`
}

// Invest 以成分资产申购
func (h *Handler) Invest(c *gin.Context) {
	payer, ok := caller(c)
	if !ok {
		return
	}
	var req InvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	amount, ok := parseAmount(req.MintAmount)
	if !ok {
		badRequest(c, "invalid mint_amount")
		return
	}
	rec, err := h.cmd.Invest(c.Request.Context(), application.InvestCommand{
		FundID:     c.Param("id"),
		Payer:      payer,
		Recipient:  orDefault(req.Recipient, payer),
		MintAmount: amount,
	})
	if err != nil {
		fail(c, "Failed to invest", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// RedeemRequest 成分赎回请求
type RedeemRequest struct {
	Recipient  string `json:"recipient"`
	BurnAmount string `json:"burn_amount" binding:"required"`
}

// Redeem 赎回为成分资产
func (h *Handler) Redeem(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	amount, ok := parseAmount(req.BurnAmount)
	if !ok {
		badRequest(c, "invalid burn_amount")
		return
	}
	rec, err := h.cmd.Redeem(c.Request.Context(), application.RedeemCommand{
		FundID:     c.Param("id"),
		Owner:      owner,
		Recipient:  orDefault(req.Recipient, owner),
		BurnAmount: amount,
	})
	if err != nil {
		fail(c, "Failed to redeem", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// InvestWithSettlementRequest 结算资产申购请求，Paths 按成分顺序、以精确输出编码
type InvestWithSettlementRequest struct {
	Recipient       string            `json:"recipient"`
	MintAmount      string            `json:"mint_amount" binding:"required"`
	MaxSettlementIn string            `json:"max_settlement_in" binding:"required"`
	Paths           []domain.SwapPath `json:"paths" binding:"required"`
}

// InvestWithSettlement 以结算资产申购
func (h *Handler) InvestWithSettlement(c *gin.Context) {
	payer, ok := caller(c)
	if !ok {
		return
	}
	var req InvestWithSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	mint, ok1 := parseAmount(req.MintAmount)
	budget, ok2 := parseAmount(req.MaxSettlementIn)
	if !ok1 || !ok2 {
		badRequest(c, "invalid amount")
		return
	}
	rec, err := h.cmd.InvestWithSettlement(c.Request.Context(), application.InvestWithSettlementCommand{
		FundID:          c.Param("id"),
		Payer:           payer,
		Recipient:       orDefault(req.Recipient, payer),
		MintAmount:      mint,
		MaxSettlementIn: budget,
		Paths:           req.Paths,
	})
	if err != nil {
		fail(c, "Failed to invest with settlement", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// RedeemToSettlementRequest 赎回为结算资产请求
type RedeemToSettlementRequest struct {
	Recipient        string            `json:"recipient"`
	BurnAmount       string            `json:"burn_amount" binding:"required"`
	MinSettlementOut string            `json:"min_settlement_out" binding:"required"`
	Paths            []domain.SwapPath `json:"paths" binding:"required"`
}

// RedeemToSettlement 赎回为结算资产
func (h *Handler) RedeemToSettlement(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	var req RedeemToSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	burn, ok1 := parseAmount(req.BurnAmount)
	minOut, ok2 := parseAmount(req.MinSettlementOut)
	if !ok1 || !ok2 {
		badRequest(c, "invalid amount")
		return
	}
	rec, err := h.cmd.RedeemToSettlement(c.Request.Context(), application.RedeemToSettlementCommand{
		FundID:           c.Param("id"),
		Owner:            owner,
		Recipient:        orDefault(req.Recipient, owner),
		BurnAmount:       burn,
		MinSettlementOut: minOut,
		Paths:            req.Paths,
	})
	if err != nil {
		fail(c, "Failed to redeem to settlement", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Rebalance 触发再平衡，任何人都可调用，间隔未到返回 425
func (h *Handler) Rebalance(c *gin.Context) {
	rec, err := h.cmd.Rebalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, "Failed to rebalance", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// --- 管理 ---

// ConstituentRequest 成分资产定义
type ConstituentRequest struct {
	Asset        string `json:"asset" binding:"required"`
	Decimals     int32  `json:"decimals"`
	SeedPerShare string `json:"seed_per_share"`
	Weight       uint32 `json:"weight"`
	PriceFeed    string `json:"price_feed"`
}

func (r ConstituentRequest) toDomain() (domain.Constituent, bool) {
	seed := decimal.Zero
	if r.SeedPerShare != "" {
		var ok bool
		if seed, ok = parseAmount(r.SeedPerShare); !ok {
			return domain.Constituent{}, false
		}
	}
	return domain.Constituent{
		Asset:        r.Asset,
		Decimals:     r.Decimals,
		SeedPerShare: seed,
		Weight:       r.Weight,
		PriceFeed:    r.PriceFeed,
	}, true
}

// CreateFundRequest 创建基金请求
type CreateFundRequest struct {
	FundID            string               `json:"fund_id" binding:"required"`
	Name              string               `json:"name" binding:"required"`
	Symbol            string               `json:"symbol" binding:"required"`
	SettlementAsset   string               `json:"settlement_asset" binding:"required"`
	FeeRecipient      string               `json:"fee_recipient" binding:"required"`
	InvestFee         uint32               `json:"invest_fee"`
	RedeemFee         uint32               `json:"redeem_fee"`
	MinMintAmount     string               `json:"min_mint_amount"`
	RebalanceInterval string               `json:"rebalance_interval"`
	RebalanceDeviance uint32               `json:"rebalance_deviance"`
	Constituents      []ConstituentRequest `json:"constituents" binding:"required,dive"`
}

// CreateFund 创建基金
func (h *Handler) CreateFund(c *gin.Context) {
	if _, ok := caller(c); !ok {
		return
	}
	var req CreateFundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cmd := application.CreateFundCommand{
		FundID:            req.FundID,
		Name:              req.Name,
		Symbol:            req.Symbol,
		SettlementAsset:   req.SettlementAsset,
		FeeRecipient:      req.FeeRecipient,
		InvestFee:         req.InvestFee,
		RedeemFee:         req.RedeemFee,
		MinMintAmount:     decimal.Zero,
		RebalanceDeviance: req.RebalanceDeviance,
	}
	if req.MinMintAmount != "" {
		v, ok := parseAmount(req.MinMintAmount)
		if !ok {
			badRequest(c, "invalid min_mint_amount")
			return
		}
		cmd.MinMintAmount = v
	}
	if req.RebalanceInterval != "" {
		d, err := time.ParseDuration(req.RebalanceInterval)
		if err != nil {
			badRequest(c, "invalid rebalance_interval")
			return
		}
		cmd.RebalanceInterval = d
	}
	for _, cr := range req.Constituents {
		con, ok := cr.toDomain()
		if !ok {
			badRequest(c, "invalid seed_per_share for "+cr.Asset)
			return
		}
		cmd.Constituents = append(cmd.Constituents, con)
	}

	fund, err := h.cmd.CreateFund(c.Request.Context(), cmd)
	if err != nil {
		fail(c, "Failed to create fund", err)
		return
	}
	c.JSON(http.StatusCreated, fund)
}

// UpdateWeightsRequest 权重更新请求
type UpdateWeightsRequest struct {
	Weights map[string]uint32 `json:"weights" binding:"required"`
}

// UpdateWeights 更新目标权重
func (h *Handler) UpdateWeights(c *gin.Context) {
	var req UpdateWeightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.respondFund(c, "Failed to update weights")(h.cmd.UpdateWeights(c.Request.Context(), c.Param("id"), req.Weights))
}

// UpdateFeesRequest 费率更新请求
type UpdateFeesRequest struct {
	InvestFee uint32 `json:"invest_fee"`
	RedeemFee uint32 `json:"redeem_fee"`
}

// UpdateFees 更新费率
func (h *Handler) UpdateFees(c *gin.Context) {
	var req UpdateFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.respondFund(c, "Failed to update fees")(h.cmd.UpdateFees(c.Request.Context(), c.Param("id"), req.InvestFee, req.RedeemFee))
}

// SetPriceFeedRequest 价格源设置请求
type SetPriceFeedRequest struct {
	Asset string `json:"asset" binding:"required"`
	Feed  string `json:"feed" binding:"required"`
}

// SetPriceFeed 设置价格源
func (h *Handler) SetPriceFeed(c *gin.Context) {
	var req SetPriceFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.respondFund(c, "Failed to set price feed")(h.cmd.SetPriceFeed(c.Request.Context(), c.Param("id"), req.Asset, req.Feed))
}

// AddAsset 追加成分资产
func (h *Handler) AddAsset(c *gin.Context) {
	var req ConstituentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	con, ok := req.toDomain()
	if !ok {
		badRequest(c, "invalid seed_per_share")
		return
	}
	h.respondFund(c, "Failed to add asset")(h.cmd.AddAsset(c.Request.Context(), c.Param("id"), con))
}

// RemoveAsset 移除成分资产
func (h *Handler) RemoveAsset(c *gin.Context) {
	h.respondFund(c, "Failed to remove asset")(h.cmd.RemoveAsset(c.Request.Context(), c.Param("id"), c.Param("asset")))
}

// RebalanceParamsRequest 再平衡参数请求，Interval 为 Go duration 字符串
type RebalanceParamsRequest struct {
	Interval string `json:"interval" binding:"required"`
	Deviance uint32 `json:"deviance"`
}

// SetRebalanceParams 设置再平衡参数
func (h *Handler) SetRebalanceParams(c *gin.Context) {
	var req RebalanceParamsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	interval, err := time.ParseDuration(req.Interval)
	if err != nil {
		badRequest(c, "invalid interval")
		return
	}
	h.respondFund(c, "Failed to set rebalance params")(h.cmd.SetRebalanceParams(c.Request.Context(), c.Param("id"), interval, req.Deviance))
}

// AmountRequest 单一金额请求
type AmountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// SetMinMintAmount 设置最小申购份额
func (h *Handler) SetMinMintAmount(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		badRequest(c, "invalid amount")
		return
	}
	h.respondFund(c, "Failed to set min mint amount")(h.cmd.SetMinMintAmount(c.Request.Context(), c.Param("id"), amount))
}

// FeeRecipientRequest 费用接收账户请求
type FeeRecipientRequest struct {
	Account string `json:"account" binding:"required"`
}

// SetFeeRecipient 设置费用接收账户
func (h *Handler) SetFeeRecipient(c *gin.Context) {
	var req FeeRecipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.respondFund(c, "Failed to set fee recipient")(h.cmd.SetFeeRecipient(c.Request.Context(), c.Param("id"), req.Account))
}

func (h *Handler) respondFund(c *gin.Context, msg string) func(*domain.Fund, error) {
	return func(fund *domain.Fund, err error) {
		if err != nil {
			fail(c, msg, err)
			return
		}
		c.JSON(http.StatusOK, fund)
	}
}

// --- 账本 ---

// ApproveRequest 授权请求，owner 为调用方
type ApproveRequest struct {
	Token   string `json:"token" binding:"required"`
	Spender string `json:"spender" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

// Approve 授权 spender 划转调用方资产
func (h *Handler) Approve(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		badRequest(c, "invalid amount")
		return
	}
	if err := h.cmd.Approve(c.Request.Context(), application.ApproveCommand{
		Token: req.Token, Owner: owner, Spender: req.Spender, Amount: amount,
	}); err != nil {
		fail(c, "Failed to approve", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Allowance 查询授权额度
func (h *Handler) Allowance(c *gin.Context) {
	owner, spender := c.Query("owner"), c.Query("spender")
	if owner == "" || spender == "" {
		badRequest(c, "owner and spender are required")
		return
	}
	amount, err := h.query.Allowance(c.Request.Context(), c.Param("token"), owner, spender)
	if err != nil {
		fail(c, "Failed to get allowance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": c.Param("token"), "owner": owner, "spender": spender, "amount": amount})
}

// Balance 查询余额
func (h *Handler) Balance(c *gin.Context) {
	amount, err := h.query.Balance(c.Request.Context(), c.Param("token"), c.Param("account"))
	if err != nil {
		fail(c, "Failed to get balance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": c.Param("token"), "account": c.Param("account"), "amount": amount})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
