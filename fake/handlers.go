package fake

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chimerakang/changedesk"
	"github.com/chimerakang/changedesk/token"
)

const keyClaims = "changedesk_claims"

type currency struct {
	ID       int64   `json:"id"`
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Symbol   string  `json:"symbol"`
	BuyRate  float64 `json:"buy_rate"`
	SellRate float64 `json:"sell_rate"`
	IsActive bool    `json:"is_active"`
}

type balance struct {
	CurrencyCode string `json:"currency_code"`
	Amount       string `json:"amount"`
}

type register struct {
	ID              int64     `json:"id"`
	CashierID       int64     `json:"cashier_id"`
	CashierName     string    `json:"cashier_name"`
	Status          string    `json:"status"`
	OpenedAt        string    `json:"opened_at"`
	ClosedAt        string    `json:"closed_at,omitempty"`
	InitialBalances []balance `json:"initialBalances"`
	CurrentBalances []balance `json:"currentBalances"`
}

type transaction struct {
	ID             int64          `json:"id"`
	ReceiptNumber  string         `json:"receipt_number"`
	Type           string         `json:"type"`
	CashRegisterID int64          `json:"cash_register_id"`
	CurrencyCode   string         `json:"currency_code"`
	Amount         string         `json:"amount"`
	Rate           string         `json:"rate"`
	LocalAmount    string         `json:"local_amount"`
	ClientInfo     map[string]any `json:"client_info,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	CashierName    string         `json:"cashier_name"`
	Timestamp      string         `json:"timestamp"`
}

type supply struct {
	ID             int64  `json:"id"`
	SupplyNumber   string `json:"supply_number"`
	CashRegisterID int64  `json:"cash_register_id"`
	CurrencyCode   string `json:"currency_code"`
	Amount         string `json:"amount"`
	Source         string `json:"source"`
	Reference      string `json:"reference,omitempty"`
	Notes          string `json:"notes,omitempty"`
	AttachmentURL  string `json:"attachment_url,omitempty"`
	Timestamp      string `json:"timestamp"`
}

type balanceInput struct {
	CurrencyCode string  `json:"currencyCode"`
	Amount       float64 `json:"amount"`
}

func decimal(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func (s *Server) routes() {
	s.engine.POST("/api/auth", s.login)

	g := s.engine.Group("/api", s.auth)
	g.GET("/currencies", s.listCurrencies)
	g.POST("/currencies", requireAdmin, s.createCurrency)
	g.PUT("/currencies/:id", requireAdmin, s.updateCurrency)

	g.GET("/transactions", s.listTransactions)
	g.POST("/transactions", s.createTransaction)

	g.GET("/cash-registers", s.listRegisters)
	g.POST("/cash-registers", s.openRegister)
	g.POST("/cash-registers/:id/close", s.closeRegister)

	g.GET("/supply", s.listSupplies)
	g.POST("/supply", s.createSupply)

	g.GET("/users", requireAdmin, s.listUsers)
	g.POST("/users", requireAdmin, s.createUser)
	g.PUT("/users/:id", requireAdmin, s.updateUser)
	g.DELETE("/users/:id", requireAdmin, s.deleteUser)

	g.GET("/reports", requireRoles(changedesk.RoleAdmin, changedesk.RoleSupervisor), s.report)
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nom d'utilisateur et mot de passe requis"})
		return
	}

	s.mu.RLock()
	var found *userEntry
	for _, u := range s.users {
		if u.user.Username == req.Username {
			found = u
			break
		}
	}
	s.mu.RUnlock()
	if found == nil || found.password != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tok, err := s.IssueToken(found.user.ID, s.now().Add(s.ttl))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": tok,
		"user": gin.H{
			"id":       found.user.ID,
			"username": found.user.Username,
			"role":     found.user.Role,
			"fullName": found.user.FullName,
		},
	})
}

// auth verifies the bearer token and stores its claims in the context.
func (s *Server) auth(c *gin.Context) {
	raw := extractBearerToken(c.Request)
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token manquant"})
		return
	}
	claims, err := s.verify(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token invalide ou expiré"})
		return
	}
	c.Set(keyClaims, claims)
	c.Next()
}

func requireRoles(roles ...changedesk.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := getClaims(c)
		for _, r := range roles {
			if claims != nil && claims.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Accès refusé"})
	}
}

var requireAdmin = requireRoles(changedesk.RoleAdmin)

func getClaims(c *gin.Context) *token.Claims {
	v, _ := c.Get(keyClaims)
	cl, _ := v.(*token.Claims)
	return cl
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Identifiant invalide"})
		return 0, false
	}
	return id, true
}

// --- currencies ---

func (s *Server) listCurrencies(c *gin.Context) {
	s.mu.RLock()
	out := make([]currency, 0, len(s.currencies))
	for _, cur := range s.currencies {
		out = append(out, *cur)
	}
	s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"currencies": out})
}

type currencyInput struct {
	Code     *string  `json:"code"`
	Name     *string  `json:"name"`
	Symbol   *string  `json:"symbol"`
	BuyRate  *float64 `json:"buyRate"`
	SellRate *float64 `json:"sellRate"`
	IsActive *bool    `json:"isActive"`
}

func (in currencyInput) apply(cur *currency) {
	if in.Code != nil {
		cur.Code = *in.Code
	}
	if in.Name != nil {
		cur.Name = *in.Name
	}
	if in.Symbol != nil {
		cur.Symbol = *in.Symbol
	}
	if in.BuyRate != nil {
		cur.BuyRate = *in.BuyRate
	}
	if in.SellRate != nil {
		cur.SellRate = *in.SellRate
	}
	if in.IsActive != nil {
		cur.IsActive = *in.IsActive
	}
}

func (s *Server) createCurrency(c *gin.Context) {
	var in currencyInput
	if err := c.ShouldBindJSON(&in); err != nil || in.Code == nil || *in.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Code de devise requis"})
		return
	}
	s.mu.Lock()
	cur := &currency{ID: s.id(), IsActive: true}
	in.apply(cur)
	s.currencies = append(s.currencies, cur)
	out := *cur
	s.mu.Unlock()
	c.JSON(http.StatusCreated, gin.H{"currency": out})
}

func (s *Server) updateCurrency(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var in currencyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.currencies {
		if cur.ID == id {
			in.apply(cur)
			c.JSON(http.StatusOK, gin.H{"currency": *cur})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Devise non trouvée"})
}

// --- transactions ---

func (s *Server) listTransactions(c *gin.Context) {
	regID, _ := strconv.ParseInt(c.Query("cashRegisterId"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))
	typ, code := c.Query("type"), c.Query("currencyCode")

	s.mu.RLock()
	out := make([]transaction, 0)
	for i := len(s.transactions) - 1; i >= 0; i-- {
		t := s.transactions[i]
		if (regID > 0 && t.CashRegisterID != regID) || (typ != "" && t.Type != typ) || (code != "" && t.CurrencyCode != code) {
			continue
		}
		out = append(out, *t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

func (s *Server) createTransaction(c *gin.Context) {
	var in struct {
		Type           string         `json:"type"`
		CashRegisterID int64          `json:"cashRegisterId"`
		CurrencyCode   string         `json:"currencyCode"`
		Amount         float64        `json:"amount"`
		Rate           float64        `json:"rate"`
		LocalAmount    float64        `json:"localAmount"`
		ClientInfo     map[string]any `json:"clientInfo"`
		Notes          string         `json:"notes"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || (in.Type != "buy" && in.Type != "sell") || in.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Transaction invalide"})
		return
	}
	claims := getClaims(c)

	s.mu.Lock()
	id := s.id()
	t := &transaction{
		ID:             id,
		ReceiptNumber:  fmt.Sprintf("TX-%06d", id),
		Type:           in.Type,
		CashRegisterID: in.CashRegisterID,
		CurrencyCode:   in.CurrencyCode,
		Amount:         decimal(in.Amount),
		Rate:           decimal(in.Rate),
		LocalAmount:    decimal(in.LocalAmount),
		ClientInfo:     in.ClientInfo,
		Notes:          in.Notes,
		CashierName:    claims.Username,
		Timestamp:      s.now().Format(time.RFC3339),
	}
	s.transactions = append(s.transactions, t)
	out := *t
	s.mu.Unlock()
	c.JSON(http.StatusCreated, gin.H{"transaction": out})
}

// --- cash registers ---

func (s *Server) listRegisters(c *gin.Context) {
	status := c.Query("status")
	s.mu.RLock()
	out := make([]register, 0)
	for _, r := range s.registers {
		if status == "" || r.Status == status {
			out = append(out, *r)
		}
	}
	s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"cashRegisters": out})
}

func (s *Server) openRegister(c *gin.Context) {
	var in struct {
		InitialBalances []balanceInput `json:"initialBalances"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || len(in.InitialBalances) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Soldes initiaux requis"})
		return
	}
	claims := getClaims(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.registers {
		if r.CashierID == claims.UserID && r.Status == "open" {
			c.JSON(http.StatusConflict, gin.H{"error": "Une caisse est déjà ouverte"})
			return
		}
	}
	balances := make([]balance, 0, len(in.InitialBalances))
	for _, b := range in.InitialBalances {
		balances = append(balances, balance{CurrencyCode: b.CurrencyCode, Amount: decimal(b.Amount)})
	}
	name := claims.FullName
	if name == "" {
		name = claims.Username
	}
	r := &register{
		ID:              s.id(),
		CashierID:       claims.UserID,
		CashierName:     name,
		Status:          "open",
		OpenedAt:        s.now().Format(time.RFC3339),
		InitialBalances: balances,
		CurrentBalances: append([]balance(nil), balances...),
	}
	s.registers = append(s.registers, r)
	c.JSON(http.StatusCreated, gin.H{"cashRegister": *r})
}

func (s *Server) closeRegister(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var in struct {
		FinalBalances []balanceInput `json:"finalBalances"`
		Notes         string         `json:"notes"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || len(in.FinalBalances) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Soldes finaux requis"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var r *register
	for _, candidate := range s.registers {
		if candidate.ID == id && candidate.Status == "open" {
			r = candidate
		}
	}
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Caisse non trouvée"})
		return
	}

	expected := make(map[string]float64, len(r.CurrentBalances))
	for _, b := range r.CurrentBalances {
		expected[b.CurrencyCode], _ = strconv.ParseFloat(b.Amount, 64)
	}
	diffs := make([]gin.H, 0, len(in.FinalBalances))
	for _, b := range in.FinalBalances {
		diffs = append(diffs, gin.H{
			"currencyCode": b.CurrencyCode,
			"expected":     expected[b.CurrencyCode],
			"actual":       b.Amount,
			"difference":   b.Amount - expected[b.CurrencyCode],
		})
	}
	r.Status = "closed"
	r.ClosedAt = s.now().Format(time.RFC3339)
	c.JSON(http.StatusOK, gin.H{"message": "Caisse fermée", "differences": diffs})
}

// --- supplies ---

func (s *Server) listSupplies(c *gin.Context) {
	regID, _ := strconv.ParseInt(c.Query("cashRegisterId"), 10, 64)
	s.mu.RLock()
	out := make([]supply, 0)
	for _, sp := range s.supplies {
		if regID == 0 || sp.CashRegisterID == regID {
			out = append(out, *sp)
		}
	}
	s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"supplies": out})
}

func (s *Server) createSupply(c *gin.Context) {
	var in struct {
		CashRegisterID int64   `json:"cashRegisterId"`
		CurrencyCode   string  `json:"currencyCode"`
		Amount         float64 `json:"amount"`
		Source         string  `json:"source"`
		Reference      string  `json:"reference"`
		Notes          string  `json:"notes"`
		AttachmentURL  string  `json:"attachmentUrl"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || in.Amount <= 0 || in.CurrencyCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Approvisionnement invalide"})
		return
	}
	s.mu.Lock()
	id := s.id()
	sp := &supply{
		ID:             id,
		SupplyNumber:   fmt.Sprintf("SUP-%06d", id),
		CashRegisterID: in.CashRegisterID,
		CurrencyCode:   in.CurrencyCode,
		Amount:         decimal(in.Amount),
		Source:         in.Source,
		Reference:      in.Reference,
		Notes:          in.Notes,
		AttachmentURL:  in.AttachmentURL,
		Timestamp:      s.now().Format(time.RFC3339),
	}
	s.supplies = append(s.supplies, sp)
	out := *sp
	s.mu.Unlock()
	c.JSON(http.StatusCreated, gin.H{"supply": out})
}

// --- users ---

func userJSON(u changedesk.User) gin.H {
	return gin.H{
		"id":         u.ID,
		"username":   u.Username,
		"role":       u.Role,
		"full_name":  u.FullName,
		"created_at": u.CreatedAt,
	}
}

func (s *Server) listUsers(c *gin.Context) {
	s.mu.RLock()
	out := make([]gin.H, 0, len(s.users))
	for id := int64(1); id < s.nextID; id++ {
		if u, ok := s.users[id]; ok {
			out = append(out, userJSON(u.user))
		}
	}
	s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"users": out})
}

type userInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

func (s *Server) createUser(c *gin.Context) {
	var in userInput
	if err := c.ShouldBindJSON(&in); err != nil || in.Username == "" || in.Password == "" || !changedesk.Role(in.Role).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Utilisateur invalide"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.user.Username == in.Username {
			c.JSON(http.StatusConflict, gin.H{"error": "Nom d'utilisateur déjà utilisé"})
			return
		}
	}
	u := &userEntry{
		user: changedesk.User{
			ID:        s.id(),
			Username:  in.Username,
			Role:      changedesk.Role(in.Role),
			FullName:  in.FullName,
			CreatedAt: s.now().Format(time.RFC3339),
		},
		password: in.Password,
	}
	s.users[u.user.ID] = u
	c.JSON(http.StatusCreated, gin.H{"user": userJSON(u.user)})
}

func (s *Server) updateUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var in userInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.users[id]
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Utilisateur non trouvé"})
		return
	}
	if in.FullName != "" {
		u.user.FullName = in.FullName
	}
	if in.Role != "" {
		u.user.Role = changedesk.Role(in.Role)
	}
	if in.Password != "" {
		u.password = in.Password
	}
	c.JSON(http.StatusOK, gin.H{"user": userJSON(u.user)})
}

func (s *Server) deleteUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if claims := getClaims(c); claims != nil && claims.UserID == id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Impossible de supprimer votre propre compte"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.users[id]; !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Utilisateur non trouvé"})
		return
	}
	delete(s.users, id)
	c.JSON(http.StatusOK, gin.H{"message": "Utilisateur supprimé"})
}

// --- reports ---

// report echoes the filters with per-currency record counts.
func (s *Server) report(c *gin.Context) {
	typ := c.DefaultQuery("type", "transactions")
	totals := gin.H{}

	s.mu.RLock()
	switch typ {
	case "transactions":
		for _, t := range s.transactions {
			entry, _ := totals[t.CurrencyCode].(gin.H)
			if entry == nil {
				entry = gin.H{"buys": 0, "sells": 0}
				totals[t.CurrencyCode] = entry
			}
			key := "buys"
			if t.Type == "sell" {
				key = "sells"
			}
			entry[key] = entry[key].(int) + 1
		}
	case "supplies":
		for _, sp := range s.supplies {
			entry, _ := totals[sp.CurrencyCode].(gin.H)
			if entry == nil {
				entry = gin.H{"internal": 0, "external": 0}
				totals[sp.CurrencyCode] = entry
			}
			if _, ok := entry[sp.Source]; ok {
				entry[sp.Source] = entry[sp.Source].(int) + 1
			}
		}
	}
	s.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"type":         typ,
		"startDate":    c.Query("startDate"),
		"endDate":      c.Query("endDate"),
		"currencyCode": c.Query("currencyCode"),
		"totals":       totals,
	})
}
