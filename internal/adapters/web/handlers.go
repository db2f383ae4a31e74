package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-ledger/internal/app"
	"stock-ledger/internal/core"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc app.ApplicationService
	log zerolog.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins string, logger zerolog.Logger) http.Handler {
	h := &Handler{svc: svc, log: logger}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recoverer(logger))
	r.Use(CORS(allowedOrigins))
	r.Use(RequestBodyLimit(1 << 20)) // 1 MB

	r.Get("/api/health", h.health)

	// Movements
	r.Post("/api/movements", h.recordMovement)
	r.Get("/api/movements", h.listMovements)
	r.Get("/api/movements/{id}", h.getMovement)
	r.Post("/api/movements/{id}/status", h.transitionMovement)

	// Stock levels
	r.Get("/api/stock-levels", h.getStockLevel)

	// Reservations
	r.Post("/api/reservations", h.reserve)
	r.Post("/api/reservations/release", h.releaseReservations)
	r.Get("/api/reservations", h.listReservations)

	// Alerts
	r.Get("/api/alerts", h.listAlerts)
	r.Get("/api/alerts/events", h.alertEvents)
	r.Post("/api/alerts/{id}/acknowledge", h.acknowledgeAlert)
	r.Post("/api/alerts/{id}/snooze", h.snoozeAlert)

	// Thresholds
	r.Get("/api/thresholds", h.listThresholds)
	r.Post("/api/thresholds", h.createThreshold)
	r.Put("/api/thresholds/{id}", h.updateThreshold)
	r.Delete("/api/thresholds/{id}", h.deleteThreshold)

	// Purchase orders
	r.Post("/api/purchase-orders", h.createPurchaseOrder)
	r.Get("/api/purchase-orders", h.listPurchaseOrders)
	r.Get("/api/purchase-orders/{id}", h.getPurchaseOrder)
	r.Post("/api/purchase-orders/{id}/approve", h.approvePurchaseOrder)
	r.Post("/api/purchase-orders/{id}/cancel", h.cancelPurchaseOrder)
	r.Post("/api/purchase-orders/{id}/receive", h.receivePurchaseOrder)

	// Catalog and locations
	r.Post("/api/products", h.createProduct)
	r.Get("/api/products", h.listProducts)
	r.Post("/api/warehouses", h.createWarehouse)
	r.Get("/api/warehouses", h.listWarehouses)
	r.Get("/api/warehouses/{id}", h.getWarehouse)
	r.Put("/api/warehouses/{id}", h.updateWarehouse)
	r.Delete("/api/warehouses/{id}", h.deleteWarehouse)
	r.Post("/api/warehouses/{id}/zones", h.createZone)
	r.Get("/api/warehouses/{id}/zones", h.listZones)
	r.Delete("/api/zones/{id}", h.deleteZone)
	r.Post("/api/zones/{id}/positions", h.createPosition)
	r.Get("/api/zones/{id}/positions", h.listPositions)
	r.Delete("/api/positions/{id}", h.deletePosition)

	return r
}

// actor returns the acting operator from the X-Actor header. Identity is
// an upstream concern; the ledger only records who the caller claims.
func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "system"
}

func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, "invalid request body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}

func queryUUID(r *http.Request, key string) (*uuid.UUID, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, true
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, false
	}
	return &id, true
}

// ── Health ───────────────────────────────────────────────────────────────────

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Health(r.Context()); err != nil {
		writeError(w, r, "store unreachable", core.CodeStorageTimeout, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ── Movements ────────────────────────────────────────────────────────────────

func (h *Handler) recordMovement(w http.ResponseWriter, r *http.Request) {
	var in core.MovementInput
	if !decodeBody(w, r, &in) {
		return
	}
	if in.CreatedBy == "" {
		in.CreatedBy = actor(r)
	}
	m, err := h.svc.RecordMovement(r.Context(), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	var f core.MovementFilter
	var ok bool
	if f.ProductID, ok = queryUUID(r, "product_id"); !ok {
		writeError(w, r, "invalid product_id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if f.WarehouseID, ok = queryUUID(r, "warehouse_id"); !ok {
		writeError(w, r, "invalid warehouse_id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if v := r.URL.Query().Get("type"); v != "" {
		t := core.MovementType(v)
		f.Type = &t
	}
	if v := r.URL.Query().Get("status"); v != "" {
		s := core.MovementStatus(v)
		f.Status = &s
	}
	f.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	f.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	movements, err := h.svc.ListMovements(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) getMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid movement id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	m, err := h.svc.GetMovement(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) transitionMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid movement id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var body struct {
		Status core.MovementStatus `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	m, err := h.svc.TransitionMovement(r.Context(), id, body.Status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ── Stock levels ─────────────────────────────────────────────────────────────

func (h *Handler) getStockLevel(w http.ResponseWriter, r *http.Request) {
	productID, ok := queryUUID(r, "product_id")
	if !ok || productID == nil {
		writeError(w, r, "product_id is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	warehouseID, ok := queryUUID(r, "warehouse_id")
	if !ok || warehouseID == nil {
		writeError(w, r, "warehouse_id is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	positionID, ok := queryUUID(r, "position_id")
	if !ok {
		writeError(w, r, "invalid position_id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	level, err := h.svc.GetStockLevel(r.Context(), *productID, *warehouseID, positionID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, level)
}

// ── Reservations ─────────────────────────────────────────────────────────────

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductID   uuid.UUID       `json:"product_id"`
		WarehouseID uuid.UUID       `json:"warehouse_id"`
		Quantity    decimal.Decimal `json:"quantity"`
		OrderRef    string          `json:"order_ref"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := h.svc.Reserve(r.Context(), body.ProductID, body.WarehouseID, body.Quantity, body.OrderRef)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) releaseReservations(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrderRef string `json:"order_ref"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.OrderRef == "" {
		writeError(w, r, "order_ref is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	released, err := h.svc.ReleaseReservations(r.Context(), body.OrderRef)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"released": released})
}

func (h *Handler) listReservations(w http.ResponseWriter, r *http.Request) {
	productID, ok := queryUUID(r, "product_id")
	if !ok || productID == nil {
		writeError(w, r, "product_id is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	warehouseID, ok := queryUUID(r, "warehouse_id")
	if !ok || warehouseID == nil {
		writeError(w, r, "warehouse_id is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	reservations, err := h.svc.ActiveReservations(r.Context(), *productID, *warehouseID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": reservations})
}

// ── Alerts ───────────────────────────────────────────────────────────────────

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	var f core.AlertFilter
	var ok bool
	if f.WarehouseID, ok = queryUUID(r, "warehouse_id"); !ok {
		writeError(w, r, "invalid warehouse_id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if v := r.URL.Query().Get("severity"); v != "" {
		s := core.AlertSeverity(v)
		f.Severity = &s
	}
	if v := r.URL.Query().Get("status"); v != "" {
		s := core.AlertStatus(v)
		f.Status = &s
	}
	alerts, err := h.svc.ListAlerts(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *Handler) alertEvents(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, map[string]any{"events": h.svc.RecentAlertEvents(n)})
}

func (h *Handler) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid alert id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	alert, err := h.svc.AcknowledgeAlert(r.Context(), id, actor(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) snoozeAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid alert id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var body struct {
		Until time.Time `json:"until"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	alert, err := h.svc.SnoozeAlert(r.Context(), id, body.Until)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// ── Thresholds ───────────────────────────────────────────────────────────────

func (h *Handler) listThresholds(w http.ResponseWriter, r *http.Request) {
	thresholds, err := h.svc.ListThresholds(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thresholds": thresholds})
}

func (h *Handler) createThreshold(w http.ResponseWriter, r *http.Request) {
	var t core.AlertThreshold
	if !decodeBody(w, r, &t) {
		return
	}
	created, err := h.svc.CreateThreshold(r.Context(), t)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateThreshold(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid threshold id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var t core.AlertThreshold
	if !decodeBody(w, r, &t) {
		return
	}
	t.ID = id
	updated, err := h.svc.UpdateThreshold(r.Context(), t)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteThreshold(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid threshold id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeleteThreshold(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Purchase orders ──────────────────────────────────────────────────────────

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var po core.PurchaseOrder
	if !decodeBody(w, r, &po) {
		return
	}
	if po.CreatedBy == "" {
		po.CreatedBy = actor(r)
	}
	created, err := h.svc.CreatePurchaseOrder(r.Context(), po)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	var status *core.PurchaseOrderStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := core.PurchaseOrderStatus(v)
		status = &s
	}
	orders, err := h.svc.ListPurchaseOrders(r.Context(), status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase_orders": orders})
}

func (h *Handler) getPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid purchase order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	po, err := h.svc.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, po)
}

func (h *Handler) approvePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid purchase order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	po, err := h.svc.ApprovePurchaseOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, po)
}

func (h *Handler) cancelPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid purchase order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	po, err := h.svc.CancelPurchaseOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, po)
}

func (h *Handler) receivePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid purchase order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var body struct {
		Receipts []core.LineReceipt `json:"receipts"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	po, err := h.svc.ReceivePurchaseOrder(r.Context(), id, body.Receipts, actor(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, po)
}

// ── Catalog and locations ────────────────────────────────────────────────────

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var p core.Product
	if !decodeBody(w, r, &p) {
		return
	}
	created, err := h.svc.CreateProduct(r.Context(), p)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.ListProducts(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var wh core.Warehouse
	if !decodeBody(w, r, &wh) {
		return
	}
	created, err := h.svc.CreateWarehouse(r.Context(), wh)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.svc.ListWarehouses(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"warehouses": warehouses})
}

func (h *Handler) getWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid warehouse id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	wh, err := h.svc.GetWarehouse(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

func (h *Handler) updateWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid warehouse id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var wh core.Warehouse
	if !decodeBody(w, r, &wh) {
		return
	}
	wh.ID = id
	updated, err := h.svc.UpdateWarehouse(r.Context(), wh)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid warehouse id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeleteWarehouse(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createZone(w http.ResponseWriter, r *http.Request) {
	warehouseID, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid warehouse id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var z core.Zone
	if !decodeBody(w, r, &z) {
		return
	}
	z.WarehouseID = warehouseID
	created, err := h.svc.CreateZone(r.Context(), z)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listZones(w http.ResponseWriter, r *http.Request) {
	warehouseID, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid warehouse id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	zones, err := h.svc.ListZones(r.Context(), warehouseID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": zones})
}

func (h *Handler) deleteZone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid zone id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeleteZone(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createPosition(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid zone id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	var p core.Position
	if !decodeBody(w, r, &p) {
		return
	}
	p.ZoneID = zoneID
	created, err := h.svc.CreatePosition(r.Context(), p)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listPositions(w http.ResponseWriter, r *http.Request) {
	zoneID, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid zone id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	positions, err := h.svc.ListPositions(r.Context(), zoneID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

func (h *Handler) deletePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, "invalid position id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeletePosition(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
