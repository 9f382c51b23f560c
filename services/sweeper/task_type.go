package sweeper

const (
	TypeOrderExpire     = "order:expire"
	TypeOrderAutoCancel = "order:auto_cancel"
	TypeCatalogRefresh  = "catalog:refresh"
)

// TransitionPayload carries one stale order through the queue.
type TransitionPayload struct {
	OrderID string `json:"order_id"`
}
