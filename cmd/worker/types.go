package main

// workerMessage is the payload sent from API -> SQS -> Worker.
type workerMessage struct {
	OrderID        string `json:"order_id"`
	CartID         string `json:"cart_id"`
	Kind           string `json:"kind"`
	IdempotencyKey string `json:"idempotency_key"`
}
