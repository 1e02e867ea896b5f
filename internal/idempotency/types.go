package idempotency

import "time"

// RecoveryPoint tags how far a keyed request has progressed. The store only
// knows the lifecycle endpoints; the workflow that drives a key defines its own
// intermediate points.
type RecoveryPoint string

const (
	// RecoveryPointStarted is the point every freshly created key holds.
	RecoveryPointStarted RecoveryPoint = "started"
	// RecoveryPointFinished means a final response is cached on the key.
	RecoveryPointFinished RecoveryPoint = "finished"
	// RecoveryPointFailed means a terminal error response is cached on the key.
	RecoveryPointFailed RecoveryPoint = "failed"
)

// Terminal reports whether a key at this point replays its cached response
// instead of executing anything.
func (rp RecoveryPoint) Terminal() bool {
	return rp == RecoveryPointFinished || rp == RecoveryPointFailed
}

// Key is the shape persisted in the idempotency DynamoDB table, one record per
// logical request.
type Key struct {
	IdempotencyKey string                 `dynamodbav:"idempotency_key"` // PK
	RequestMethod  string                 `dynamodbav:"request_method"`
	RequestPath    string                 `dynamodbav:"request_path"`
	RequestParams  map[string]interface{} `dynamodbav:"request_params,omitempty"`
	RequestHash    string                 `dynamodbav:"request_hash,omitempty"` // fingerprint for collision detection
	RecoveryPoint  RecoveryPoint          `dynamodbav:"recovery_point"`
	ResponseCode   int                    `dynamodbav:"response_code,omitempty"`   // set only once terminal
	ResponseBody   string                 `dynamodbav:"response_body,omitempty"`   // JSON; small responses only
	LockedAt       *time.Time             `dynamodbav:"locked_at,omitempty"`       // advisory lock marker
	CreatedAt      time.Time              `dynamodbav:"created_at"`
	UpdatedAt      time.Time              `dynamodbav:"updated_at"`
	ExpiresAt      int64                  `dynamodbav:"expires_at"` // TTL epoch seconds
}

// Patch carries the mutation StageAdvance persists alongside a workflow step.
type Patch struct {
	RecoveryPoint RecoveryPoint
	ResponseCode  int    // persisted only when RecoveryPoint is terminal
	ResponseBody  string // persisted only when RecoveryPoint is terminal
}
