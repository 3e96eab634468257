package models

// AuctionStatus is the status of a live auction room.
type AuctionStatus string

const (
	AuctionStatusIdle   AuctionStatus = "IDLE"
	AuctionStatusActive AuctionStatus = "ACTIVE"
	AuctionStatusPaused AuctionStatus = "PAUSED"
)

// PauseReason explains why a room is paused.
type PauseReason string

const (
	PauseReasonNone              PauseReason = ""
	PauseReasonManual            PauseReason = "MANUAL"
	PauseReasonAdminDisconnected PauseReason = "ADMIN_DISCONNECTED"
)

// AuditAction is the action column of auction_logs.
type AuditAction string

const (
	AuditActionBid         AuditAction = "BID"
	AuditActionSold        AuditAction = "SOLD"
	AuditActionSkip        AuditAction = "SKIP"
	AuditActionRollback    AuditAction = "ROLLBACK"
	AuditActionPause       AuditAction = "PAUSE"
	AuditActionResume      AuditAction = "RESUME"
	AuditActionStartPlayer AuditAction = "START_PLAYER"
)
