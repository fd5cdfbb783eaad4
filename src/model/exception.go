package model

import "time"

// Exception is a failure worth keeping after the log has rotated: broker
// failures, loop panics, stranded positions.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Service string `gorm:"size:100;index" json:"service"` // e.g. "fxscheduler"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "lifecycle"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "Exit"

	Symbol      string `gorm:"size:20;index" json:"symbol,omitempty"`
	TradeNumber string `gorm:"size:50" json:"trade_number,omitempty"`

	Message string `gorm:"type:text" json:"message"`
	Stack   string `gorm:"type:text" json:"stack"`

	Level string `gorm:"size:20;index" json:"level"` // info | warn | error | critical

	// Context holds extra fields as JSON text.
	Context string `gorm:"type:text" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Exception) TableName() string {
	return "exceptions"
}
