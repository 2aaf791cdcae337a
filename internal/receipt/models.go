package receipt

import (
	"time"
)

// Receipt is the durable record of a completed sale, generated once the
// payment is confirmed.
type Receipt struct {
	ID          string    `bson:"_id" json:"id"`
	PaymentID   string    `bson:"payment_id" json:"payment_id"`
	Email       string    `bson:"email" json:"email"`
	Name        string    `bson:"name" json:"name"`
	Amount      int64     `bson:"amount" json:"amount"`
	Currency    string    `bson:"currency" json:"currency"`
	Method      string    `bson:"method" json:"method"`
	Serial      string    `bson:"serial" json:"serial"`
	Status      string    `bson:"status" json:"status"`
	GeneratedAt time.Time `bson:"generated_at" json:"generated_at"`
}

// PaymentDetails is the input for receipt generation.
type PaymentDetails struct {
	PaymentID string `json:"payment_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Method    string `json:"method"`
	Serial    string `json:"serial"`
}
