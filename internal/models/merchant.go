package models

// Merchant is a seller account holding Mercado Pago credentials.
// The access token is the secret credential and must never leave the server.
type Merchant struct {
	BaseModel
	StoreName    string        `json:"store_name"`
	Email        string        `gorm:"uniqueIndex" json:"email"`
	PasswordHash string        `json:"-"`
	AccessToken  string        `json:"-"`
	PublicKey    string        `json:"public_key"`
	Links        []PaymentLink `json:"links,omitempty"`
}
