package domain

import "time"

// Activity is a bookable offering. AvailableSlots is owned by the inventory
// ledger and never written directly.
type Activity struct {
	ID             string    `json:"id"`
	ProviderID     string    `json:"provider_id"`
	Title          string    `json:"title"`
	Price          int64     `json:"price"` // minor currency units per person
	Currency       string    `json:"currency"`
	AvailableSlots int       `json:"available_slots"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PriceFor returns the total for numberOfPeople participants
func (a *Activity) PriceFor(numberOfPeople int) int64 {
	return a.Price * int64(numberOfPeople)
}
