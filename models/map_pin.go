package models

// MapPin is a geo-tagged note dropped on the map. The pin store belongs to
// the map collaborator; the engine only reads pins when a user joins the
// mission behind one, and deletes them after a verified payout.
type MapPin struct {
	ID          string  `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      string  `json:"user_id" gorm:"type:uuid;index;not null"`
	Username    string  `json:"username" gorm:"not null"`
	Title       string  `json:"title" gorm:"not null"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Category    string  `json:"category" gorm:"type:varchar(16);default:'other'"`

	Timestamps
}
