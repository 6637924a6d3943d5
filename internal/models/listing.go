package models

import "time"

// GeoPoint координаты объекта.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Listing объявление о жилье.
type Listing struct {
	ID               int64     `json:"id"`
	LandlordUID      string    `json:"landlord_uid"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Address          string    `json:"address"`
	Location         GeoPoint  `json:"location"`
	Price            int64     `json:"price"`
	HousingType      string    `json:"housing_type"`
	RoomType         string    `json:"room_type"`
	Residents        int       `json:"residents"`
	CurrentResidents int       `json:"current_residents"`
	Facilities       []string  `json:"facilities"`
	Images           []string  `json:"images"`
	RatingSum        int       `json:"-"`
	RatingCount      int       `json:"rating_count"`
	Rating           float64   `json:"rating"`
	ViewCount        int64     `json:"view_count"`
	ContactCount     int64     `json:"contact_count"`
	Boosted          bool      `json:"boosted"` // владелец с премиум-подпиской
	CreatedAt        time.Time `json:"created_at"`
}

// HasVacancy есть ли свободные места.
func (l *Listing) HasVacancy() bool {
	return l.CurrentResidents < l.Residents
}

// ListingFilter параметры поиска объявлений.
type ListingFilter struct {
	Query       string
	MinPrice    *int64
	MaxPrice    *int64
	HousingType string
	RoomType    string
	Facility    string
	Near        *GeoPoint
	RadiusKm    float64
	OnlyVacant  bool
	Limit       int
	Offset      int
}

// Review отзыв об объявлении.
type Review struct {
	ID        int64     `json:"id"`
	ListingID int64     `json:"listing_id"`
	UserUID   string    `json:"user_uid"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Wishlister пользователь, добавивший объявление в избранное.
type Wishlister struct {
	UserUID   string `json:"user_uid"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	IsPremium bool   `json:"is_premium"`
}

// OccupancyEvent изменение заполненности объявления.
type OccupancyEvent struct {
	ListingID        int64     `json:"listing_id"`
	Residents        int       `json:"residents"`
	CurrentResidents int       `json:"current_residents"`
	At               time.Time `json:"at"`
}

// ListingUpdate изменяемые поля объявления. nil означает "не менять".
// Число жильцов меняется только через учет мест.
type ListingUpdate struct {
	Title       *string
	Description *string
	Price       *int64
	HousingType *string
	RoomType    *string
	Residents   *int
	Facilities  []string
	Images      []string
}

// Empty нет ни одного поля для изменения.
func (u ListingUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Price == nil && u.HousingType == nil &&
		u.RoomType == nil && u.Residents == nil && u.Facilities == nil && u.Images == nil
}
