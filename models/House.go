package models

import (
	"gorm.io/gorm"
)

// House listing statuses for the admin approval workflow.
const (
	HouseStatusPending  = "pending"
	HouseStatusApproved = "approved"
	HouseStatusRejected = "rejected"
)

type House struct {
	gorm.Model
	Title       string  `json:"title"`
	Location    string  `json:"location"`
	Price       float64 `json:"price"`
	Description string  `json:"description" gorm:"type:text"`
	ImageURL    string  `json:"imageUrl" gorm:"size:512"`
	Status      string  `json:"status" gorm:"size:20;default:pending;index"`
	LandlordID  uint    `json:"landlordId" gorm:"not null;index"`
	Landlord    *User   `json:"landlord,omitempty" gorm:"foreignKey:LandlordID"`
}
