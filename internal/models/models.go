package models

import (
	"time"
)

// PlatformTenant is the tenant id recorded on entries produced by an actor
// that belongs to no business (the platform administrator).
const PlatformTenant = "platform"

// Product - The Inventory (one business's product list)
type Product struct {
	ID           string    `json:"id"`
	BusinessID   string    `json:"businessId,omitempty"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Price        float64   `json:"price"`                 // unit sale price
	BuyingPrice  float64   `json:"buyingPrice,omitempty"` // unit cost
	Stock        int       `json:"stock"`
	OpeningStock int       `json:"openingStock"` // stock at creation, never changes
	Additions    int       `json:"additions"`    // units restocked after creation
	ImageURL     string    `json:"imageUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CartItem - A product snapshot inside the in-progress transaction
type CartItem struct {
	Product
	Quantity int `json:"quantity"`
}

// PaymentMethod is how a sale was settled.
type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "Cash"
	PaymentMpesa PaymentMethod = "Mpesa"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentMpesa
}

// Sale - The Transaction record. Append-only, so there is no UpdatedAt.
type Sale struct {
	ID            string        `json:"id"`
	BusinessID    string        `json:"businessId"`
	Date          time.Time     `json:"date"`
	Items         []CartItem    `json:"items"` // frozen at time of sale
	TotalAmount   float64       `json:"totalAmount"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	SalesPerson   string        `json:"salesPerson"` // name snapshot
	CustomerPhone string        `json:"customerPhone,omitempty"`
}

// UserStatus toggles whether an account may log in.
type UserStatus string

const (
	UserActive   UserStatus = "Active"
	UserInactive UserStatus = "Inactive"
)

// User - The person operating a terminal
type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Role       Role       `json:"role"`
	Avatar     string     `json:"avatar,omitempty"`
	BusinessID string     `json:"businessId,omitempty"` // empty for SUPER_ADMIN
	Phone      string     `json:"phone,omitempty"`
	Status     UserStatus `json:"status"`
	Password   string     `json:"password,omitempty"` // write-only input, never returned
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Tenant returns the business id used to scope entries created by u.
func (u User) Tenant() string {
	if u.BusinessID == "" {
		return PlatformTenant
	}
	return u.BusinessID
}

// Sanitized returns a copy without the credential field.
func (u User) Sanitized() User {
	u.Password = ""
	return u
}

// SubscriptionStatus is the lifecycle of a tenant's plan.
type SubscriptionStatus string

const (
	SubscriptionActive          SubscriptionStatus = "Active"
	SubscriptionTrial           SubscriptionStatus = "Trial"
	SubscriptionExpired         SubscriptionStatus = "Expired"
	SubscriptionPendingApproval SubscriptionStatus = "Pending Approval"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrial, SubscriptionExpired, SubscriptionPendingApproval:
		return true
	}
	return false
}

// AllowsLogin reports whether users of a tenant in status s may sign in.
func (s SubscriptionStatus) AllowsLogin() bool {
	return s == SubscriptionActive || s == SubscriptionTrial
}

// Subscription is the billing metadata attached to a Business.
type Subscription struct {
	Status           SubscriptionStatus `json:"status"`
	Plan             string             `json:"plan,omitempty"`
	PaymentStatus    string             `json:"paymentStatus,omitempty"`
	VerificationNote string             `json:"verificationNote,omitempty"`
}

// Business - A tenant
type Business struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	OwnerName       string            `json:"ownerName"`
	Subscription    Subscription      `json:"subscription"`
	RemoteEndpoints map[string]string `json:"remoteEndpoints,omitempty"`
	Logo            string            `json:"logo,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// AuditLog - One immutable trail entry
type AuditLog struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"` // snapshot
	Action     string    `json:"action"`
	Details    string    `json:"details"`
	BusinessID string    `json:"businessId"`
}

// Snapshot is the per-tenant document held by the remote store.
type Snapshot struct {
	BusinessID string     `json:"businessId"`
	Products   []Product  `json:"products"`
	Sales      []Sale     `json:"sales"`
	AuditLogs  []AuditLog `json:"auditLogs"`
	LastSync   time.Time  `json:"lastSync"`
}

// Bundle is everything a terminal pulls for its session: the tenant
// snapshot plus the directory entries the caller is allowed to see.
type Bundle struct {
	Snapshot   Snapshot   `json:"snapshot"`
	Users      []User     `json:"users"`
	Businesses []Business `json:"businesses"`
}
