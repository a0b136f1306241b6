package catalog

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Brand struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID              int64               `json:"id"`
	Name            string              `json:"name"`
	BrandID         *int64              `json:"brand_id,omitempty"`
	CategoryID      *int64              `json:"category_id,omitempty"`
	BrandName       string              `json:"brand,omitempty"`
	CategoryName    string              `json:"category,omitempty"`
	Description     string              `json:"description"`
	Color           string              `json:"color"`
	Size            string              `json:"size"`
	Price           decimal.Decimal     `json:"price"`
	SalePrice       decimal.NullDecimal `json:"sale_price"`
	DiscountPercent decimal.NullDecimal `json:"discount_percent"`
	Stock           int                 `json:"stock"`
	ImageURL        string              `json:"image_url"`
	WarrantyMonths  int                 `json:"warranty_months"`
	IsActive        bool                `json:"is_active"`
	IsFeatured      bool                `json:"is_featured"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// FinalPrice is sale_price when set, else price less discount_percent, else price.
func (p Product) FinalPrice() decimal.Decimal {
	return FinalPrice(p.Price, p.SalePrice, p.DiscountPercent)
}

func FinalPrice(price decimal.Decimal, sale, discount decimal.NullDecimal) decimal.Decimal {
	if sale.Valid {
		return sale.Decimal.Round(2)
	}
	if discount.Valid && discount.Decimal.IsPositive() {
		off := hundred.Sub(discount.Decimal).Div(hundred)
		return price.Mul(off).Round(2)
	}
	return price.Round(2)
}

// Snapshot is the audited view of a product.
type Snapshot struct {
	ID              int64               `json:"id"`
	Name            string              `json:"name"`
	BrandID         *int64              `json:"brand_id"`
	CategoryID      *int64              `json:"category_id"`
	Price           decimal.Decimal     `json:"price"`
	SalePrice       decimal.NullDecimal `json:"sale_price"`
	DiscountPercent decimal.NullDecimal `json:"discount_percent"`
	Stock           int                 `json:"stock"`
	WarrantyMonths  int                 `json:"warranty_months"`
	IsActive        bool                `json:"is_active"`
}

func (s Snapshot) ModelName() string { return "Product" }
func (s Snapshot) ObjectID() string  { return strconv.FormatInt(s.ID, 10) }

func (p Product) Snapshot() Snapshot {
	return Snapshot{
		ID: p.ID, Name: p.Name, BrandID: p.BrandID, CategoryID: p.CategoryID,
		Price: p.Price, SalePrice: p.SalePrice, DiscountPercent: p.DiscountPercent,
		Stock: p.Stock, WarrantyMonths: p.WarrantyMonths, IsActive: p.IsActive,
	}
}

// ProductInput is the admin write model; nil fields are left unchanged on update.
type ProductInput struct {
	Name            *string          `json:"name" validate:"omitempty,min=1,max=200"`
	BrandID         *int64           `json:"brand_id"`
	CategoryID      *int64           `json:"category_id"`
	Description     *string          `json:"description"`
	Color           *string          `json:"color"`
	Size            *string          `json:"size"`
	Price           *decimal.Decimal `json:"price"`
	SalePrice       *decimal.Decimal `json:"sale_price"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	Stock           *int             `json:"stock" validate:"omitempty,min=0"`
	ImageURL        *string          `json:"image_url"`
	WarrantyMonths  *int             `json:"warranty_months" validate:"omitempty,min=0"`
	IsActive        *bool            `json:"is_active"`
	IsFeatured      *bool            `json:"is_featured"`
}

// Apply copies the set fields of in onto p.
func (in ProductInput) Apply(p *Product) {
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.BrandID != nil {
		p.BrandID = in.BrandID
	}
	if in.CategoryID != nil {
		p.CategoryID = in.CategoryID
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Color != nil {
		p.Color = *in.Color
	}
	if in.Size != nil {
		p.Size = *in.Size
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.SalePrice != nil {
		p.SalePrice = decimal.NewNullDecimal(*in.SalePrice)
	}
	if in.DiscountPercent != nil {
		p.DiscountPercent = decimal.NewNullDecimal(*in.DiscountPercent)
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.ImageURL != nil {
		p.ImageURL = *in.ImageURL
	}
	if in.WarrantyMonths != nil {
		p.WarrantyMonths = *in.WarrantyMonths
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if in.IsFeatured != nil {
		p.IsFeatured = *in.IsFeatured
	}
}

// Validate checks the money fields after Apply.
func (p Product) Validate() error {
	switch {
	case p.Name == "":
		return errInvalid("name is required")
	case p.Price.IsNegative():
		return errInvalid("price must be >= 0")
	case p.SalePrice.Valid && p.SalePrice.Decimal.IsNegative():
		return errInvalid("sale_price must be >= 0")
	case p.DiscountPercent.Valid && (p.DiscountPercent.Decimal.IsNegative() || p.DiscountPercent.Decimal.GreaterThan(hundred)):
		return errInvalid("discount_percent must be between 0 and 100")
	case p.Stock < 0:
		return errInvalid("stock must be >= 0")
	}
	return nil
}

// ListFilter drives the public catalog listing.
type ListFilter struct {
	Query      string
	CategoryID *int64
	BrandID    *int64
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Featured   bool
	Sort       string // name, price, -price, newest
	Limit      int
	Offset     int

	IncludeInactive bool
}
