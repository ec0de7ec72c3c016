package models

import (
	"context"
	"errors"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/ttacon/libphonenumber"
)

// Customer is the client a customer estimate is addressed to.
type Customer struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId string    `gorm:"index;not null" json:"company_id"`
	Name      string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:255" json:"email"`
	Phone     string    `gorm:"size:30" json:"phone"`
	Address   string    `gorm:"type:text" json:"address"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name    string `json:"name" binding:"required" validate:"required"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func defaultPhoneRegion() string {
	if v := os.Getenv("DEFAULT_PHONE_REGION"); v != "" {
		return v
	}
	return "GB"
}

// normalizePhone parses and formats the number to E.164; blank passes through.
func normalizePhone(phone string) (string, error) {
	if phone == "" {
		return "", nil
	}
	parsed, err := libphonenumber.Parse(phone, defaultPhoneRegion())
	if err != nil {
		return "", errors.New("invalid phone number")
	}
	if !libphonenumber.IsValidNumber(parsed) {
		return "", errors.New("invalid phone number")
	}
	return libphonenumber.Format(parsed, libphonenumber.E164), nil
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	phone, err := normalizePhone(input.Phone)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Customer](ctx, companyId, "name", input.Name, nil); err != nil {
		return nil, err
	}

	customer := Customer{
		CompanyId: companyId,
		Name:      input.Name,
		Email:     input.Email,
		Phone:     phone,
		Address:   input.Address,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	companyId, _, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	var customer Customer
	if err := db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyId, id).
		First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}
