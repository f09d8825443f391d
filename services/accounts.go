package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"contractit/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const defaultLanguage = "fr"

var languages = map[string]bool{"fr": true, "en": true}

type AccountService struct {
	base
	cost int
}

type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	Roles       models.RoleSet
	Phone       string
	City        string
	CompanyName string
	Language    string
}

// Register creates an account and one profile record per granted role.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Language = strings.TrimSpace(in.Language)
	if in.Language == "" {
		in.Language = defaultLanguage
	}

	switch {
	case in.Roles.IsEmpty():
		return nil, invalid("roles", "Select at least one role: client or contractor")
	case len(in.Username) < 3 || len(in.Username) > 150:
		return nil, invalid("username", "Username must be between 3 and 150 characters")
	case validate.Var(in.Email, "required,email") != nil:
		return nil, invalid("email", "Enter a valid email address")
	case len(in.Password) < 8:
		return nil, invalid("password", "Password must be at least 8 characters")
	case len(in.Phone) > 15:
		return nil, invalid("phone", "Phone number is too long")
	case !languages[in.Language]:
		return nil, invalid("language", "Unsupported language %q", in.Language)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Phone:        in.Phone,
		City:         in.City,
		CompanyName:  in.CompanyName,
		Language:     in.Language,
		Roles:        in.Roles,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.User{}).
			Where("email = ? OR username = ?", in.Email, in.Username).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return conflict("An account with this email or username already exists")
		}
		if err := tx.Create(user).Error; err != nil {
			if isDuplicate(err) {
				return conflict("An account with this email or username already exists")
			}
			return err
		}
		if user.IsClient() {
			user.ClientProfile = &models.ClientProfile{UserID: user.ID}
			if err := tx.Create(user.ClientProfile).Error; err != nil {
				return err
			}
		}
		if user.IsContractor() {
			user.ContractorProfile = &models.ContractorProfile{UserID: user.ID}
			if err := tx.Create(user.ContractorProfile).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("account registered",
		zap.Uint("user_id", user.ID),
		zap.Strings("roles", roleNames(user.Roles)),
	)
	return user, nil
}

// Authenticate returns the account for email if password matches.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.log.Warn("failed login", zap.Uint("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (s *AccountService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("ClientProfile").
		Preload("ContractorProfile").
		First(&user, id).Error
	if err != nil {
		return nil, lookup(err, "user")
	}
	return &user, nil
}

// UpdateProfileInput holds optional changes; nil fields are left alone.
type UpdateProfileInput struct {
	Phone       *string
	City        *string
	Bio         *string
	Language    *string
	CompanyName *string

	// contractor only
	Specialties    *string
	HourlyRate     *decimal.Decimal
	Availability   *string
	Certifications *string

	// client only
	ProjectHistoryCount *uint
}

func (in UpdateProfileInput) hasContractorFields() bool {
	return in.Specialties != nil || in.HourlyRate != nil || in.Availability != nil || in.Certifications != nil
}

func (s *AccountService) UpdateProfile(ctx context.Context, user *models.User, in UpdateProfileInput) (*models.User, error) {
	if in.hasContractorFields() && !user.IsContractor() {
		return nil, invalid("specialties", "Contractor fields can only be set on contractor accounts")
	}
	if in.ProjectHistoryCount != nil && !user.IsClient() {
		return nil, invalid("project_history_count", "Client fields can only be set on client accounts")
	}
	if in.Phone != nil && len(*in.Phone) > 15 {
		return nil, invalid("phone", "Phone number is too long")
	}
	if in.Language != nil && !languages[*in.Language] {
		return nil, invalid("language", "Unsupported language %q", *in.Language)
	}
	if in.HourlyRate != nil && in.HourlyRate.IsNegative() {
		return nil, invalid("hourly_rate", "Hourly rate cannot be negative")
	}

	userUpdates := map[string]interface{}{}
	setString(userUpdates, "phone", in.Phone)
	setString(userUpdates, "city", in.City)
	setString(userUpdates, "bio", in.Bio)
	setString(userUpdates, "language", in.Language)
	setString(userUpdates, "company_name", in.CompanyName)

	contractorUpdates := map[string]interface{}{}
	setString(contractorUpdates, "specialties", in.Specialties)
	setString(contractorUpdates, "availability", in.Availability)
	setString(contractorUpdates, "certifications", in.Certifications)
	if in.HourlyRate != nil {
		contractorUpdates["hourly_rate"] = in.HourlyRate.Round(2)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(userUpdates) > 0 {
			if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(userUpdates).Error; err != nil {
				return err
			}
		}
		if len(contractorUpdates) > 0 {
			if err := tx.Model(&models.ContractorProfile{}).Where("user_id = ?", user.ID).Updates(contractorUpdates).Error; err != nil {
				return err
			}
		}
		if in.ProjectHistoryCount != nil {
			if err := tx.Model(&models.ClientProfile{}).Where("user_id = ?", user.ID).
				Update("project_history_count", *in.ProjectHistoryCount).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.Get(ctx, user.ID)
}

// Delete removes the account after checking password. Projects the user
// posted or was awarded stay, with the reference cleared.
func (s *AccountService) Delete(ctx context.Context, user *models.User, password string) error {
	var stored models.User
	if err := s.db.WithContext(ctx).First(&stored, user.ID).Error; err != nil {
		return lookup(err, "user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(password)); err != nil {
		return invalid("password", "Password is incorrect")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id := user.ID
		steps := []func() error{
			func() error {
				return tx.Model(&models.Project{}).Where("client_id = ?", id).Update("client_id", nil).Error
			},
			func() error {
				return tx.Model(&models.Project{}).Where("contractor_id = ?", id).Update("contractor_id", nil).Error
			},
			func() error { return tx.Where("contractor_id = ?", id).Delete(&models.PaymentRequest{}).Error },
			func() error { return tx.Where("contractor_id = ?", id).Delete(&models.Bid{}).Error },
			func() error { return tx.Where("user_id = ?", id).Delete(&models.InternalPortfolioItem{}).Error },
			func() error { return tx.Where("user_id = ?", id).Delete(&models.ExternalPortfolioItem{}).Error },
			func() error { return tx.Where("user_id = ?", id).Delete(&models.ClientProfile{}).Error },
			func() error { return tx.Where("user_id = ?", id).Delete(&models.ContractorProfile{}).Error },
			func() error { return tx.Delete(&models.User{}, id).Error },
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	s.log.Info("account deleted", zap.Uint("user_id", user.ID))
	return nil
}

func setString(m map[string]interface{}, column string, v *string) {
	if v != nil {
		m[column] = strings.TrimSpace(*v)
	}
}

func roleNames(set models.RoleSet) []string {
	roles := set.Roles()
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
