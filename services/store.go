package services

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"house-rent-server/models"
	"house-rent-server/storage"
)

// GormUserStore backs UserStore with the shared Postgres connection.
type GormUserStore struct{}

func NewGormUserStore() *GormUserStore { return &GormUserStore{} }

func (GormUserStore) FindByID(id uint) (*models.User, error) {
	var user models.User
	if err := storage.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (GormUserStore) Save(user *models.User) error {
	return storage.DB.Save(user).Error
}

// Update applies fn under SELECT ... FOR UPDATE so the attempt-quota guard,
// the background commit and admin reviews serialize on the user row.
func (GormUserStore) Update(id uint, fn func(user *models.User) error) error {
	return storage.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, id).Error; err != nil {
			return err
		}
		if err := fn(&user); err != nil {
			return err
		}
		return tx.Save(&user).Error
	})
}

func (GormUserStore) IDNumberInUse(idNumber string, excludeUserID uint) (bool, error) {
	var count int64
	err := storage.DB.Model(&models.User{}).
		Where("verification_id_data_id_number = ? AND id <> ?", idNumber, excludeUserID).
		Count(&count).Error
	return count > 0, err
}

// CloudinaryUploader adapts the storage upload helper to the Uploader
// interface used by the pipeline.
type CloudinaryUploader struct{}

func NewCloudinaryUploader() *CloudinaryUploader { return &CloudinaryUploader{} }

func (CloudinaryUploader) Upload(buf []byte, folder, publicID string) (string, error) {
	return storage.UploadImageBuffer(buf, folder, publicID)
}
