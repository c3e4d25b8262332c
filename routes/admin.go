package routes

import (
	"errors"
	"net/http"

	"github.com/kataras/iris/v12"
	"gorm.io/gorm"

	"house-rent-server/models"
	"house-rent-server/storage"
	"house-rent-server/utils"
)

// AdminStats returns the dashboard counters.
func AdminStats(ctx iris.Context) {
	var (
		users                int64
		landlords            int64
		houses               int64
		pendingHouses        int64
		pendingVerifications int64
	)
	storage.DB.Model(&models.User{}).Count(&users)
	storage.DB.Model(&models.User{}).Where("role = ?", "landlord").Count(&landlords)
	storage.DB.Model(&models.House{}).Count(&houses)
	storage.DB.Model(&models.House{}).Where("status = ?", models.HouseStatusPending).Count(&pendingHouses)
	storage.DB.Model(&models.User{}).
		Where("verification_status IN ?", []string{
			models.VerificationStatusPending,
			models.VerificationStatusPendingReview,
		}).
		Count(&pendingVerifications)

	ctx.JSON(iris.Map{
		"users":                 users,
		"landlords":             landlords,
		"houses":                houses,
		"pending_houses":        pendingHouses,
		"pending_verifications": pendingVerifications,
	})
}

// AdminListUsers returns a paginated user list for the dashboard.
func AdminListUsers(ctx iris.Context) {
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 20)
	role := ctx.URLParamDefault("role", "")
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	q := storage.DB.Model(&models.User{})
	if role != "" {
		q = q.Where("role = ?", role)
	}

	var total int64
	q.Count(&total)

	var users []models.User
	if err := q.Select("id, name, email, role, verified, email_verified, created_at").
		Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&users).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.JSONPage(ctx, users, page, perPage, total)
}

type reviewHouseInput struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

// AdminReviewHouse approves or rejects a pending listing.
func AdminReviewHouse(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "validation_error", "invalid house id")
		return
	}

	var input reviewHouseInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	if input.Status != models.HouseStatusApproved && input.Status != models.HouseStatusRejected {
		utils.JSONError(ctx, http.StatusBadRequest, "validation_error", "status must be approved or rejected")
		return
	}

	var house models.House
	if dbErr := storage.DB.First(&house, id).Error; dbErr != nil {
		if errors.Is(dbErr, gorm.ErrRecordNotFound) {
			utils.CreateNotFound(ctx)
			return
		}
		utils.CreateInternalServerError(ctx)
		return
	}

	before := house.Status
	house.Status = input.Status
	if err := storage.DB.Save(&house).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.Audit(ctx, "house.review", "house", house.ID,
		iris.Map{"status": before}, iris.Map{"status": house.Status})

	ctx.JSON(iris.Map{"message": "House " + input.Status, "house": house})
}

// AdminPendingHouses lists houses awaiting approval.
func AdminPendingHouses(ctx iris.Context) {
	var houses []models.House
	if err := storage.DB.Where("status = ?", models.HouseStatusPending).
		Preload("Landlord", func(db *gorm.DB) *gorm.DB {
			return db.Select("id, name, email, verified")
		}).
		Order("created_at ASC").Find(&houses).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"houses": houses})
}
