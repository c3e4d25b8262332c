package routes

import (
	"errors"
	"net/http"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"gorm.io/gorm"

	"house-rent-server/models"
	"house-rent-server/storage"
	"house-rent-server/utils"
)

type createHouseInput struct {
	Title       string  `json:"title" validate:"required,max=256"`
	Location    string  `json:"location" validate:"required,max=256"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Description string  `json:"description" validate:"required"`
	Image       string  `json:"image" validate:"required"` // base64 data URL
}

type updateHouseInput struct {
	Title       string   `json:"title"`
	Location    string   `json:"location"`
	Price       *float64 `json:"price"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
}

// CreateHouse adds a listing. Landlord role plus a verified identity are
// required (the verification gate runs as route middleware).
func CreateHouse(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)
	if claims.Role != "landlord" {
		utils.JSONError(ctx, http.StatusForbidden, "forbidden", "only landlords can add houses")
		return
	}

	var input createHouseInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	imageURL, err := storage.UploadBase64Image(input.Image, "houses", "")
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "upload_error", "house image upload failed")
		return
	}

	house := models.House{
		Title:       input.Title,
		Location:    input.Location,
		Price:       input.Price,
		Description: input.Description,
		ImageURL:    imageURL,
		Status:      models.HouseStatusPending,
		LandlordID:  claims.ID,
	}
	if err := storage.DB.Create(&house).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"message": "House added, awaiting admin approval", "house": house})
}

// ListHouses returns approved listings, publicly.
func ListHouses(ctx iris.Context) {
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 20)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	q := storage.DB.Model(&models.House{}).Where("status = ?", models.HouseStatusApproved)

	var total int64
	q.Count(&total)

	var houses []models.House
	if err := q.Preload("Landlord", func(db *gorm.DB) *gorm.DB {
		return db.Select("id, name, email")
	}).Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&houses).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.JSONPage(ctx, houses, page, perPage, total)
}

func GetHouse(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "validation_error", "invalid house id")
		return
	}

	var house models.House
	if dbErr := storage.DB.Preload("Landlord", func(db *gorm.DB) *gorm.DB {
		return db.Select("id, name, email")
	}).First(&house, id).Error; dbErr != nil {
		if errors.Is(dbErr, gorm.ErrRecordNotFound) {
			utils.CreateNotFound(ctx)
			return
		}
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"house": house})
}

func ownedHouse(ctx iris.Context) (*models.House, bool) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "validation_error", "invalid house id")
		return nil, false
	}

	var house models.House
	if dbErr := storage.DB.First(&house, id).Error; dbErr != nil {
		if errors.Is(dbErr, gorm.ErrRecordNotFound) {
			utils.CreateNotFound(ctx)
			return nil, false
		}
		utils.CreateInternalServerError(ctx)
		return nil, false
	}

	claims := jwt.Get(ctx).(*utils.AccessToken)
	if house.LandlordID != claims.ID && claims.Role != "admin" {
		utils.CreateForbidden(ctx)
		return nil, false
	}
	return &house, true
}

// UpdateHouse edits an owned listing; edits drop it back to pending approval.
func UpdateHouse(ctx iris.Context) {
	house, ok := ownedHouse(ctx)
	if !ok {
		return
	}

	var input updateHouseInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	if input.Title != "" {
		house.Title = input.Title
	}
	if input.Location != "" {
		house.Location = input.Location
	}
	if input.Price != nil && *input.Price > 0 {
		house.Price = *input.Price
	}
	if input.Description != "" {
		house.Description = input.Description
	}
	if input.Image != "" {
		imageURL, err := storage.UploadBase64Image(input.Image, "houses", "")
		if err != nil {
			utils.JSONError(ctx, http.StatusBadRequest, "upload_error", "house image upload failed")
			return
		}
		house.ImageURL = imageURL
	}
	house.Status = models.HouseStatusPending

	if err := storage.DB.Save(house).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"house": house})
}

func DeleteHouse(ctx iris.Context) {
	house, ok := ownedHouse(ctx)
	if !ok {
		return
	}

	if err := storage.DB.Delete(house).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if house.ImageURL != "" {
		go storage.DeleteImage(house.ImageURL)
	}
	ctx.JSON(iris.Map{"message": "House deleted"})
}

// MyHouses lists the authenticated landlord's own houses, any status.
func MyHouses(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var houses []models.House
	if err := storage.DB.Where("landlord_id = ?", claims.ID).
		Order("created_at DESC").Find(&houses).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"houses": houses})
}
