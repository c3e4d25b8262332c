package storage

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrUpload signals a Cloudinary network or API failure. Background pipeline
// stages wrap it so callers can tell infra failures from verification outcomes.
var ErrUpload = errors.New("cloudinary upload failed")

// Cloudinary configuration via environment variables:
// CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY, CLOUDINARY_API_SECRET, CLOUDINARY_FOLDER (optional)

type cloudinaryConfig struct {
	cloudName string
	apiKey    string
	apiSecret string
	folder    string
}

func cloudinaryFromEnv() (cloudinaryConfig, error) {
	cfg := cloudinaryConfig{
		cloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		apiKey:    os.Getenv("CLOUDINARY_API_KEY"),
		apiSecret: os.Getenv("CLOUDINARY_API_SECRET"),
		folder:    os.Getenv("CLOUDINARY_FOLDER"),
	}
	if cfg.cloudName == "" || cfg.apiKey == "" || cfg.apiSecret == "" {
		return cfg, fmt.Errorf("%w: missing Cloudinary credentials in environment", ErrUpload)
	}
	return cfg, nil
}

// UploadImageBuffer uploads a raw JPEG buffer to Cloudinary under the given
// folder and returns the durable secure URL. publicID may be empty, in which
// case Cloudinary assigns one.
func UploadImageBuffer(buf []byte, folder, publicID string) (string, error) {
	if len(buf) == 0 {
		return "", fmt.Errorf("%w: empty image buffer", ErrUpload)
	}

	cfg, err := cloudinaryFromEnv()
	if err != nil {
		return "", err
	}

	endpoint := "https://api.cloudinary.com/v1_1/" + cfg.cloudName + "/image/upload"
	payload := base64.StdEncoding.EncodeToString(buf)

	form := url.Values{}
	form.Add("file", "data:image/jpeg;base64,"+payload)
	form.Add("api_key", cfg.apiKey)

	finalPublicID := publicID
	if folder == "" {
		folder = cfg.folder
	}
	if folder != "" && finalPublicID != "" {
		finalPublicID = folder + "/" + finalPublicID
	}

	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	// Signature string for signed uploads must list the parameters in
	// alphabetical order, followed by the API secret (SHA1).
	var sigParams []string
	if folder != "" && finalPublicID == "" {
		form.Add("folder", folder)
		sigParams = append(sigParams, "folder="+folder)
	}
	if finalPublicID != "" {
		form.Add("public_id", finalPublicID)
		sigParams = append(sigParams, "public_id="+finalPublicID)
	}
	sigParams = append(sigParams, "timestamp="+timestamp)
	form.Add("timestamp", timestamp)

	signatureString := strings.Join(sigParams, "&") + cfg.apiSecret
	form.Add("signature", fmt.Sprintf("%x", sha1.Sum([]byte(signatureString))))

	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrUpload, err)
	}

	if res.StatusCode != http.StatusOK {
		log.WithFields(log.Fields{"status": res.StatusCode, "body": string(body)}).
			Error("cloudinary upload rejected")
		return "", fmt.Errorf("%w: status %d", ErrUpload, res.StatusCode)
	}

	var cloudRes struct {
		SecureURL string `json:"secure_url"`
		URL       string `json:"url"`
		Error     struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &cloudRes); err != nil {
		return "", fmt.Errorf("%w: parsing response: %v", ErrUpload, err)
	}
	if cloudRes.Error.Message != "" {
		return "", fmt.Errorf("%w: %s", ErrUpload, cloudRes.Error.Message)
	}

	out := cloudRes.SecureURL
	if out == "" {
		out = cloudRes.URL
	}
	if out == "" {
		return "", fmt.Errorf("%w: no URL in response", ErrUpload)
	}
	return out, nil
}

// UploadBase64Image uploads a base64 data-URL (or raw base64) image, used by
// the house-listing routes which receive images as JSON payloads.
func UploadBase64Image(base64ImageSrc, folder, publicID string) (string, error) {
	if base64ImageSrc == "" {
		return "", fmt.Errorf("%w: empty base64 image", ErrUpload)
	}
	payload := base64ImageSrc
	if i := strings.Index(base64ImageSrc, ","); i != -1 {
		payload = base64ImageSrc[i+1:]
	}
	buf, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64 payload", ErrUpload)
	}
	return UploadImageBuffer(buf, folder, publicID)
}

// DeleteImage removes an image from Cloudinary given its URL. Best effort:
// house deletion should not fail because the CDN copy lingers.
func DeleteImage(imageURL string) bool {
	if !strings.Contains(imageURL, "res.cloudinary.com") {
		return false
	}

	parts := strings.Split(imageURL, "/")
	if len(parts) < 2 {
		return false
	}
	lastPart := parts[len(parts)-1]
	publicID := strings.Split(lastPart, ".")[0]

	cfg, err := cloudinaryFromEnv()
	if err != nil {
		log.WithError(err).Warn("cloudinary delete skipped")
		return false
	}

	finalPublicID := publicID
	if cfg.folder != "" {
		finalPublicID = cfg.folder + "/" + publicID
	}

	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	signatureString := fmt.Sprintf("public_id=%s&timestamp=%s%s", finalPublicID, timestamp, cfg.apiSecret)

	form := url.Values{}
	form.Add("public_id", finalPublicID)
	form.Add("api_key", cfg.apiKey)
	form.Add("timestamp", timestamp)
	form.Add("signature", fmt.Sprintf("%x", sha1.Sum([]byte(signatureString))))

	endpoint := "https://api.cloudinary.com/v1_1/" + cfg.cloudName + "/image/destroy"
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("cloudinary delete request failed")
		return false
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil || res.StatusCode != http.StatusOK {
		return false
	}

	var deleteRes struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &deleteRes); err != nil {
		return false
	}
	return deleteRes.Result == "ok"
}
