package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const pinataEndpoint = "https://api.pinata.cloud/pinning/pinFileToIPFS"

// Uploader stores a file and returns a public URL for it.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// PinataUploader pins files through Pinata's pinFileToIPFS API.
type PinataUploader struct {
	APIKey    string
	SecretKey string
	JWT       string // used instead of the key pair when set
	Gateway   string
	Endpoint  string
	Client    *http.Client
}

// NewPinataUploader creates an uploader. gateway is the base URL used to build file links.
func NewPinataUploader(apiKey, secretKey, jwt, gateway string) *PinataUploader {
	return &PinataUploader{
		APIKey:    apiKey,
		SecretKey: secretKey,
		JWT:       jwt,
		Gateway:   strings.TrimRight(gateway, "/"),
		Endpoint:  pinataEndpoint,
		Client:    &http.Client{Timeout: 60 * time.Second},
	}
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// Upload sends data as the multipart field "file" and returns the gateway URL of the pin.
func (p *PinataUploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if err := CheckSize(int64(len(data))); err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if p.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+p.JWT)
	} else {
		req.Header.Set("pinata_api_key", p.APIKey)
		req.Header.Set("pinata_secret_api_key", p.SecretKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pinata upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("pinata upload: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var pin pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pin); err != nil {
		return "", fmt.Errorf("pinata response: %w", err)
	}
	if pin.IpfsHash == "" {
		return "", fmt.Errorf("pinata response: missing IpfsHash")
	}
	return p.Gateway + "/ipfs/" + pin.IpfsHash, nil
}
