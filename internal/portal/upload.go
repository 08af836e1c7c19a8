package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"

	"centralpublisher/internal/apperrors"
)

// PublishingTypeAutomatic asks the portal to publish once validation passes.
const PublishingTypeAutomatic = "AUTOMATIC"

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Bundle is an archive ready for upload.
type Bundle struct {
	Path string // Local file path
	Name string // File name sent as the multipart filename
	Size int64
}

// Upload sends a bundle and returns the deployment id assigned by the portal.
// name is the deployment display name; autoPublish requests automatic publishing.
func (c *Client) Upload(ctx context.Context, bundle Bundle, name string, autoPublish bool) (string, error) {
	query := url.Values{}
	if name != "" {
		query.Set("name", name)
	}
	if autoPublish {
		query.Set("publishingType", PublishingTypeAutomatic)
	}
	endpoint, err := c.endpoint(uploadPath, query)
	if err != nil {
		return "", fmt.Errorf("failed to build upload URL: %w", err)
	}

	file, err := os.Open(bundle.Path)
	if err != nil {
		return "", apperrors.Validation("bundle", fmt.Sprintf("cannot open bundle: %v", err))
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		defer file.Close()
		pw.CloseWithError(c.writeBundlePart(mw, bundle, file))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Debug("Uploading bundle", "bundle", bundle.Name, "bytes", bundle.Size, "url", endpoint)

	resp, err := c.do(req, OpUpload, http.StatusCreated)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}
	deploymentID := string(body)
	if strings.TrimSpace(deploymentID) == "" {
		return "", apperrors.MalformedResponse(OpUpload, endpoint, errors.New("empty deployment id"))
	}
	return deploymentID, nil
}

// writeBundlePart streams the bundle as the "bundle" form field and closes the form.
func (c *Client) writeBundlePart(mw *multipart.Writer, bundle Bundle, src io.Reader) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="bundle"; filename="%s"`, quoteEscaper.Replace(bundle.Name)))
	header.Set("Content-Type", "application/zip")

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}

	if c.progress != nil {
		bar := progressbar.NewOptions64(bundle.Size,
			progressbar.OptionSetWriter(c.progress),
			progressbar.OptionSetDescription("Uploading "+bundle.Name),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		reader := progressbar.NewReader(src, bar)
		src = &reader
	}

	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to stream bundle: %w", err)
	}
	return mw.Close()
}
