// Package uploads stores user-submitted images (avatars) with Cloudinary.
package uploads

import (
	"bytes"
	"context"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Uploader stores an image and returns its public URL.
type Uploader interface {
	UploadImage(ctx context.Context, folder, filename string, data []byte) (string, error)
}

type CloudinaryUploader struct {
	cld *cld.Cloudinary
}

// NewCloudinaryUploader builds an uploader from a CLOUDINARY_URL-style URL.
func NewCloudinaryUploader(url string) (*CloudinaryUploader, error) {
	client, err := cld.NewFromURL(url)
	if err != nil {
		return nil, err
	}
	return &CloudinaryUploader{cld: client}, nil
}

func (u *CloudinaryUploader) UploadImage(ctx context.Context, folder, filename string, data []byte) (string, error) {
	res, err := u.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:       folder,
		PublicID:     filename,
		ResourceType: "image",
	})
	if err != nil {
		return "", err
	}
	return res.SecureURL, nil
}
