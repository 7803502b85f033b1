package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const defaultTokenURI = "https://oauth2.googleapis.com/token"

// DriveAdapter uploads artifacts to Google Drive with stored OAuth token
// material. Credential keys: token, refresh_token, client_id, client_secret,
// token_uri (optional). Destination config keys: folder_id (optional parent).
type DriveAdapter struct{}

func (a *DriveAdapter) Provider() string { return ProviderGDrive }

func (a *DriveAdapter) Upload(ctx context.Context, localPath string, cfg, creds map[string]string) (string, error) {
	svc, err := a.newService(ctx, creds)
	if err != nil {
		return "", &UploadError{Provider: ProviderGDrive, Err: err}
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", &UploadError{Provider: ProviderGDrive, Err: fmt.Errorf("open artifact: %w", err)}
	}
	defer file.Close()

	meta := &drive.File{Name: filepath.Base(localPath)}
	if folderID := cfg["folder_id"]; folderID != "" {
		meta.Parents = []string{folderID}
	}

	// Media() uploads resumable above the chunk threshold by default.
	created, err := svc.Files.Create(meta).Media(file).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", &UploadError{Provider: ProviderGDrive, Err: fmt.Errorf("create file: %w", err)}
	}

	return fmt.Sprintf("gdrive://%s", created.Id), nil
}

func (a *DriveAdapter) newService(ctx context.Context, creds map[string]string) (*drive.Service, error) {
	if creds["token"] == "" && creds["refresh_token"] == "" {
		return nil, fmt.Errorf("token material is required")
	}

	tokenURI := creds["token_uri"]
	if tokenURI == "" {
		tokenURI = defaultTokenURI
	}

	conf := &oauth2.Config{
		ClientID:     creds["client_id"],
		ClientSecret: creds["client_secret"],
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURI},
		Scopes:       []string{drive.DriveFileScope},
	}
	token := &oauth2.Token{
		AccessToken:  creds["token"],
		RefreshToken: creds["refresh_token"],
	}

	svc, err := drive.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize drive client: %w", err)
	}
	return svc, nil
}
