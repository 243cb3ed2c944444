// Package bootstrap provisions the data every deployment needs before it
// can serve anything: the built-in content types and the root user.
package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	defError "errors"
	"fmt"
	"os"

	"ledger-cms/internal/config"
	"ledger-cms/internal/content"
	"ledger-cms/internal/contenttype"
	"ledger-cms/internal/domain"
	apiError "ledger-cms/internal/errors"
	"ledger-cms/internal/logger"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Definitions enumerates the built-in content types. Policies are the
// write-side field filters; the view policies drive the (external)
// rendering layer.
func Definitions() []contenttype.Definition {
	return []contenttype.Definition{
		{
			Name:         content.TypeUser,
			ContentClass: domain.ClassUser,
			EditableFields: `{
				"username": {"filter": "REGEX", "data": "^\\w+$"},
				"email": {"filter": "REGEX", "data": "^[\\w.@+-]+$"},
				"password_hash": {"filter": "NONE"},
				"roles": {"filter": "PLAIN_TEXT"}
			}`,
			ViewableFields: `{
				"username": {"visible": "true", "label": "Username"},
				"email": {"visible": "true", "label": "Email", "role": "admin"},
				"roles": {"visible": "true", "label": "Roles", "role": "admin"},
				"last_login": {"visible": "true", "label": "Last login", "format": "datetime", "role": "admin"}
			}`,
			EditURL: "/edit/user",
			ViewURL: "/view",
		},
		{
			Name:         content.TypeArticle,
			ContentClass: domain.ClassArticle,
			EditableFields: `{
				"title": {"filter": "PLAIN_TEXT"},
				"body": {"filter": "NONE"},
				"tags": {"filter": "PLAIN_TEXT"}
			}`,
			ViewableFields: `{
				"title": {"visible": "true", "label": "Title"},
				"body": {"visible": "true", "label": "Body", "format": "markdown"},
				"tags": {"visible": "true", "label": "Tags"}
			}`,
			EditURL: "/edit/article",
			ViewURL: "/view",
		},
		{
			Name:         content.TypeSite,
			ContentClass: domain.ClassSite,
			EditableFields: `{
				"site_name": {"filter": "PLAIN_TEXT"},
				"environment_name": {"filter": "PLAIN_TEXT"},
				"local_build_dir": {"filter": "NONE"},
				"static_files_dir": {"filter": "NONE"},
				"hosting_type": {"filter": "PLAIN_TEXT"},
				"index_content": {"filter": "NONE"},
				"menu_content": {"filter": "NONE"},
				"groups_content": {"filter": "NONE"},
				"builder_url": {"filter": "NONE"}
			}`,
			ViewableFields: `{
				"site_name": {"visible": "true", "label": "Site"},
				"environment_name": {"visible": "true", "label": "Environment", "role": "admin"},
				"hosting_type": {"visible": "true", "label": "Hosting", "role": "admin"}
			}`,
			EditURL: "/edit/site",
			ViewURL: "/view",
		},
		{
			Name:         content.TypeContentType,
			ContentClass: domain.ClassContentType,
			EditableFields: `{
				"name": {"filter": "REGEX", "data": "^[\\w-]+$"},
				"content_class": {"filter": "REGEX", "data": "^\\w+$"},
				"editable_fields": {"filter": "NONE"},
				"viewable_fields": {"filter": "NONE"},
				"edit_url": {"filter": "NONE"},
				"view_url": {"filter": "NONE"}
			}`,
			ViewableFields: `{
				"name": {"visible": "true", "label": "Name", "role": "admin"},
				"content_class": {"visible": "true", "label": "Class", "role": "admin"}
			}`,
			EditURL: "/edit/content-type",
			ViewURL: "/view",
		},
	}
}

// EnsureContentTypes provisions the built-in types. Already-present types
// are left exactly as they are.
func EnsureContentTypes(ctx context.Context, types *contenttype.Registry) error {
	for _, def := range Definitions() {
		_, _, err := types.Ensure(ctx, def)
		if err != nil {
			if defError.Is(err, apiError.ErrAlreadyExists) {
				continue
			}
			return fmt.Errorf("ensure content type %q: %w", def.Name, err)
		}
		logger.Log.Info().Str("type", def.Name).Msg("content type provisioned")
	}
	return nil
}

// EnsureRootUser creates the root administrative user on an empty
// deployment, through the ordinary save orchestration so the account is
// versioned and hashed like any other content. The generated password is
// written to a local file for the operator; it exists nowhere else.
func EnsureRootUser(ctx context.Context, db *gorm.DB, svc content.Service) error {
	var count int64
	if err := db.WithContext(ctx).Model(&domain.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password, err := generatePassword()
	if err != nil {
		return err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	result, err := svc.Save(ctx, content.TypeUser, content.SaveInput{
		Fields: map[string]string{
			"username":      config.AppConfig.RootUsername,
			"email":         config.AppConfig.RootEmail,
			"password_hash": string(hashed),
			"roles":         "admin",
		},
	})
	if err != nil {
		return fmt.Errorf("create root user: %w", err)
	}
	if result.Rejected != nil {
		return fmt.Errorf("create root user: rejected by lock")
	}

	credentials := fmt.Sprintf("username: %s\npassword: %s\n", config.AppConfig.RootUsername, password)
	path := config.AppConfig.RootCredentialsFile
	if err := os.WriteFile(path, []byte(credentials), 0o600); err != nil {
		return fmt.Errorf("write root credentials: %w", err)
	}

	logger.Log.Info().
		Str("username", config.AppConfig.RootUsername).
		Str("credentials_file", path).
		Msg("root user provisioned")
	return nil
}

func generatePassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
